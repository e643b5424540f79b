package csp

import (
	"fmt"
	"strconv"
	"strings"
)

// Op is a relational operator between a variable and its right-hand side.
type Op int

const (
	OpInvalid Op = iota
	OpGE         // >=
	OpGT         // >
	OpLE         // <=
	OpLT         // <
	OpEQ         // =
)

// ParseOp maps the textual relations ">=", ">", "<=", "<" and "=" ("==" is
// accepted as an alias for "=").
func ParseOp(s string) (Op, error) {
	switch strings.TrimSpace(s) {
	case ">=":
		return OpGE, nil
	case ">":
		return OpGT, nil
	case "<=":
		return OpLE, nil
	case "<":
		return OpLT, nil
	case "=", "==":
		return OpEQ, nil
	default:
		return OpInvalid, fmt.Errorf("%w: unsupported relational operator %q", ErrInvalidArgument, s)
	}
}

// Valid reports whether op is one of the five supported relations.
func (op Op) Valid() bool {
	return op >= OpGE && op <= OpEQ
}

func (op Op) String() string {
	switch op {
	case OpGE:
		return ">="
	case OpGT:
		return ">"
	case OpLE:
		return "<="
	case OpLT:
		return "<"
	case OpEQ:
		return "="
	default:
		return "?"
	}
}

// converse returns the relation seen from the right-hand side: x >= y is
// y <= x.
func (op Op) converse() Op {
	switch op {
	case OpGE:
		return OpLE
	case OpGT:
		return OpLT
	case OpLE:
		return OpGE
	case OpLT:
		return OpGT
	default:
		return op
	}
}

type operandKind uint8

const (
	operandNone operandKind = iota
	operandInt
	operandFloat
	operandVar
)

// Operand is the right-hand side of a constraint or condition: an integer
// constant, a float constant or another variable's key.
type Operand struct {
	kind operandKind
	i    int32
	f    float64
	key  string
}

// Int returns an integer constant operand.
func Int(v int32) Operand { return Operand{kind: operandInt, i: v} }

// Float returns a floating point constant operand.
func Float(v float64) Operand { return Operand{kind: operandFloat, f: v} }

// Var returns an operand referring to the variable registered under key.
func Var(key string) Operand { return Operand{kind: operandVar, key: key} }

// IsVar reports whether the operand names a variable.
func (o Operand) IsVar() bool { return o.kind == operandVar }

// IsConst reports whether the operand is a numeric constant.
func (o Operand) IsConst() bool { return o.kind == operandInt || o.kind == operandFloat }

// Key returns the variable key of a variable operand.
func (o Operand) Key() string { return o.key }

// Value returns the numeric value of a constant operand.
func (o Operand) Value() float64 {
	if o.kind == operandInt {
		return float64(o.i)
	}
	return o.f
}

func (o Operand) String() string {
	switch o.kind {
	case operandInt:
		return strconv.FormatInt(int64(o.i), 10)
	case operandFloat:
		return strconv.FormatFloat(o.f, 'g', -1, 64)
	case operandVar:
		return o.key
	default:
		return "<none>"
	}
}

// CondID is a handle into the solver's condition arena. NoCondition marks an
// unconditional constraint.
type CondID int

// NoCondition is the zero CondID.
const NoCondition CondID = 0

// Condition gates a constraint: it holds while the feasible region of Var
// still intersects the relation "Var Op RHS". An Otherwise condition holds
// when no other condition guarding the same left-hand variable does.
//
// And chains a further condition that must hold as well; relations on the
// same variable are intersected before the test, so a chain of ">= lo" and
// "< hi" describes a band.
type Condition struct {
	Var       string
	Op        Op
	RHS       Operand
	Otherwise bool
	And       CondID
}

// When builds a condition on a constant relation.
func When(key string, op Op, rhs Operand) Condition {
	return Condition{Var: key, Op: op, RHS: rhs}
}

// Otherwise is the fallback condition of a group.
func Otherwise() Condition {
	return Condition{Otherwise: true}
}

func (c Condition) String() string {
	if c.Otherwise {
		return "otherwise"
	}
	if c.And != NoCondition {
		return fmt.Sprintf("%s %s %s and #%d", c.Var, c.Op, c.RHS, c.And)
	}
	return fmt.Sprintf("%s %s %s", c.Var, c.Op, c.RHS)
}

// ConstraintID identifies a constraint for its whole lifetime in a solver.
type ConstraintID int

// Constraint is the relation "LHS Op RHS", optionally gated by a condition.
// Constraints sharing a CondID form one branch: inside a branch they are
// intersected, across branches of the same LHS they are unioned.
type Constraint struct {
	LHS  string
	Op   Op
	RHS  Operand
	Cond CondID
}

// Constr builds an unconditional constraint from a textual operator.
func Constr(lhs, op string, rhs Operand) (Constraint, error) {
	parsed, err := ParseOp(op)
	if err != nil {
		return Constraint{}, err
	}
	return Constraint{LHS: lhs, Op: parsed, RHS: rhs}, nil
}

// IsConditional reports whether the constraint is gated by a condition.
func (c Constraint) IsConditional() bool { return c.Cond != NoCondition }

func (c Constraint) String() string {
	if c.IsConditional() {
		return fmt.Sprintf("%s %s %s if #%d", c.LHS, c.Op, c.RHS, c.Cond)
	}
	return fmt.Sprintf("%s %s %s", c.LHS, c.Op, c.RHS)
}

// ConstraintRecord pairs a registered constraint with its identifier.
type ConstraintRecord struct {
	ID         ConstraintID
	Constraint Constraint
}
