// Package csp implements a constraint-propagation solver over named numeric
// variables.
//
// Every variable owns a feasible region (a union of intervals). Constraints
// relate a variable to a constant or to another variable and may be gated by
// a condition. After every edit the solver resets all regions to their full
// domain and iterates its propagation passes until no region changes:
//
//	conditional  dilation: union of the branches whose condition still holds
//	constant     erosion:  intersect with "x op c"
//	linked       erosion:  intersect both sides of "x op y"
//	reverse      erosion:  keep only condition values whose branch is viable
//
// A propagation that has not reached a fixed point after the configured number
// of iterations fails with ErrMaxPropagationLoops. An empty region is not an
// error; it is reported through IsEmptyForVar and EmptyVars.
//
// Solvers are not safe for concurrent use.
package csp

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/signalsfoundry/radio-emulator/internal/logging"
	"github.com/signalsfoundry/radio-emulator/interval"
)

// DefaultMaxIterations bounds a propagation when no WithMaxIterations option
// is given.
const DefaultMaxIterations = 1000

var (
	// ErrInvalidArgument reports a malformed variable, condition or constraint.
	ErrInvalidArgument = interval.ErrInvalidArgument
	// ErrMaxPropagationLoops reports a constraint graph that does not converge.
	ErrMaxPropagationLoops = errors.New("erroneous state: max propagation loops exceeded")
)

// PropagationObserver receives one call per propagation run.
type PropagationObserver interface {
	ObservePropagation(iterations int, elapsed time.Duration, err error)
}

// Option customises Solver construction.
type Option func(*Solver)

// WithMaxIterations overrides DefaultMaxIterations. Values below one are
// ignored.
func WithMaxIterations(n int) Option {
	return func(s *Solver) {
		if n > 0 {
			s.maxIterations = n
		}
	}
}

// WithObserver attaches a propagation observer, typically a metrics collector.
func WithObserver(o PropagationObserver) Option {
	return func(s *Solver) {
		s.observer = o
	}
}

// WithLogger attaches a structured logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Solver) {
		if l != nil {
			s.log = l
		}
	}
}

type variable struct {
	key  string
	kind Kind
	tol  float64
}

func (v *variable) full() Region {
	if v.kind == KindInt {
		return IntRegion(interval.FullSet[int32](0))
	}
	return FloatRegion(interval.FullSet(v.tol))
}

// relation returns the region allowed by "v op c". Strict relations nudge the
// bound by one for integers and by one ULP for floats; float bounds applied to
// integer variables round inward.
func (v *variable) relation(op Op, c float64) Region {
	if math.IsNaN(c) {
		return emptyRegion(v.kind)
	}
	if v.kind == KindInt {
		lo, hi := float64(math.MinInt32), float64(math.MaxInt32)
		switch op {
		case OpGE:
			lo = math.Ceil(c)
		case OpGT:
			lo = math.Floor(c) + 1
		case OpLE:
			hi = math.Floor(c)
		case OpLT:
			hi = math.Ceil(c) - 1
		case OpEQ:
			if c != math.Trunc(c) {
				return emptyRegion(KindInt)
			}
			lo, hi = c, c
		}
		if (op == OpEQ || op == OpGE || op == OpGT) && lo > math.MaxInt32 {
			return emptyRegion(KindInt)
		}
		if (op == OpEQ || op == OpLE || op == OpLT) && hi < math.MinInt32 {
			return emptyRegion(KindInt)
		}
		iv, ok := intBounds(lo, hi)
		if !ok {
			return emptyRegion(KindInt)
		}
		return IntRegion(interval.NewSet(iv))
	}

	lo, hi := interval.Limits[float64]()
	switch op {
	case OpGE:
		lo = math.Max(lo, c)
	case OpGT:
		lo = math.Max(lo, math.Nextafter(c, math.Inf(1)))
	case OpLE:
		hi = math.Min(hi, c)
	case OpLT:
		hi = math.Min(hi, math.Nextafter(c, math.Inf(-1)))
	case OpEQ:
		lo, hi = c, c
	}
	if math.IsInf(lo, 0) || math.IsInf(hi, 0) {
		return emptyRegion(KindFloat)
	}
	iv, err := interval.NewFloat(lo, hi, v.tol)
	if err != nil {
		return emptyRegion(KindFloat)
	}
	return FloatRegion(interval.NewSet(iv))
}

// linked returns the region allowed by "v op other" given other's current
// region: order relations use the relevant bound, equality uses the whole
// set.
func (v *variable) linked(op Op, other Region) Region {
	if other.IsEmpty() {
		return emptyRegion(v.kind)
	}
	switch op {
	case OpGE, OpGT:
		return v.relation(op, other.Min())
	case OpLE, OpLT:
		return v.relation(op, other.Max())
	default:
		return other.convertTo(v.kind, v.tol)
	}
}

// Solver owns variables, conditions and constraints, and the feasible regions
// implied by them.
type Solver struct {
	maxIterations int

	vars  map[string]*variable
	order []string

	// conds is the condition arena; index 0 is NoCondition.
	conds []Condition

	constraints []ConstraintRecord
	nextID      ConstraintID

	limits         FeasibleRegionLimits
	lastIterations int

	observer PropagationObserver
	log      logging.Logger
}

// NewSolver returns an empty solver.
func NewSolver(opts ...Option) *Solver {
	s := &Solver{
		maxIterations: DefaultMaxIterations,
		vars:          make(map[string]*variable),
		conds:         []Condition{{}},
		limits:        make(FeasibleRegionLimits),
		log:           logging.Noop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MaxIterations returns the propagation iteration budget.
func (s *Solver) MaxIterations() int { return s.maxIterations }

// AddVar registers an integer variable with the full int32 domain.
func (s *Solver) AddVar(key string) error {
	return s.addVar(&variable{key: key, kind: KindInt})
}

// AddFloatVar registers a float variable with the full float64 domain and the
// given comparison tolerance.
func (s *Solver) AddFloatVar(key string, tol float64) error {
	if tol < 0 || math.IsNaN(tol) || math.IsInf(tol, 0) {
		return fmt.Errorf("%w: variable %q has invalid tolerance %v", ErrInvalidArgument, key, tol)
	}
	return s.addVar(&variable{key: key, kind: KindFloat, tol: tol})
}

func (s *Solver) addVar(v *variable) error {
	if v.key == "" {
		return fmt.Errorf("%w: empty variable key", ErrInvalidArgument)
	}
	if _, exists := s.vars[v.key]; exists {
		return fmt.Errorf("%w: variable %q already exists", ErrInvalidArgument, v.key)
	}
	s.vars[v.key] = v
	s.order = append(s.order, v.key)
	s.limits[v.key] = v.full()
	return nil
}

// HasVar reports whether key is registered.
func (s *Solver) HasVar(key string) bool {
	_, ok := s.vars[key]
	return ok
}

// VarKind returns the kind and tolerance of a registered variable.
func (s *Solver) VarKind(key string) (Kind, float64, bool) {
	v, ok := s.vars[key]
	if !ok {
		return 0, 0, false
	}
	return v.kind, v.tol, true
}

// Vars returns the variable keys in registration order.
func (s *Solver) Vars() []string { return slices.Clone(s.order) }

// AddCondition stores cond in the arena and returns its handle. Conditions
// compare a registered variable with a constant; Otherwise needs no variable
// and cannot be chained.
func (s *Solver) AddCondition(cond Condition) (CondID, error) {
	if cond.Otherwise {
		if cond.And != NoCondition {
			return NoCondition, fmt.Errorf("%w: otherwise condition cannot be chained", ErrInvalidArgument)
		}
	} else {
		if _, ok := s.vars[cond.Var]; !ok {
			return NoCondition, fmt.Errorf("%w: condition references unknown variable %q", ErrInvalidArgument, cond.Var)
		}
		if !cond.Op.Valid() {
			return NoCondition, fmt.Errorf("%w: condition on %q has unsupported operator", ErrInvalidArgument, cond.Var)
		}
		if !cond.RHS.IsConst() {
			return NoCondition, fmt.Errorf("%w: condition on %q must compare with a constant", ErrInvalidArgument, cond.Var)
		}
		if cond.And != NoCondition {
			next, ok := s.Condition(cond.And)
			if !ok || next.Otherwise {
				return NoCondition, fmt.Errorf("%w: condition on %q chains invalid condition #%d", ErrInvalidArgument, cond.Var, cond.And)
			}
		}
	}
	s.conds = append(s.conds, cond)
	return CondID(len(s.conds) - 1), nil
}

// AddConditions stores the conjunction of conds and returns the handle of
// the whole chain.
func (s *Solver) AddConditions(conds ...Condition) (CondID, error) {
	if len(conds) == 0 {
		return NoCondition, fmt.Errorf("%w: empty condition list", ErrInvalidArgument)
	}
	id := NoCondition
	for _, cond := range conds {
		cond.And = id
		next, err := s.AddCondition(cond)
		if err != nil {
			return NoCondition, err
		}
		id = next
	}
	return id, nil
}

// Condition returns the condition stored under id.
func (s *Solver) Condition(id CondID) (Condition, bool) {
	if id <= NoCondition || int(id) >= len(s.conds) {
		return Condition{}, false
	}
	return s.conds[id], true
}

// AddConstr appends c and propagates.
func (s *Solver) AddConstr(c Constraint) (ConstraintID, error) {
	ids, err := s.Replace(nil, []Constraint{c})
	if len(ids) == 0 {
		return 0, err
	}
	return ids[0], err
}

// AddConstraints appends all constraints and propagates once. Validation
// happens up front: if any constraint is invalid nothing is added.
func (s *Solver) AddConstraints(cs ...Constraint) ([]ConstraintID, error) {
	return s.Replace(nil, cs)
}

// RemoveConstr deletes the constraint with the given id and propagates. It
// reports whether the id was registered.
func (s *Solver) RemoveConstr(id ConstraintID) (bool, error) {
	if !slices.ContainsFunc(s.constraints, func(rec ConstraintRecord) bool { return rec.ID == id }) {
		return false, nil
	}
	_, err := s.Replace([]ConstraintID{id}, nil)
	return true, err
}

// RemoveConstraint deletes the first constraint equal to c and propagates. It
// reports whether a constraint was removed.
func (s *Solver) RemoveConstraint(c Constraint) (bool, error) {
	for _, rec := range s.constraints {
		if rec.Constraint == c {
			return s.RemoveConstr(rec.ID)
		}
	}
	return false, nil
}

// RemoveConstraints deletes the constraints with the given ids and propagates
// once. Unknown ids are ignored.
func (s *Solver) RemoveConstraints(ids ...ConstraintID) error {
	_, err := s.Replace(ids, nil)
	return err
}

// Replace removes the constraints in remove, appends add and propagates once.
// It is the primitive behind every constraint edit. New constraints are
// validated before anything changes. A propagation error leaves the edit in
// place and is returned alongside the new ids.
func (s *Solver) Replace(remove []ConstraintID, add []Constraint) ([]ConstraintID, error) {
	for _, c := range add {
		if err := s.validate(c); err != nil {
			return nil, err
		}
	}

	if len(remove) > 0 {
		s.constraints = slices.DeleteFunc(s.constraints, func(rec ConstraintRecord) bool {
			return slices.Contains(remove, rec.ID)
		})
	}

	ids := make([]ConstraintID, 0, len(add))
	for _, c := range add {
		s.nextID++
		s.constraints = append(s.constraints, ConstraintRecord{ID: s.nextID, Constraint: c})
		ids = append(ids, s.nextID)
	}

	return ids, s.Propagate()
}

func (s *Solver) validate(c Constraint) error {
	if _, ok := s.vars[c.LHS]; !ok {
		return fmt.Errorf("%w: constraint references unknown variable %q", ErrInvalidArgument, c.LHS)
	}
	if !c.Op.Valid() {
		return fmt.Errorf("%w: constraint on %q has unsupported operator", ErrInvalidArgument, c.LHS)
	}
	switch {
	case c.RHS.IsVar():
		if _, ok := s.vars[c.RHS.Key()]; !ok {
			return fmt.Errorf("%w: constraint references unknown variable %q", ErrInvalidArgument, c.RHS.Key())
		}
		if c.IsConditional() {
			return fmt.Errorf("%w: conditional constraint on %q must compare with a constant", ErrInvalidArgument, c.LHS)
		}
	case !c.RHS.IsConst():
		return fmt.Errorf("%w: constraint on %q has no right-hand side", ErrInvalidArgument, c.LHS)
	}
	if c.IsConditional() {
		if _, ok := s.Condition(c.Cond); !ok {
			return fmt.Errorf("%w: constraint on %q references unknown condition #%d", ErrInvalidArgument, c.LHS, c.Cond)
		}
	}
	return nil
}

// Constraints returns the registered constraints in insertion order.
func (s *Solver) Constraints() []ConstraintRecord { return slices.Clone(s.constraints) }

// FeasibleRegionLimits returns a copy of every variable's current region.
func (s *Solver) FeasibleRegionLimits() FeasibleRegionLimits { return s.limits.Clone() }

// FeasibleRegion returns the current region of key.
func (s *Solver) FeasibleRegion(key string) (Region, bool) {
	r, ok := s.limits[key]
	return r, ok
}

// FeasibleRegionMin returns the smallest feasible value of key, or NaN when
// key is unknown or its region is empty.
func (s *Solver) FeasibleRegionMin(key string) float64 {
	r, ok := s.limits[key]
	if !ok {
		return math.NaN()
	}
	return r.Min()
}

// FeasibleRegionMax returns the largest feasible value of key, or NaN when
// key is unknown or its region is empty.
func (s *Solver) FeasibleRegionMax(key string) float64 {
	r, ok := s.limits[key]
	if !ok {
		return math.NaN()
	}
	return r.Max()
}

// IsEmptyForVar reports whether propagation proved that key has no feasible
// value. Unknown keys report false.
func (s *Solver) IsEmptyForVar(key string) bool {
	r, ok := s.limits[key]
	return ok && r.IsEmpty()
}

// EmptyVars returns, in registration order, the variables whose region is
// empty.
func (s *Solver) EmptyVars() []string {
	var out []string
	for _, key := range s.order {
		if s.limits[key].IsEmpty() {
			out = append(out, key)
		}
	}
	return out
}

// Iterations returns the number of iterations the last propagation used.
func (s *Solver) Iterations() int { return s.lastIterations }

// Propagate recomputes every feasible region from scratch.
func (s *Solver) Propagate() error {
	start := time.Now()
	iterations, err := s.propagate()
	s.lastIterations = iterations

	if s.observer != nil {
		s.observer.ObservePropagation(iterations, time.Since(start), err)
	}
	if err != nil {
		s.log.Error(context.Background(), "constraint propagation did not converge",
			logging.Int("iterations", iterations),
			logging.Int("constraints", len(s.constraints)),
			logging.Err(err),
		)
		return err
	}
	s.log.Debug(context.Background(), "constraint propagation reached fixed point",
		logging.Int("iterations", iterations),
		logging.Int("constraints", len(s.constraints)),
	)
	return nil
}
