// Package configurator maps named configuration parameters onto solver
// variables and lets callers lock them to a value only when the whole
// constraint graph stays feasible.
package configurator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"

	"github.com/signalsfoundry/radio-emulator/csp"
	"github.com/signalsfoundry/radio-emulator/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/signalsfoundry/radio-emulator/configurator"

var (
	// ErrUnknownParam is returned for names that were never added.
	ErrUnknownParam = errors.New("unknown configuration parameter")
	// ErrParamExists is returned when a name is added twice.
	ErrParamExists = errors.New("configuration parameter already exists")
)

// MetricsRecorder receives lock outcomes.
type MetricsRecorder interface {
	ObserveLock(param string, locked bool)
	SetLockedParams(n int)
}

// Option customises a Configurator.
type Option func(*Configurator)

// WithLogger attaches a structured logger.
func WithLogger(l logging.Logger) Option {
	return func(c *Configurator) {
		if l != nil {
			c.log = l
		}
	}
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(c *Configurator) { c.metrics = m }
}

// Lock is an active lock on one parameter.
type Lock struct {
	Param     string
	Value     float64
	Tolerance float64

	ids         []csp.ConstraintID
	constraints []csp.Constraint
}

// LockResult reports the outcome of a lock attempt. A rejected lock is not an
// error: Locked is false and Diagnostic names the variables that would have
// no feasible value.
type LockResult struct {
	Locked     bool
	Diagnostic string
	EmptyVars  []string
}

// Configurator is the lock layer over one solver. It is not safe for
// concurrent use.
type Configurator struct {
	solver  *csp.Solver
	params  map[string]string
	locks   map[string]*Lock
	log     logging.Logger
	metrics MetricsRecorder
}

// New wraps solver. The solver's variables are expected to be registered
// already; parameters are attached with AddParam.
func New(solver *csp.Solver, opts ...Option) *Configurator {
	c := &Configurator{
		solver: solver,
		params: make(map[string]string),
		locks:  make(map[string]*Lock),
		log:    logging.Noop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Solver exposes the underlying solver for read access.
func (c *Configurator) Solver() *csp.Solver { return c.solver }

// AddParam binds name to the solver variable varKey.
func (c *Configurator) AddParam(name, varKey string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: empty parameter name", csp.ErrInvalidArgument)
	}
	if _, exists := c.params[name]; exists {
		return fmt.Errorf("%w: %q", ErrParamExists, name)
	}
	if !c.solver.HasVar(varKey) {
		return fmt.Errorf("%w: parameter %q references unknown variable %q", csp.ErrInvalidArgument, name, varKey)
	}
	c.params[name] = varKey
	return nil
}

// Params returns the parameter names in lexical order.
func (c *Configurator) Params() []string {
	names := make([]string, 0, len(c.params))
	for name := range c.params {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *Configurator) varKey(name string) (string, error) {
	key, ok := c.params[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownParam, name)
	}
	return key, nil
}

// lockConstraints builds the constraints pinning key to value within tol.
func lockConstraints(key string, value, tol float64) []csp.Constraint {
	if tol == 0 {
		return []csp.Constraint{{LHS: key, Op: csp.OpEQ, RHS: csp.Float(value)}}
	}
	return []csp.Constraint{
		{LHS: key, Op: csp.OpGE, RHS: csp.Float(value - tol)},
		{LHS: key, Op: csp.OpLE, RHS: csp.Float(value + tol)},
	}
}

// Lock pins name to [value-tol, value+tol]. If that leaves any variable
// without a feasible value the lock is rolled back, a previous lock on the
// same name is restored and the result reports Locked false. Errors are
// reserved for unknown names, invalid arguments and convergence failures.
func (c *Configurator) Lock(ctx context.Context, name string, value, tol float64) (LockResult, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "configurator.Lock", trace.WithAttributes(
		attribute.String("param", name),
		attribute.Float64("value", value),
		attribute.Float64("tolerance", tol),
	))
	defer span.End()

	res, err := c.lock(ctx, name, value, tol)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return res, err
	}
	span.SetAttributes(attribute.Bool("locked", res.Locked))
	return res, nil
}

func (c *Configurator) lock(ctx context.Context, name string, value, tol float64) (LockResult, error) {
	key, err := c.varKey(name)
	if err != nil {
		return LockResult{}, err
	}
	if math.IsNaN(value) || math.IsInf(value, 0) || math.IsNaN(tol) || math.IsInf(tol, 0) || tol < 0 {
		return LockResult{}, fmt.Errorf("%w: lock %q to %v within %v", csp.ErrInvalidArgument, name, value, tol)
	}

	var previous []csp.ConstraintID
	old := c.locks[name]
	if old != nil {
		previous = old.ids
	}

	alreadyEmpty := c.solver.EmptyVars()
	add := lockConstraints(key, value, tol)
	ids, err := c.solver.Replace(previous, add)
	if err != nil {
		return LockResult{}, c.rollback(ctx, name, ids, old, err)
	}

	if empty := newlyEmpty(c.solver.EmptyVars(), alreadyEmpty); len(empty) > 0 {
		if rbErr := c.rollback(ctx, name, ids, old, nil); rbErr != nil {
			return LockResult{}, rbErr
		}
		res := LockResult{
			Diagnostic: fmt.Sprintf("locking %s to %g (tolerance %g) leaves no feasible value for %s",
				name, value, tol, strings.Join(empty, ", ")),
			EmptyVars: empty,
		}
		c.observe(name, false)
		c.log.Info(ctx, "lock rejected",
			logging.Param(name),
			logging.Float64("value", value),
			logging.Float64("tolerance", tol),
			logging.Any("empty_vars", empty),
		)
		return res, nil
	}

	c.locks[name] = &Lock{Param: name, Value: value, Tolerance: tol, ids: ids, constraints: add}
	c.observe(name, true)
	c.log.Info(ctx, "lock applied",
		logging.Param(name),
		logging.Float64("value", value),
		logging.Float64("tolerance", tol),
		logging.Int("iterations", c.solver.Iterations()),
	)
	return LockResult{Locked: true}, nil
}

// newlyEmpty drops from after the variables that were already empty.
func newlyEmpty(after, before []string) []string {
	var out []string
	for _, key := range after {
		if !slices.Contains(before, key) {
			out = append(out, key)
		}
	}
	return out
}

// rollback removes the constraints of a failed attempt and re-adds the lock
// it replaced, in one propagation.
func (c *Configurator) rollback(ctx context.Context, name string, ids []csp.ConstraintID, old *Lock, cause error) error {
	var restore []csp.Constraint
	if old != nil {
		restore = old.constraints
	}
	restored, err := c.solver.Replace(ids, restore)
	if old != nil && len(restored) == len(old.ids) {
		old.ids = restored
	}
	if cause == nil {
		cause = err
	}
	if cause != nil {
		c.log.Error(ctx, "lock attempt failed",
			logging.Param(name),
			logging.Err(cause),
		)
	}
	return cause
}

// Unlock removes the lock on name. Unlocking an unlocked parameter is a
// no-op.
func (c *Configurator) Unlock(ctx context.Context, name string) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "configurator.Unlock", trace.WithAttributes(
		attribute.String("param", name),
	))
	defer span.End()

	if _, err := c.varKey(name); err != nil {
		span.RecordError(err)
		return err
	}
	l, ok := c.locks[name]
	if !ok {
		return nil
	}
	delete(c.locks, name)
	c.setLocked()
	c.log.Debug(ctx, "lock released", logging.Param(name))

	if err := c.solver.RemoveConstraints(l.ids...); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// UnlockAll releases every lock with a single propagation.
func (c *Configurator) UnlockAll(ctx context.Context) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "configurator.UnlockAll")
	defer span.End()

	var ids []csp.ConstraintID
	for _, l := range c.locks {
		ids = append(ids, l.ids...)
	}
	n := len(c.locks)
	clear(c.locks)
	c.setLocked()
	if n == 0 {
		return nil
	}
	c.log.Debug(ctx, "all locks released", logging.Int("count", n))

	if err := c.solver.RemoveConstraints(ids...); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// RangesPossible returns the current feasible region of name's variable.
func (c *Configurator) RangesPossible(name string) (csp.Region, error) {
	key, err := c.varKey(name)
	if err != nil {
		return csp.Region{}, err
	}
	r, _ := c.solver.FeasibleRegion(key)
	return r, nil
}

// IsLocked reports whether name holds a successful lock.
func (c *Configurator) IsLocked(name string) bool {
	_, ok := c.locks[name]
	return ok
}

// LockedValue returns the value and tolerance of an active lock.
func (c *Configurator) LockedValue(name string) (value, tol float64, ok bool) {
	l, ok := c.locks[name]
	if !ok {
		return 0, 0, false
	}
	return l.Value, l.Tolerance, true
}

// Locks returns the active locks ordered by parameter name.
func (c *Configurator) Locks() []Lock {
	out := make([]Lock, 0, len(c.locks))
	for _, l := range c.locks {
		out = append(out, Lock{Param: l.Param, Value: l.Value, Tolerance: l.Tolerance})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Param < out[j].Param })
	return out
}

func (c *Configurator) observe(name string, locked bool) {
	if c.metrics == nil {
		return
	}
	c.metrics.ObserveLock(name, locked)
	c.metrics.SetLockedParams(len(c.locks))
}

func (c *Configurator) setLocked() {
	if c.metrics != nil {
		c.metrics.SetLockedParams(len(c.locks))
	}
}
