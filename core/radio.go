package core

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/signalsfoundry/radio-emulator/configurator"
	"github.com/signalsfoundry/radio-emulator/csp"
	"github.com/signalsfoundry/radio-emulator/internal/logging"
)

var (
	ErrRadioExists      = errors.New("radio already exists")
	ErrRadioNotFound    = errors.New("radio not found")
	ErrRadioBadInput    = errors.New("invalid radio")
	ErrReadbackMismatch = errors.New("hardware read-back outside lock tolerance")
)

// Actuator applies a parameter value to hardware and returns the value the
// hardware reports back.
type Actuator interface {
	Apply(ctx context.Context, param string, value float64) (float64, error)
}

// SimulatedActuator stands in for radio hardware. Values are quantised to the
// per-parameter step, the way a synthesizer or gain table would round them.
type SimulatedActuator struct {
	mu     sync.Mutex
	steps  map[string]float64
	values map[string]float64
}

// NewSimulatedActuator returns an actuator quantising param values to
// steps[param]; parameters without a step are applied exactly.
func NewSimulatedActuator(steps map[string]float64) *SimulatedActuator {
	cp := make(map[string]float64, len(steps))
	for k, v := range steps {
		cp[k] = v
	}
	return &SimulatedActuator{steps: cp, values: make(map[string]float64)}
}

// Apply stores the quantised value and returns it.
func (a *SimulatedActuator) Apply(ctx context.Context, param string, value float64) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	actual := value
	if step := a.steps[param]; step > 0 {
		actual = math.Round(value/step) * step
	}
	a.values[param] = actual
	return actual, nil
}

// Value returns the last applied value of param.
func (a *SimulatedActuator) Value(param string) (float64, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	v, ok := a.values[param]
	return v, ok
}

type radioOptions struct {
	actuator      Actuator
	log           logging.Logger
	observer      csp.PropagationObserver
	lockMetrics   configurator.MetricsRecorder
	maxIterations int
}

// RadioOption customises NewRadio.
type RadioOption func(*radioOptions)

// WithActuator replaces the default exact SimulatedActuator.
func WithActuator(a Actuator) RadioOption {
	return func(o *radioOptions) { o.actuator = a }
}

// WithRadioLogger attaches a logger to the radio and its solver.
func WithRadioLogger(l logging.Logger) RadioOption {
	return func(o *radioOptions) { o.log = l }
}

// WithPropagationObserver reports every propagation of the radio's solver.
func WithPropagationObserver(obs csp.PropagationObserver) RadioOption {
	return func(o *radioOptions) { o.observer = obs }
}

// WithLockMetrics reports lock outcomes of the radio.
func WithLockMetrics(m configurator.MetricsRecorder) RadioOption {
	return func(o *radioOptions) { o.lockMetrics = m }
}

// WithMaxIterations overrides the solver's propagation budget.
func WithMaxIterations(n int) RadioOption {
	return func(o *radioOptions) { o.maxIterations = n }
}

// ConfigureResult is the outcome of Radio.Configure.
type ConfigureResult struct {
	configurator.LockResult
	// Actual is the value read back from the actuator when the lock held.
	Actual float64
}

// Radio is one emulated device: a transceiver model, its own solver and lock
// layer, and an actuator. All methods are safe for concurrent use.
type Radio struct {
	ID    string
	Model *TransceiverModel

	mu       sync.Mutex
	cfg      *configurator.Configurator
	actuator Actuator
	metrics  configurator.MetricsRecorder
	log      logging.Logger
}

// NewRadio builds a radio of the given model and imposes the model's
// constraints on a fresh solver.
func NewRadio(id string, model *TransceiverModel, opts ...RadioOption) (*Radio, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty radio ID", ErrRadioBadInput)
	}
	if model == nil {
		return nil, fmt.Errorf("%w: radio %q has no transceiver model", ErrRadioBadInput, id)
	}

	o := radioOptions{log: logging.Noop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logging.Noop()
	}
	if o.actuator == nil {
		o.actuator = NewSimulatedActuator(nil)
	}
	log := logging.ForRadio(o.log, id).With(logging.String("transceiver", model.ID))

	solverOpts := []csp.Option{csp.WithLogger(log)}
	if o.maxIterations > 0 {
		solverOpts = append(solverOpts, csp.WithMaxIterations(o.maxIterations))
	}
	if o.observer != nil {
		solverOpts = append(solverOpts, csp.WithObserver(o.observer))
	}
	cfgOpts := []configurator.Option{configurator.WithLogger(log)}
	if o.lockMetrics != nil {
		cfgOpts = append(cfgOpts, configurator.WithMetrics(o.lockMetrics))
	}

	cfg := configurator.New(csp.NewSolver(solverOpts...), cfgOpts...)
	if err := model.ImposeConstraints(cfg); err != nil {
		return nil, fmt.Errorf("radio %q: %w", id, err)
	}
	if empty := cfg.Solver().EmptyVars(); len(empty) > 0 {
		return nil, fmt.Errorf("%w: transceiver %q is unsatisfiable for %v", ErrTransceiverBadInput, model.ID, empty)
	}

	return &Radio{
		ID:       id,
		Model:    model,
		cfg:      cfg,
		actuator: o.actuator,
		metrics:  o.lockMetrics,
		log:      log,
	}, nil
}

// Params lists the radio's parameter names in lexical order.
func (r *Radio) Params() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg.Params()
}

// Lock validates and records a lock without touching hardware.
func (r *Radio) Lock(ctx context.Context, param string, value, tol float64) (configurator.LockResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg.Lock(ctx, param, value, tol)
}

// Unlock releases one lock.
func (r *Radio) Unlock(ctx context.Context, param string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg.Unlock(ctx, param)
}

// UnlockAll releases every lock.
func (r *Radio) UnlockAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg.UnlockAll(ctx)
}

// Ranges returns the feasible region of param.
func (r *Radio) Ranges(param string) (csp.Region, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg.RangesPossible(param)
}

// AllRanges returns the feasible region of every parameter.
func (r *Radio) AllRanges() map[string]csp.Region {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]csp.Region)
	for _, p := range r.cfg.Params() {
		if region, err := r.cfg.RangesPossible(p); err == nil {
			out[p] = region
		}
	}
	return out
}

// IsLocked reports whether param is locked.
func (r *Radio) IsLocked(param string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg.IsLocked(param)
}

// Locks returns the active locks.
func (r *Radio) Locks() []configurator.Lock {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg.Locks()
}

// Configure locks param, applies it through the actuator and compares the
// read-back value with the lock. Hardware is only touched when the lock is
// feasible. On an actuator error or a read-back outside value±tol the
// parameter returns to its previous lock, or is unlocked if it had none.
func (r *Radio) Configure(ctx context.Context, param string, value, tol float64) (ConfigureResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var prev *configurator.Lock
	if v, t, ok := r.cfg.LockedValue(param); ok {
		prev = &configurator.Lock{Param: param, Value: v, Tolerance: t}
	}

	res, err := r.cfg.Lock(ctx, param, value, tol)
	if err != nil || !res.Locked {
		return ConfigureResult{LockResult: res}, err
	}

	actual, err := r.actuator.Apply(ctx, param, value)
	if err != nil {
		r.restore(ctx, param, prev, false)
		return ConfigureResult{}, fmt.Errorf("apply %s on radio %q: %w", param, r.ID, err)
	}
	if math.Abs(actual-value) > tol+r.Model.tolerance() {
		r.restore(ctx, param, prev, true)
		r.log.Warn(ctx, "read-back mismatch",
			logging.Param(param),
			logging.Float64("requested", value),
			logging.Float64("actual", actual),
			logging.Float64("tolerance", tol),
		)
		return ConfigureResult{Actual: actual}, fmt.Errorf("%w: %s on radio %q: requested %g±%g, read back %g",
			ErrReadbackMismatch, param, r.ID, value, tol, actual)
	}

	r.log.Info(ctx, "parameter configured",
		logging.Param(param),
		logging.Float64("actual", actual),
	)
	return ConfigureResult{LockResult: res, Actual: actual}, nil
}

// restore undoes a failed Configure. With reapply set the hardware was
// written, so a previous lock is also driven back onto the actuator.
func (r *Radio) restore(ctx context.Context, param string, prev *configurator.Lock, reapply bool) {
	if prev == nil {
		if err := r.cfg.Unlock(ctx, param); err != nil {
			r.log.Error(ctx, "unlock after failed configure", logging.Param(param), logging.Err(err))
		}
		return
	}

	res, err := r.cfg.Lock(ctx, param, prev.Value, prev.Tolerance)
	if err != nil || !res.Locked {
		r.log.Error(ctx, "restore previous lock after failed configure",
			logging.Param(param),
			logging.Float64("value", prev.Value),
			logging.String("diagnostic", res.Diagnostic),
			logging.Err(err),
		)
		return
	}
	if !reapply {
		return
	}
	if _, err := r.actuator.Apply(ctx, param, prev.Value); err != nil {
		r.log.Error(ctx, "re-apply previous value after failed configure",
			logging.Param(param),
			logging.Float64("value", prev.Value),
			logging.Err(err),
		)
	}
}

// close drops per-radio metric series.
func (r *Radio) close() {
	if f, ok := r.metrics.(interface{ Forget() }); ok {
		f.Forget()
	}
}
