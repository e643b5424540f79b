package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/signalsfoundry/radio-emulator/core"
	"gopkg.in/yaml.v3"
)

// Plan actions.
const (
	ActionLock      = "lock"
	ActionConfigure = "configure"
	ActionUnlock    = "unlock"
	ActionUnlockAll = "unlock_all"
	ActionRanges    = "ranges"
)

// Step outcomes.
const (
	OutcomeLocked   = "locked"
	OutcomeRejected = "rejected"
	OutcomeUnlocked = "unlocked"
	OutcomeRanges   = "ranges"
	OutcomeError    = "error"
)

// Plan is an ordered list of lock operations replayed against a profile.
type Plan struct {
	Steps []Step `yaml:"steps"`
}

// Step is one plan operation. Expect, when set, is compared with the outcome.
type Step struct {
	Radio     string  `yaml:"radio"`
	Action    string  `yaml:"action"`
	Param     string  `yaml:"param,omitempty"`
	Value     float64 `yaml:"value,omitempty"`
	Tolerance float64 `yaml:"tolerance,omitempty"`
	Expect    string  `yaml:"expect,omitempty"`
}

// StepResult is the outcome of one replayed step.
type StepResult struct {
	Index   int
	Step    Step
	Outcome string
	Detail  string
}

// Matched reports whether the outcome meets the step's expectation.
func (r StepResult) Matched() bool {
	return r.Step.Expect == "" || r.Step.Expect == r.Outcome
}

// LoadPlan decodes a YAML plan. Unknown keys are rejected.
func LoadPlan(r io.Reader) (*Plan, error) {
	var p Plan
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	for i, s := range p.Steps {
		if err := s.validate(); err != nil {
			return nil, fmt.Errorf("plan step %d: %w", i+1, err)
		}
	}
	return &p, nil
}

// LoadPlanFile opens and decodes a plan file.
func LoadPlanFile(path string) (*Plan, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open plan: %w", err)
	}
	defer f.Close()
	return LoadPlan(f)
}

func (s Step) validate() error {
	if strings.TrimSpace(s.Radio) == "" {
		return errors.New("radio is required")
	}
	switch s.Action {
	case ActionLock, ActionConfigure, ActionUnlock:
		if s.Param == "" {
			return fmt.Errorf("%s needs a param", s.Action)
		}
	case ActionUnlockAll, ActionRanges:
	default:
		return fmt.Errorf("unknown action %q", s.Action)
	}
	switch s.Expect {
	case "", OutcomeLocked, OutcomeRejected, OutcomeUnlocked, OutcomeRanges, OutcomeError:
	default:
		return fmt.Errorf("unknown expectation %q", s.Expect)
	}
	return nil
}

// Replay runs every step in order. Step failures become OutcomeError results;
// only a cancelled context stops the replay early.
func Replay(ctx context.Context, kb *core.KnowledgeBase, plan *Plan) ([]StepResult, error) {
	results := make([]StepResult, 0, len(plan.Steps))
	for i, step := range plan.Steps {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		outcome, detail := replayStep(ctx, kb, step)
		results = append(results, StepResult{Index: i + 1, Step: step, Outcome: outcome, Detail: detail})
	}
	return results, nil
}

func replayStep(ctx context.Context, kb *core.KnowledgeBase, step Step) (string, string) {
	radio, err := kb.GetRadio(step.Radio)
	if err != nil {
		return OutcomeError, err.Error()
	}

	switch step.Action {
	case ActionLock:
		res, err := radio.Lock(ctx, step.Param, step.Value, step.Tolerance)
		if err != nil {
			return OutcomeError, err.Error()
		}
		if !res.Locked {
			return OutcomeRejected, res.Diagnostic
		}
		return OutcomeLocked, fmt.Sprintf("%s = %g ± %g", step.Param, step.Value, step.Tolerance)

	case ActionConfigure:
		res, err := radio.Configure(ctx, step.Param, step.Value, step.Tolerance)
		if err != nil {
			return OutcomeError, err.Error()
		}
		if !res.Locked {
			return OutcomeRejected, res.Diagnostic
		}
		return OutcomeLocked, fmt.Sprintf("%s = %g, read back %g", step.Param, step.Value, res.Actual)

	case ActionUnlock:
		if err := radio.Unlock(ctx, step.Param); err != nil {
			return OutcomeError, err.Error()
		}
		return OutcomeUnlocked, step.Param

	case ActionUnlockAll:
		if err := radio.UnlockAll(ctx); err != nil {
			return OutcomeError, err.Error()
		}
		return OutcomeUnlocked, "all"

	case ActionRanges:
		params := radio.Params()
		if step.Param != "" {
			params = []string{step.Param}
		}
		parts := make([]string, 0, len(params))
		for _, p := range params {
			region, err := radio.Ranges(p)
			if err != nil {
				return OutcomeError, err.Error()
			}
			parts = append(parts, fmt.Sprintf("%s %s", p, region))
		}
		return OutcomeRanges, strings.Join(parts, "; ")
	}
	return OutcomeError, fmt.Sprintf("unknown action %q", step.Action)
}
