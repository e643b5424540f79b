package core

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/signalsfoundry/radio-emulator/configurator"
	"github.com/signalsfoundry/radio-emulator/csp"
)

// Parameter names exposed by every emulated radio. Per-channel parameters are
// prefixed with the channel, e.g. "ch0/tuning_freq_MHz"; the sampling rate is
// shared by all channels.
const (
	ParamTuningFreq   = "tuning_freq_MHz"
	ParamSamplingFreq = "sampling_freq_Msps"
	ParamBandwidth    = "bandwidth_MHz"
	ParamGain         = "gain_dB"
	ParamDecimation   = "decimation"
)

// DefaultTolerance is the comparison tolerance of float variables when a
// model does not set one.
const DefaultTolerance = 1e-6

var ErrTransceiverBadInput = errors.New("invalid transceiver model")

// Range is a closed [Min, Max] range.
type Range struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

func (r Range) valid() bool {
	return !math.IsNaN(r.Min) && !math.IsNaN(r.Max) && r.Min <= r.Max
}

// GainBand limits the gain while the tuning frequency lies in
// [FromMHz, ToMHz).
type GainBand struct {
	FromMHz float64 `json:"from_mhz" yaml:"from_mhz"`
	ToMHz   float64 `json:"to_mhz" yaml:"to_mhz"`
	Gain    Range   `json:"gain_db" yaml:"gain_db"`
}

// TransceiverModel describes the configurable envelope of a family of radio
// chips.
type TransceiverModel struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`

	// Channels is the number of independently tuned channels. 0 is treated
	// as 1.
	Channels int `json:"channels,omitempty" yaml:"channels,omitempty"`

	TuningMHz    Range `json:"tuning_mhz" yaml:"tuning_mhz"`
	SamplingMsps Range `json:"sampling_msps" yaml:"sampling_msps"`
	BandwidthMHz Range `json:"bandwidth_mhz" yaml:"bandwidth_mhz"`

	// GainDB applies wherever no gain band matches the tuning frequency.
	GainDB    Range      `json:"gain_db" yaml:"gain_db"`
	GainBands []GainBand `json:"gain_bands,omitempty" yaml:"gain_bands,omitempty"`

	// MaxDecimation bounds the integer decimation factor; 0 is treated as 1.
	MaxDecimation int `json:"max_decimation,omitempty" yaml:"max_decimation,omitempty"`
	// DecimationAboveMsps forces a decimation of at least 2 for sampling
	// rates above it. 0 disables the rule.
	DecimationAboveMsps float64 `json:"decimation_above_msps,omitempty" yaml:"decimation_above_msps,omitempty"`

	// Tolerance is the float comparison tolerance; 0 selects DefaultTolerance.
	Tolerance float64 `json:"tolerance,omitempty" yaml:"tolerance,omitempty"`
}

func (tm *TransceiverModel) channels() int {
	if tm.Channels <= 0 {
		return 1
	}
	return tm.Channels
}

func (tm *TransceiverModel) maxDecimation() int {
	if tm.MaxDecimation <= 0 {
		return 1
	}
	return tm.MaxDecimation
}

func (tm *TransceiverModel) tolerance() float64 {
	if tm.Tolerance <= 0 {
		return DefaultTolerance
	}
	return tm.Tolerance
}

// Validate checks the ranges and bands of the model.
func (tm *TransceiverModel) Validate() error {
	if tm == nil || tm.ID == "" {
		return fmt.Errorf("%w: nil or empty transceiver model", ErrTransceiverBadInput)
	}
	for name, r := range map[string]Range{
		"tuning_mhz":    tm.TuningMHz,
		"sampling_msps": tm.SamplingMsps,
		"bandwidth_mhz": tm.BandwidthMHz,
		"gain_db":       tm.GainDB,
	} {
		if !r.valid() {
			return fmt.Errorf("%w: %s: %s range [%v, %v] is inverted", ErrTransceiverBadInput, tm.ID, name, r.Min, r.Max)
		}
	}
	if tm.SamplingMsps.Min <= 0 {
		return fmt.Errorf("%w: %s: sampling rate must be positive", ErrTransceiverBadInput, tm.ID)
	}
	if tm.Channels < 0 || tm.MaxDecimation < 0 || tm.Tolerance < 0 {
		return fmt.Errorf("%w: %s: negative channel count, decimation or tolerance", ErrTransceiverBadInput, tm.ID)
	}
	if tm.DecimationAboveMsps > 0 && tm.maxDecimation() < 2 {
		return fmt.Errorf("%w: %s: decimation_above_msps needs max_decimation >= 2", ErrTransceiverBadInput, tm.ID)
	}

	bands := tm.sortedBands()
	for i, b := range bands {
		if b.FromMHz >= b.ToMHz || !b.Gain.valid() {
			return fmt.Errorf("%w: %s: gain band [%v, %v) is empty or inverted", ErrTransceiverBadInput, tm.ID, b.FromMHz, b.ToMHz)
		}
		if b.FromMHz < tm.TuningMHz.Min || b.ToMHz > tm.TuningMHz.Max {
			return fmt.Errorf("%w: %s: gain band [%v, %v) lies outside the tuning range", ErrTransceiverBadInput, tm.ID, b.FromMHz, b.ToMHz)
		}
		if i > 0 && b.FromMHz < bands[i-1].ToMHz {
			return fmt.Errorf("%w: %s: gain bands overlap at %v MHz", ErrTransceiverBadInput, tm.ID, b.FromMHz)
		}
	}
	return nil
}

func (tm *TransceiverModel) sortedBands() []GainBand {
	bands := append([]GainBand(nil), tm.GainBands...)
	sort.Slice(bands, func(i, j int) bool { return bands[i].FromMHz < bands[j].FromMHz })
	return bands
}

// TuningOverlaps reports whether the tuning ranges of two models overlap.
func (tm *TransceiverModel) TuningOverlaps(other *TransceiverModel) bool {
	return !(tm.TuningMHz.Max < other.TuningMHz.Min || tm.TuningMHz.Min > other.TuningMHz.Max)
}

// ChannelParam returns the parameter name of param on channel ch.
func ChannelParam(ch int, param string) string {
	return fmt.Sprintf("ch%d/%s", ch, param)
}

// ParamNames lists every parameter a radio of this model exposes.
func (tm *TransceiverModel) ParamNames() []string {
	names := []string{ParamSamplingFreq}
	for ch := 0; ch < tm.channels(); ch++ {
		for _, p := range []string{ParamTuningFreq, ParamBandwidth, ParamGain, ParamDecimation} {
			names = append(names, ChannelParam(ch, p))
		}
	}
	return names
}

// ImposeConstraints registers the model's variables and physical
// relationships in the configurator's solver and exposes every variable as a
// parameter of the same name.
func (tm *TransceiverModel) ImposeConstraints(cfg *configurator.Configurator) error {
	if err := tm.Validate(); err != nil {
		return err
	}
	s := cfg.Solver()
	tol := tm.tolerance()

	floatVar := func(key string) error {
		if err := s.AddFloatVar(key, tol); err != nil {
			return err
		}
		return cfg.AddParam(key, key)
	}
	within := func(key string, r Range) []csp.Constraint {
		return []csp.Constraint{
			{LHS: key, Op: csp.OpGE, RHS: csp.Float(r.Min)},
			{LHS: key, Op: csp.OpLE, RHS: csp.Float(r.Max)},
		}
	}

	if err := floatVar(ParamSamplingFreq); err != nil {
		return err
	}
	cs := within(ParamSamplingFreq, tm.SamplingMsps)

	// decimation branches depend only on the shared sampling rate
	var fastCond, slowCond csp.CondID
	if tm.DecimationAboveMsps > 0 {
		var err error
		if fastCond, err = s.AddCondition(csp.When(ParamSamplingFreq, csp.OpGT, csp.Float(tm.DecimationAboveMsps))); err != nil {
			return err
		}
		if slowCond, err = s.AddCondition(csp.When(ParamSamplingFreq, csp.OpLE, csp.Float(tm.DecimationAboveMsps))); err != nil {
			return err
		}
	}

	for ch := 0; ch < tm.channels(); ch++ {
		tuning := ChannelParam(ch, ParamTuningFreq)
		bandwidth := ChannelParam(ch, ParamBandwidth)
		gain := ChannelParam(ch, ParamGain)
		decimation := ChannelParam(ch, ParamDecimation)

		for _, key := range []string{tuning, bandwidth, gain} {
			if err := floatVar(key); err != nil {
				return err
			}
		}
		if err := s.AddVar(decimation); err != nil {
			return err
		}
		if err := cfg.AddParam(decimation, decimation); err != nil {
			return err
		}

		cs = append(cs, within(tuning, tm.TuningMHz)...)
		cs = append(cs, within(bandwidth, tm.BandwidthMHz)...)
		cs = append(cs, csp.Constraint{LHS: bandwidth, Op: csp.OpLE, RHS: csp.Var(ParamSamplingFreq)})

		gainCs, err := tm.gainConstraints(s, tuning, gain)
		if err != nil {
			return err
		}
		cs = append(cs, gainCs...)

		maxDec := csp.Int(int32(tm.maxDecimation()))
		if tm.DecimationAboveMsps > 0 {
			cs = append(cs,
				csp.Constraint{LHS: decimation, Op: csp.OpGE, RHS: csp.Int(2), Cond: fastCond},
				csp.Constraint{LHS: decimation, Op: csp.OpLE, RHS: maxDec, Cond: fastCond},
				csp.Constraint{LHS: decimation, Op: csp.OpGE, RHS: csp.Int(1), Cond: slowCond},
				csp.Constraint{LHS: decimation, Op: csp.OpLE, RHS: maxDec, Cond: slowCond},
			)
		} else {
			cs = append(cs,
				csp.Constraint{LHS: decimation, Op: csp.OpGE, RHS: csp.Int(1)},
				csp.Constraint{LHS: decimation, Op: csp.OpLE, RHS: maxDec},
			)
		}
	}

	_, err := s.AddConstraints(cs...)
	return err
}

// gainConstraints turns the gain bands into conditional constraints on gain.
// The gaps between bands, and the tail above the last one, get branches of
// their own carrying the model-wide GainDB range, so every tuning frequency
// selects exactly one branch.
func (tm *TransceiverModel) gainConstraints(s *csp.Solver, tuning, gain string) ([]csp.Constraint, error) {
	if len(tm.GainBands) == 0 {
		return []csp.Constraint{
			{LHS: gain, Op: csp.OpGE, RHS: csp.Float(tm.GainDB.Min)},
			{LHS: gain, Op: csp.OpLE, RHS: csp.Float(tm.GainDB.Max)},
		}, nil
	}

	var cs []csp.Constraint
	branch := func(gainRange Range, conds ...csp.Condition) error {
		cond, err := s.AddConditions(conds...)
		if err != nil {
			return err
		}
		cs = append(cs,
			csp.Constraint{LHS: gain, Op: csp.OpGE, RHS: csp.Float(gainRange.Min), Cond: cond},
			csp.Constraint{LHS: gain, Op: csp.OpLE, RHS: csp.Float(gainRange.Max), Cond: cond},
		)
		return nil
	}

	cursor := tm.TuningMHz.Min
	for _, b := range tm.sortedBands() {
		if b.FromMHz > cursor {
			if err := branch(tm.GainDB,
				csp.When(tuning, csp.OpGE, csp.Float(cursor)),
				csp.When(tuning, csp.OpLT, csp.Float(b.FromMHz)),
			); err != nil {
				return nil, err
			}
		}
		if err := branch(b.Gain,
			csp.When(tuning, csp.OpGE, csp.Float(b.FromMHz)),
			csp.When(tuning, csp.OpLT, csp.Float(b.ToMHz)),
		); err != nil {
			return nil, err
		}
		cursor = b.ToMHz
	}
	if err := branch(tm.GainDB, csp.When(tuning, csp.OpGE, csp.Float(cursor))); err != nil {
		return nil, err
	}
	return cs, nil
}
