package core

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const yamlProfile = `
transceivers:
  - id: wideband
    name: Wideband 2x2
    channels: 2
    tuning_mhz: {min: 70, max: 6000}
    sampling_msps: {min: 0.52, max: 61.44}
    bandwidth_mhz: {min: 0.2, max: 56}
    gain_db: {min: 0, max: 60}
    gain_bands:
      - {from_mhz: 70, to_mhz: 1300, gain_db: {min: 0, max: 73}}
    max_decimation: 8
    decimation_above_msps: 30.72
radios:
  - id: rx0
    transceiver_id: wideband
    locks:
      - {param: sampling_freq_Msps, value: 40}
      - {param: ch0/tuning_freq_MHz, value: 2400, tolerance: 0.5}
  - id: rx1
    transceiver_id: wideband
    locks:
      - {param: ch0/bandwidth_MHz, value: 50}
      - {param: sampling_freq_Msps, value: 20}
`

const jsonProfile = `{
  "transceivers": [{
    "id": "narrow",
    "tuning_mhz": {"min": 400, "max": 500},
    "sampling_msps": {"min": 1, "max": 10},
    "bandwidth_mhz": {"min": 0.1, "max": 5},
    "gain_db": {"min": 0, "max": 30}
  }],
  "radios": [{"id": "uhf", "transceiver_id": "narrow", "locks": [{"param": "ch0/gain_dB", "value": 12}]}]
}`

func TestLoadProfileYAML(t *testing.T) {
	ctx := context.Background()
	kb := NewKnowledgeBase()

	p, err := LoadProfile(ctx, kb, strings.NewReader(yamlProfile), FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, []string{"wideband"}, p.TransceiverIDs)
	assert.Equal(t, []string{"rx0", "rx1"}, p.RadioIDs)
	require.Len(t, p.Rejected, 1)
	assert.True(t, strings.HasPrefix(p.Rejected[0], "rx1/sampling_freq_Msps: "))

	model := kb.GetTransceiverModel("wideband")
	require.NotNil(t, model)
	require.Len(t, model.GainBands, 1)
	assert.Equal(t, 73.0, model.GainBands[0].Gain.Max)

	rx0, err := kb.GetRadio("rx0")
	require.NoError(t, err)
	assert.True(t, rx0.IsLocked(ParamSamplingFreq))
	dec, err := rx0.Ranges("ch1/decimation")
	require.NoError(t, err)
	assert.Equal(t, 2.0, dec.Min())

	rx1, err := kb.GetRadio("rx1")
	require.NoError(t, err)
	assert.True(t, rx1.IsLocked("ch0/bandwidth_MHz"))
	assert.False(t, rx1.IsLocked(ParamSamplingFreq))
}

func TestLoadProfileJSON(t *testing.T) {
	kb := NewKnowledgeBase()
	p, err := LoadProfile(context.Background(), kb, strings.NewReader(jsonProfile), FormatJSON)
	require.NoError(t, err)
	assert.Empty(t, p.Rejected)

	r, err := kb.GetRadio("uhf")
	require.NoError(t, err)
	assert.Len(t, r.Params(), 5)
	assert.True(t, r.IsLocked("ch0/gain_dB"))
}

func TestLoadProfileErrors(t *testing.T) {
	ctx := context.Background()

	_, err := LoadProfile(ctx, nil, strings.NewReader(yamlProfile), FormatYAML)
	require.Error(t, err)

	_, err = LoadProfile(ctx, NewKnowledgeBase(), strings.NewReader(yamlProfile), "toml")
	require.Error(t, err)

	_, err = LoadProfile(ctx, NewKnowledgeBase(), strings.NewReader(`{"transceivers": [], "extra": 1}`), FormatJSON)
	require.Error(t, err)

	_, err = LoadProfile(ctx, NewKnowledgeBase(), strings.NewReader("radios:\n  - id: rx0\n    transceiver_id: ghost\n"), FormatYAML)
	require.ErrorIs(t, err, ErrTransceiverNotFound)

	_, err = LoadProfile(ctx, NewKnowledgeBase(), strings.NewReader("radios:\n  - id: rx0\n    colour: red\n"), FormatYAML)
	require.Error(t, err)

	p, err := LoadProfile(ctx, NewKnowledgeBase(), strings.NewReader(""), FormatYAML)
	require.NoError(t, err)
	assert.Empty(t, p.RadioIDs)
}

func TestLoadProfileUnknownParam(t *testing.T) {
	profile := strings.Replace(jsonProfile, "ch0/gain_dB", "ch3/gain_dB", 1)
	_, err := LoadProfile(context.Background(), NewKnowledgeBase(), strings.NewReader(profile), FormatJSON)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `radio "uhf"`)
}

func TestLoadProfileFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "radios.yml")
	require.NoError(t, os.WriteFile(path, []byte(yamlProfile), 0o600))

	kb := NewKnowledgeBase()
	p, err := LoadProfileFile(context.Background(), kb, path)
	require.NoError(t, err)
	assert.Len(t, p.RadioIDs, 2)

	_, err = LoadProfileFile(context.Background(), kb, filepath.Join(dir, "radios.toml"))
	require.Error(t, err)
	_, err = LoadProfileFile(context.Background(), kb, filepath.Join(dir, "missing.json"))
	require.Error(t, err)
}

func TestFormatFromPath(t *testing.T) {
	for path, want := range map[string]string{
		"a.json": FormatJSON,
		"a.YAML": FormatYAML,
		"b.yml":  FormatYAML,
	} {
		got, err := FormatFromPath(path)
		require.NoError(t, err)
		assert.Equal(t, want, got, path)
	}
	_, err := FormatFromPath("a.txt")
	require.Error(t, err)
}

func TestLoadProfileFailureLeavesKnowledgeBaseUntouched(t *testing.T) {
	ctx := context.Background()
	cases := map[string]string{
		"missing transceiver": yamlProfile + "  - id: rx2\n    transceiver_id: ghost\n",
		"duplicate radio":     yamlProfile + "  - id: rx0\n    transceiver_id: wideband\n",
		"unknown param":       yamlProfile + "  - id: rx2\n    transceiver_id: wideband\n    locks:\n      - {param: ch9/gain_dB, value: 1}\n",
	}
	for name, profile := range cases {
		t.Run(name, func(t *testing.T) {
			rec := &countRecorder{}
			kb := NewKnowledgeBase(WithRadioCountRecorder(rec))

			_, err := LoadProfile(ctx, kb, strings.NewReader(profile), FormatYAML)
			require.Error(t, err)
			assert.Empty(t, kb.ListTransceiverModels())
			assert.Empty(t, kb.ListRadios())
			assert.Empty(t, rec.counts)
		})
	}
}

func TestLoadProfileRejectsClashWithExistingEntries(t *testing.T) {
	ctx := context.Background()
	kb := NewKnowledgeBase()
	require.NoError(t, kb.AddTransceiverModel(testModel()))

	_, err := LoadProfile(ctx, kb, strings.NewReader(yamlProfile), FormatYAML)
	require.ErrorIs(t, err, ErrTransceiverExists)
	assert.Empty(t, kb.ListRadios())

	// radios may reference a model that is already loaded
	p, err := LoadProfile(ctx, kb, strings.NewReader("radios:\n  - id: rx9\n    transceiver_id: wideband\n"), FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, []string{"rx9"}, p.RadioIDs)

	_, err = LoadProfile(ctx, kb, strings.NewReader("radios:\n  - id: rx9\n    transceiver_id: wideband\n"), FormatYAML)
	require.ErrorIs(t, err, ErrRadioExists)
}
