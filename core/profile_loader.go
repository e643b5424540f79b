package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Profile is a summary of what LoadProfile added.
type Profile struct {
	TransceiverIDs []string
	RadioIDs       []string
	// Rejected lists initial locks that were infeasible, as "radio/param: diagnostic".
	Rejected []string
}

// internal file shapes; unexported so they can evolve freely.
type profileFile struct {
	Transceivers []TransceiverModel `json:"transceivers" yaml:"transceivers"`
	Radios       []radioFile        `json:"radios" yaml:"radios"`
}

type radioFile struct {
	ID            string     `json:"id" yaml:"id"`
	TransceiverID string     `json:"transceiver_id" yaml:"transceiver_id"`
	Locks         []lockFile `json:"locks,omitempty" yaml:"locks,omitempty"`
}

type lockFile struct {
	Param     string  `json:"param" yaml:"param"`
	Value     float64 `json:"value" yaml:"value"`
	Tolerance float64 `json:"tolerance,omitempty" yaml:"tolerance,omitempty"`
}

// Format names accepted by LoadProfile.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// FormatFromPath picks a profile format from a file extension.
func FormatFromPath(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported profile extension %q", filepath.Ext(path))
	}
}

// LoadProfile reads transceiver models and radios from r and adds them to kb.
// The whole profile is checked before kb is touched, so a malformed entry
// leaves kb unchanged. Models are added before radios; initial locks run
// after each radio is built. Infeasible initial locks are reported in
// Profile.Rejected rather than failing the load.
func LoadProfile(ctx context.Context, kb *KnowledgeBase, r io.Reader, format string) (*Profile, error) {
	if kb == nil {
		return nil, fmt.Errorf("LoadProfile: kb is nil")
	}

	var payload profileFile
	switch strings.ToLower(format) {
	case FormatJSON:
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&payload); err != nil {
			return nil, fmt.Errorf("LoadProfile: decode json: %w", err)
		}
	case FormatYAML, "yml":
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("LoadProfile: decode yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("LoadProfile: unsupported format %q", format)
	}

	if err := checkProfile(ctx, kb, &payload); err != nil {
		return nil, fmt.Errorf("LoadProfile: %w", err)
	}

	result := &Profile{
		TransceiverIDs: make([]string, 0, len(payload.Transceivers)),
		RadioIDs:       make([]string, 0, len(payload.Radios)),
	}

	for i := range payload.Transceivers {
		trx := payload.Transceivers[i]
		if err := kb.AddTransceiverModel(&trx); err != nil {
			return nil, fmt.Errorf("LoadProfile: %w", err)
		}
		result.TransceiverIDs = append(result.TransceiverIDs, trx.ID)
	}

	for _, rf := range payload.Radios {
		radio, err := kb.AddRadio(rf.ID, rf.TransceiverID)
		if err != nil {
			return nil, fmt.Errorf("LoadProfile: %w", err)
		}
		result.RadioIDs = append(result.RadioIDs, rf.ID)

		for _, l := range rf.Locks {
			res, err := radio.Lock(ctx, l.Param, l.Value, l.Tolerance)
			if err != nil {
				return nil, fmt.Errorf("LoadProfile: radio %q: %w", rf.ID, err)
			}
			if !res.Locked {
				result.Rejected = append(result.Rejected, fmt.Sprintf("%s/%s: %s", rf.ID, l.Param, res.Diagnostic))
			}
		}
	}

	return result, nil
}

// checkProfile dry-runs payload against kb without mutating it: models must
// be valid and new, radios must be new and reference a known model, and every
// initial lock must name a real parameter.
func checkProfile(ctx context.Context, kb *KnowledgeBase, payload *profileFile) error {
	models := make(map[string]*TransceiverModel, len(payload.Transceivers))
	for i := range payload.Transceivers {
		trx := &payload.Transceivers[i]
		if err := trx.Validate(); err != nil {
			return err
		}
		if _, dup := models[trx.ID]; dup || kb.GetTransceiverModel(trx.ID) != nil {
			return fmt.Errorf("%w: %q", ErrTransceiverExists, trx.ID)
		}
		models[trx.ID] = trx
	}

	seen := make(map[string]bool, len(payload.Radios))
	for _, rf := range payload.Radios {
		if rf.ID == "" {
			return fmt.Errorf("%w: empty radio ID", ErrRadioBadInput)
		}
		if _, err := kb.GetRadio(rf.ID); seen[rf.ID] || err == nil {
			return fmt.Errorf("%w: %q", ErrRadioExists, rf.ID)
		}
		seen[rf.ID] = true

		model := models[rf.TransceiverID]
		if model == nil {
			model = kb.GetTransceiverModel(rf.TransceiverID)
		}
		if model == nil {
			return fmt.Errorf("%w: radio %q references %q", ErrTransceiverNotFound, rf.ID, rf.TransceiverID)
		}

		scratch, err := NewRadio(rf.ID, model)
		if err != nil {
			return err
		}
		for _, l := range rf.Locks {
			if _, err := scratch.Lock(ctx, l.Param, l.Value, l.Tolerance); err != nil {
				return fmt.Errorf("radio %q: %w", rf.ID, err)
			}
		}
	}
	return nil
}

// LoadProfileFile opens path and loads it with the format implied by its
// extension.
func LoadProfileFile(ctx context.Context, kb *KnowledgeBase, path string) (*Profile, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open profile: %w", err)
	}
	defer f.Close()
	return LoadProfile(ctx, kb, f, format)
}
