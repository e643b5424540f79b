package core

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrTransceiverExists   = errors.New("transceiver model already exists")
	ErrTransceiverNotFound = errors.New("transceiver model not found")
)

// RadioCountRecorder receives the number of radios after every change.
type RadioCountRecorder interface {
	SetRadioCount(n int)
}

// KBOption customises a KnowledgeBase.
type KBOption func(*KnowledgeBase)

// WithRadioCountRecorder reports the radio count, e.g. to a Prometheus gauge.
func WithRadioCountRecorder(r RadioCountRecorder) KBOption {
	return func(kb *KnowledgeBase) { kb.metrics = r }
}

// WithRadioDefaults supplies options applied to every radio the knowledge
// base creates, before the per-call options.
func WithRadioDefaults(fn func(radioID string) []RadioOption) KBOption {
	return func(kb *KnowledgeBase) { kb.radioDefaults = fn }
}

// KnowledgeBase stores transceiver models and the radios built from them.
//
// It is concurrency-safe via an internal RWMutex; radios guard their own
// solver state.
type KnowledgeBase struct {
	mu sync.RWMutex

	transceivers map[string]*TransceiverModel
	radios       map[string]*Radio

	metrics       RadioCountRecorder
	radioDefaults func(radioID string) []RadioOption
}

// NewKnowledgeBase creates an empty knowledge base.
func NewKnowledgeBase(opts ...KBOption) *KnowledgeBase {
	kb := &KnowledgeBase{
		transceivers: make(map[string]*TransceiverModel),
		radios:       make(map[string]*Radio),
	}
	for _, opt := range opts {
		opt(kb)
	}
	return kb
}

//
// ---------- Transceiver models ----------
//

// AddTransceiverModel validates and stores trx.
func (kb *KnowledgeBase) AddTransceiverModel(trx *TransceiverModel) error {
	if err := trx.Validate(); err != nil {
		return err
	}

	kb.mu.Lock()
	defer kb.mu.Unlock()

	if _, exists := kb.transceivers[trx.ID]; exists {
		return fmt.Errorf("%w: %q", ErrTransceiverExists, trx.ID)
	}
	kb.transceivers[trx.ID] = trx
	return nil
}

// GetTransceiverModel returns a model by ID, or nil if not found.
func (kb *KnowledgeBase) GetTransceiverModel(id string) *TransceiverModel {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return kb.transceivers[id]
}

// ListTransceiverModels returns all models ordered by ID.
func (kb *KnowledgeBase) ListTransceiverModels() []*TransceiverModel {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	out := make([]*TransceiverModel, 0, len(kb.transceivers))
	for _, trx := range kb.transceivers {
		out = append(out, trx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

//
// ---------- Radios ----------
//

// AddRadio builds a radio of transceiver model modelID and stores it.
func (kb *KnowledgeBase) AddRadio(id, modelID string, opts ...RadioOption) (*Radio, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty radio ID", ErrRadioBadInput)
	}

	kb.mu.Lock()
	defer kb.mu.Unlock()

	if _, exists := kb.radios[id]; exists {
		return nil, fmt.Errorf("%w: %q", ErrRadioExists, id)
	}
	model, ok := kb.transceivers[modelID]
	if !ok {
		return nil, fmt.Errorf("%w: radio %q references %q", ErrTransceiverNotFound, id, modelID)
	}

	var all []RadioOption
	if kb.radioDefaults != nil {
		all = append(all, kb.radioDefaults(id)...)
	}
	all = append(all, opts...)

	radio, err := NewRadio(id, model, all...)
	if err != nil {
		return nil, err
	}
	kb.radios[id] = radio
	kb.recordLocked()
	return radio, nil
}

// GetRadio returns a radio by ID.
func (kb *KnowledgeBase) GetRadio(id string) (*Radio, error) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	radio, ok := kb.radios[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrRadioNotFound, id)
	}
	return radio, nil
}

// ListRadios returns all radios ordered by ID.
func (kb *KnowledgeBase) ListRadios() []*Radio {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	out := make([]*Radio, 0, len(kb.radios))
	for _, r := range kb.radios {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// DeleteRadio removes a radio and its metric series.
func (kb *KnowledgeBase) DeleteRadio(id string) error {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	radio, ok := kb.radios[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrRadioNotFound, id)
	}
	delete(kb.radios, id)
	radio.close()
	kb.recordLocked()
	return nil
}

// recordLocked must be called with kb.mu held.
func (kb *KnowledgeBase) recordLocked() {
	if kb.metrics != nil {
		kb.metrics.SetRadioCount(len(kb.radios))
	}
}
