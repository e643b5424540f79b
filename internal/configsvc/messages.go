package configsvc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// ErrInvalidRequest marks malformed request messages.
var ErrInvalidRequest = errors.New("invalid request")

// Request and reply bodies travel as google.protobuf.Struct; these types are
// their Go shape.

// LockRequest asks for a lock on one radio parameter.
type LockRequest struct {
	Radio     string  `json:"radio"`
	Param     string  `json:"param"`
	Value     float64 `json:"value"`
	Tolerance float64 `json:"tolerance,omitempty"`
	// Apply drives the radio's actuator after a feasible lock and checks the
	// read-back value.
	Apply bool `json:"apply,omitempty"`
}

// LockReply reports the outcome of a LockRequest.
type LockReply struct {
	Radio      string   `json:"radio"`
	Param      string   `json:"param"`
	Locked     bool     `json:"locked"`
	Diagnostic string   `json:"diagnostic,omitempty"`
	EmptyVars  []string `json:"empty_vars,omitempty"`
	Applied    bool     `json:"applied,omitempty"`
	Actual     float64  `json:"actual,omitempty"`
}

// ParamRequest names a single parameter of a radio.
type ParamRequest struct {
	Radio string `json:"radio"`
	Param string `json:"param"`
}

// RadioRequest names a radio.
type RadioRequest struct {
	Radio string `json:"radio"`
}

// RangesRequest selects parameters of a radio; an empty Params means all.
type RangesRequest struct {
	Radio  string   `json:"radio"`
	Params []string `json:"params,omitempty"`
}

// ParamRange is the feasible region of one parameter.
type ParamRange struct {
	Param     string       `json:"param"`
	Kind      string       `json:"kind"`
	Intervals [][2]float64 `json:"intervals"`
	Locked    bool         `json:"locked,omitempty"`
	Value     float64      `json:"value,omitempty"`
	Tolerance float64      `json:"tolerance,omitempty"`
}

// Empty reports whether the parameter has no feasible value.
func (p ParamRange) Empty() bool { return len(p.Intervals) == 0 }

// RangesReply lists feasible regions in parameter order.
type RangesReply struct {
	Radio  string       `json:"radio"`
	Ranges []ParamRange `json:"ranges"`
}

// RadioInfo summarises one radio.
type RadioInfo struct {
	ID            string   `json:"id"`
	TransceiverID string   `json:"transceiver_id"`
	Params        []string `json:"params"`
	Locked        int      `json:"locked"`
}

// RadiosReply lists radios ordered by ID.
type RadiosReply struct {
	Radios []RadioInfo `json:"radios"`
}

// Validate checks the required fields.
func (r LockRequest) Validate() error {
	if err := requireNames(r.Radio, r.Param); err != nil {
		return err
	}
	if math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
		return fmt.Errorf("%w: value must be finite", ErrInvalidRequest)
	}
	if r.Tolerance < 0 || math.IsNaN(r.Tolerance) || math.IsInf(r.Tolerance, 0) {
		return fmt.Errorf("%w: tolerance must be finite and non-negative", ErrInvalidRequest)
	}
	return nil
}

// Validate checks the required fields.
func (r ParamRequest) Validate() error { return requireNames(r.Radio, r.Param) }

// Validate checks the required fields.
func (r RadioRequest) Validate() error { return requireNames(r.Radio) }

// Validate checks the required fields.
func (r RangesRequest) Validate() error {
	if err := requireNames(r.Radio); err != nil {
		return err
	}
	for _, p := range r.Params {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("%w: params must not contain empty names", ErrInvalidRequest)
		}
	}
	return nil
}

func requireNames(radio string, param ...string) error {
	if strings.TrimSpace(radio) == "" {
		return fmt.Errorf("%w: radio is required", ErrInvalidRequest)
	}
	for _, p := range param {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("%w: param is required", ErrInvalidRequest)
		}
	}
	return nil
}

// Encode converts a message to its wire form.
func Encode(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return out, nil
}

// Decode fills out from a wire message. Unknown fields are rejected.
func Decode(s *structpb.Struct, out any) error {
	if s == nil {
		s = &structpb.Struct{}
	}
	data, err := protojson.Marshal(s)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}
