package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedEnvelope is matched by every decode failure.
var ErrMalformedEnvelope = errors.New("malformed envelope")

// Envelope - event packet carried in a queue message body
type Envelope struct {
	Pattern Pattern         `json:"pattern"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals data into a new envelope.
func NewEnvelope(pattern Pattern, data interface{}) (*Envelope, error) {
	if data == nil {
		return &Envelope{Pattern: pattern}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Envelope{Pattern: pattern, Data: raw}, nil
}

// JSON - convert struct to json
func (e *Envelope) JSON() (string, error) {
	bin, err := json.Marshal(e)
	return string(bin), err
}

// FromJSON - convert json to struct. The body must be a JSON object carrying
// a non-null pattern; the payload is not inspected.
func (e *Envelope) FromJSON(jsonString string) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(jsonString), &fields); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if fields == nil {
		return fmt.Errorf("%w: not an object", ErrMalformedEnvelope)
	}
	rawPattern, ok := fields["pattern"]
	if !ok {
		return fmt.Errorf("%w: missing pattern", ErrMalformedEnvelope)
	}
	var pattern Pattern
	if err := pattern.UnmarshalJSON(rawPattern); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	e.Pattern = pattern
	e.Data = fields["data"]
	return nil
}

// Decode parses a message body into an envelope.
func Decode(body string) (*Envelope, error) {
	envelope := &Envelope{}
	if err := envelope.FromJSON(body); err != nil {
		return nil, err
	}
	return envelope, nil
}

// Unmarshal decodes the payload into v.
func (e *Envelope) Unmarshal(v interface{}) error {
	if len(e.Data) == 0 {
		return nil
	}
	return json.Unmarshal(e.Data, v)
}

// String representation
func (e *Envelope) String() string {
	return fmt.Sprintf("pattern=%s data=%s", e.Pattern, e.Data)
}
