package eventbus

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidData reports a nil value or an empty payload.
var ErrInvalidData = errors.New("invalid data for serialization")

// Serializer encodes change envelopes into message values.
type Serializer interface {
	Serialize(v any) ([]byte, error)
	// Deserialize decodes data into target, which must be a pointer.
	Deserialize(data []byte, target any) error
	ContentType() string
}

// JSONSerializer encodes envelopes as JSON objects.
type JSONSerializer struct{}

var _ Serializer = (*JSONSerializer)(nil)

func NewJSONSerializer() *JSONSerializer { return &JSONSerializer{} }

func (*JSONSerializer) Serialize(v any) ([]byte, error) {
	if v == nil {
		return nil, fmt.Errorf("%w: nil value", ErrInvalidData)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode json payload: %w", err)
	}
	return data, nil
}

func (*JSONSerializer) Deserialize(data []byte, target any) error {
	switch {
	case target == nil:
		return fmt.Errorf("%w: nil target", ErrInvalidData)
	case len(data) == 0:
		return fmt.Errorf("%w: empty payload", ErrInvalidData)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("decode json payload: %w", err)
	}
	return nil
}

func (*JSONSerializer) ContentType() string { return "application/json" }
