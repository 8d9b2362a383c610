package eventbridge

import (
	"encoding/json"
	"errors"
	"time"

	backendbridge "github.com/opengovern/backend-bridge"
)

// Event is one decoded bus message as delivered to local subscribers.
type Event struct {
	Topic      string
	Type       string
	Payload    map[string]any // the whole decoded message: {"type": ..., "data": ...}
	Subject    string
	ReceivedAt time.Time
}

// Data returns the "data" field of the payload.
func (e Event) Data() any { return e.Payload["data"] }

var (
	errNotObject   = errors.New("payload is not a JSON object")
	errMissingType = errors.New(`payload has no string "type" field`)
	errMissingData = errors.New(`payload has no "data" field`)
)

// Decode parses a bus payload. It must be a JSON object with a non-empty string
// "type" and a "data" field. Failures are *backendbridge.NormalizedError of kind decode_error.
func Decode(payload []byte) (map[string]any, string, error) {
	var v any
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, "", decodeError(payload, err)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, "", decodeError(payload, errNotObject)
	}
	typ, _ := obj["type"].(string)
	if typ == "" {
		return nil, "", decodeError(payload, errMissingType)
	}
	if _, ok := obj["data"]; !ok {
		return nil, "", decodeError(payload, errMissingData)
	}
	return obj, typ, nil
}

// Encode builds a bus payload from an event type and its data.
func Encode(eventType string, data any) ([]byte, error) {
	return json.Marshal(map[string]any{"type": eventType, "data": data})
}

func decodeError(payload []byte, err error) *backendbridge.NormalizedError {
	return &backendbridge.NormalizedError{
		Kind:    backendbridge.KindDecodeError,
		Details: map[string]any{"bytes": len(payload)},
		Err:     err,
	}
}
