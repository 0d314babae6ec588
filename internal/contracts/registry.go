package contracts

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownType is returned when a type name has no registered schema.
// The outbox dispatcher force-skips such records instead of retrying them.
var ErrUnknownType = errors.New("unknown message type")

// Decode resolves a type name to its schema and unmarshals the payload into
// it. The returned value is a pointer to the concrete message type.
func Decode(typeName string, payload []byte) (any, error) {
	var msg any
	switch typeName {
	case TypeRequestReceived:
		msg = &RequestReceived{}
	case TypeDispatchToPartner:
		msg = &DispatchToPartner{}
	case TypeRequestCompleted:
		msg = &RequestCompleted{}
	case TypeRequestFailed:
		msg = &RequestFailed{}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, typeName)
	}

	if err := json.Unmarshal(payload, msg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", typeName, err)
	}

	return msg, nil
}

// Deref converts a decoded pointer message into its value form, which is
// what publishers emit and handlers type-assert on.
func Deref(msg any) any {
	switch m := msg.(type) {
	case *RequestReceived:
		return *m
	case *DispatchToPartner:
		return *m
	case *RequestCompleted:
		return *m
	case *RequestFailed:
		return *m
	}
	return msg
}
