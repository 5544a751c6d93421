// Package dispatch invokes named procedures on the ERP's record types.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
)

// Dispatcher invokes method on recordType with positional args and returns
// the raw JSON result.
type Dispatcher interface {
	Dispatch(ctx context.Context, recordType, method string, args ...any) (json.RawMessage, error)
}

// Error is a failure reported by the remote side.
type Error struct {
	RecordType string
	Method     string
	Status     int
	Message    string
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("dispatch %s.%s: status %d: %s", e.RecordType, e.Method, e.Status, e.Message)
	}
	return fmt.Sprintf("dispatch %s.%s: %s", e.RecordType, e.Method, e.Message)
}

// Call dispatches and decodes the result into T.
func Call[T any](ctx context.Context, d Dispatcher, recordType, method string, args ...any) (T, error) {
	var out T
	raw, err := d.Dispatch(ctx, recordType, method, args...)
	if err != nil {
		return out, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("dispatch %s.%s: decode result: %w", recordType, method, err)
	}
	return out, nil
}
