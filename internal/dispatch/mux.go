package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// HandlerFunc serves one procedure. Args arrive JSON encoded, as they would
// over the wire.
type HandlerFunc func(ctx context.Context, args []json.RawMessage) (any, error)

// Mux is an in-process Dispatcher.
type Mux struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewMux constructs an empty Mux.
func NewMux() *Mux {
	return &Mux{handlers: make(map[string]HandlerFunc)}
}

// Handle registers fn for recordType.method, replacing any previous handler.
func (m *Mux) Handle(recordType, method string, fn HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[recordType+"."+method] = fn
}

// Dispatch implements Dispatcher.
func (m *Mux) Dispatch(ctx context.Context, recordType, method string, args ...any) (json.RawMessage, error) {
	m.mu.RLock()
	fn, ok := m.handlers[recordType+"."+method]
	m.mu.RUnlock()
	if !ok {
		return nil, &Error{RecordType: recordType, Method: method, Message: "no such procedure"}
	}

	raw := make([]json.RawMessage, len(args))
	for i, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("dispatch %s.%s: encode arg %d: %w", recordType, method, i, err)
		}
		raw[i] = b
	}
	out, err := fn(ctx, raw)
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("dispatch %s.%s: encode result: %w", recordType, method, err)
	}
	return b, nil
}

// Arg decodes the i-th argument into T.
func Arg[T any](args []json.RawMessage, i int) (T, error) {
	var v T
	if i >= len(args) {
		return v, fmt.Errorf("dispatch: missing argument %d", i)
	}
	if err := json.Unmarshal(args[i], &v); err != nil {
		return v, fmt.Errorf("dispatch: argument %d: %w", i, err)
	}
	return v, nil
}
