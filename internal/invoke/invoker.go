// Package invoke wraps calls to the external remote-procedure collaborator.
//
// Every remote-backed transition goes through an Invoker, which races the
// underlying call against a timer and classifies failures into a normalized
// taxonomy. A timed-out call is abandoned locally (fire and forget); the
// remote side may still apply the effect, so callers must treat the
// resulting remote state as unknown.
package invoke

import (
	"context"
	"time"
)

// DefaultTimeout bounds remote procedure calls when the caller does not
// override it.
const DefaultTimeout = 15 * time.Second

// Response is the success/failure envelope returned by the remote procedure.
type Response struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

// Invoker executes a named remote procedure with a flat key-value payload.
type Invoker interface {
	Invoke(ctx context.Context, procedure string, payload map[string]any, timeout time.Duration) (*Response, error)
}

// Func adapts a function to the Invoker interface. Useful in tests.
type Func func(ctx context.Context, procedure string, payload map[string]any, timeout time.Duration) (*Response, error)

func (f Func) Invoke(ctx context.Context, procedure string, payload map[string]any, timeout time.Duration) (*Response, error) {
	return f(ctx, procedure, payload, timeout)
}
