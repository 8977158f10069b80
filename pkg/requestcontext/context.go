// Package requestcontext provides HTTP-independent context accessors for request-scoped values.
//
// This package defines context keys and getter/setter functions for values that are
// typically set by middleware but consumed by services. By keeping this package free
// of net/http dependencies, services can import only what they need without pulling
// in HTTP-related code.
//
// Usage in services (read values):
//
//	actor := requestcontext.ActorFrom(ctx)
//	requestID := requestcontext.RequestID(ctx)
//	now := requestcontext.Now(ctx)
//
// Usage in middleware (set values):
//
//	ctx = requestcontext.WithActor(ctx, actor)
//	ctx = requestcontext.WithRequestID(ctx, requestID)
//
// Usage in tests (inject values):
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
//	ctx = requestcontext.WithActor(ctx, requestcontext.Actor{ID: "admin-1"})
package requestcontext

import (
	"context"
	"time"
)

// Actor is the resolved caller identity threaded into every audited
// operation. There is no ambient global session state; whoever invokes the
// engine must carry an actor in the context.
type Actor struct {
	ID    string
	Email string
	Role  string
}

// IsResolved reports whether the actor carries a usable identity. Operations
// that write audit entries fail closed when this is false.
func (a Actor) IsResolved() bool { return a.ID != "" }

// Context key types (unexported for encapsulation).
type (
	actorKey       struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// Exported context keys for direct use in tests that need context.WithValue.
var (
	ContextKeyActor       = actorKey{}
	ContextKeyRequestID   = requestIDKey{}
	ContextKeyRequestTime = requestTimeKey{}
)

// -----------------------------------------------------------------------------
// Actor identity
// -----------------------------------------------------------------------------

// ActorFrom retrieves the resolved actor from the context.
// Returns the zero Actor if not set.
func ActorFrom(ctx context.Context) Actor {
	if actor, ok := ctx.Value(ContextKeyActor).(Actor); ok {
		return actor
	}
	return Actor{}
}

// WithActor injects a resolved actor identity into the context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, ContextKeyActor, actor)
}

// -----------------------------------------------------------------------------
// Request metadata
// -----------------------------------------------------------------------------

// RequestID retrieves the request correlation ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request correlation ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// -----------------------------------------------------------------------------
// Request time
// -----------------------------------------------------------------------------

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() if not set (for non-HTTP contexts like workers, CLI, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context.
// Useful for:
//   - Service unit tests that don't run the full HTTP middleware chain
//   - Batch imports that need consistent time across rows
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
