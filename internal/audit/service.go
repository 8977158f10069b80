package audit

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"villageops/pkg/domain"
	dErrors "villageops/pkg/domain-errors"
	"villageops/pkg/requestcontext"
)

// Service captures structured audit entries. It is append-only and uses the
// storage layer for persistence so tests can swap sinks easily.
//
// Record fails closed: without a resolved actor in the context the append is
// rejected, and the caller is expected to fail the triggering operation. A
// transition without an audit entry is treated as not having happened.
type Service struct {
	store  Store
	mirror chan<- Entry
	logger *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithMirror attaches a best-effort mirror channel (consumed by a Worker
// publishing to Kafka). A full channel drops the mirror copy; the store
// remains authoritative.
func WithMirror(mirror chan<- Entry) Option {
	return func(s *Service) { s.mirror = mirror }
}

// WithLogger attaches a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// NewService constructs an audit service over the given store.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record appends one entry, resolving actor, timestamp, and request ID from
// the context.
func (s *Service) Record(ctx context.Context, entry Entry) error {
	actor := requestcontext.ActorFrom(ctx)
	if !actor.IsResolved() {
		return dErrors.New(dErrors.CodeUnauthorized, "audit entry requires a resolved actor identity")
	}
	entry.Actor = actor.ID
	entry.ActorEmail = actor.Email
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = requestcontext.Now(ctx)
	}
	if entry.RequestID == "" {
		entry.RequestID = requestcontext.RequestID(ctx)
	}

	if err := s.store.Append(ctx, entry); err != nil {
		return dErrors.Wrap(err, dErrors.CodeAuditUnavailable, "failed to append audit entry")
	}

	if s.mirror != nil {
		select {
		case s.mirror <- entry:
		default:
			if s.logger != nil {
				s.logger.WarnContext(ctx, "audit mirror channel full, entry not mirrored",
					"action", entry.Action, "entity_id", entry.EntityID.String())
			}
		}
	}
	return nil
}

// Recent returns up to limit entries, most recent first.
func (s *Service) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "limit must be positive")
	}
	return s.store.ListRecent(ctx, limit)
}

// ListByEntity returns the full trail for one entity in transition order.
func (s *Service) ListByEntity(ctx context.Context, entityKind string, entityID domain.EntityID) ([]Entry, error) {
	return s.store.ListByEntity(ctx, entityKind, entityID)
}
