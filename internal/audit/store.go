package audit

import (
	"context"

	"villageops/pkg/domain"
)

// Store persists audit entries. Implementations must be append-only; this
// interface carries no update or delete operations.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	// ListRecent returns up to limit entries, most recent first.
	ListRecent(ctx context.Context, limit int) ([]Entry, error)
	// ListByEntity returns all entries for one entity in the order the
	// transitions that produced them were committed.
	ListByEntity(ctx context.Context, entityKind string, entityID domain.EntityID) ([]Entry, error)
}
