package audit

import (
	"time"

	"github.com/google/uuid"

	"villageops/pkg/domain"
)

// Entry is an immutable record of one privileged action. Keep it
// transport-agnostic so stores and sinks can fan out.
//
// Entries are append-only: once written they are never mutated, reordered,
// or removed. The trail is the historical record, never the source of
// current-state truth.
type Entry struct {
	ID          uuid.UUID
	Timestamp   time.Time
	Actor       string
	ActorEmail  string
	Action      string
	EntityKind  string
	EntityID    domain.EntityID
	CommunityID domain.CommunityID
	PriorStatus string
	NewStatus   string
	// Changes holds action parameters and before/after values of the fields
	// the action touched.
	Changes   map[string]any
	RequestID string
}

// ActionFor names an audited action as verb + entity kind, e.g.
// "approve_vehicle_sticker".
func ActionFor(verb, entityKind string) string {
	return verb + "_" + entityKind
}
