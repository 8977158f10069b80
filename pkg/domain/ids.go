// Package domain holds typed identifiers shared across the platform.
//
// Each identifier wraps a UUID so that a community ID can never be passed
// where an entity ID is expected. Parsing happens at trust boundaries
// (transport, CSV ingestion) and rejects empty, malformed, and nil UUIDs.
package domain

import (
	"github.com/google/uuid"

	dErrors "villageops/pkg/domain-errors"
)

// CommunityID scopes every tenant-bound entity to one community.
type CommunityID uuid.UUID

// EntityID identifies a lifecycle entity of any kind.
type EntityID uuid.UUID

// BatchID identifies one bulk-import run.
type BatchID uuid.UUID

// NewCommunityID returns a fresh random community identifier.
func NewCommunityID() CommunityID { return CommunityID(uuid.New()) }

// NewEntityID returns a fresh random entity identifier.
func NewEntityID() EntityID { return EntityID(uuid.New()) }

// NewBatchID returns a fresh random batch identifier.
func NewBatchID() BatchID { return BatchID(uuid.New()) }

func (id CommunityID) String() string { return uuid.UUID(id).String() }
func (id EntityID) String() string    { return uuid.UUID(id).String() }
func (id BatchID) String() string     { return uuid.UUID(id).String() }

func (id CommunityID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id EntityID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id BatchID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }

// Text marshaling keeps the canonical UUID form on the wire; named UUID types
// do not inherit it from the underlying array type.

func (id CommunityID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id EntityID) MarshalText() ([]byte, error)    { return []byte(id.String()), nil }
func (id BatchID) MarshalText() ([]byte, error)     { return []byte(id.String()), nil }

func (id *CommunityID) UnmarshalText(b []byte) error {
	u, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*id = CommunityID(u)
	return nil
}

func (id *EntityID) UnmarshalText(b []byte) error {
	u, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*id = EntityID(u)
	return nil
}

func (id *BatchID) UnmarshalText(b []byte) error {
	u, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*id = BatchID(u)
	return nil
}

// ParseCommunityID parses the canonical string form of a community ID.
func ParseCommunityID(s string) (CommunityID, error) {
	u, err := parseID(s, "community id")
	return CommunityID(u), err
}

// ParseEntityID parses the canonical string form of an entity ID.
func ParseEntityID(s string) (EntityID, error) {
	u, err := parseID(s, "entity id")
	return EntityID(u), err
}

// ParseBatchID parses the canonical string form of a batch ID.
func ParseBatchID(s string) (BatchID, error) {
	u, err := parseID(s, "batch id")
	return BatchID(u), err
}

func parseID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeBadRequest, label+" is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeBadRequest, label+" is not a valid UUID")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeBadRequest, label+" must not be the nil UUID")
	}
	return u, nil
}
