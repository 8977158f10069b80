// Package postgres implements the entity store on PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"villageops/internal/lifecycle"
	"villageops/pkg/domain"
	"villageops/pkg/platform/sentinel"
	txcontext "villageops/pkg/platform/tx"
)

// uniqueViolation is the Postgres error code for unique constraint breaches.
// The partial unique index on (kind, community_id, key) is the authoritative
// duplicate check; the store just translates the breach to a sentinel.
const uniqueViolation = "23505"

// Store implements lifecycle.EntityStore on Postgres.
//
// Schema:
//
//	CREATE TABLE entities (
//	    id           UUID PRIMARY KEY,
//	    kind         TEXT NOT NULL,
//	    community_id UUID,
//	    key          TEXT NOT NULL DEFAULT '',
//	    status       TEXT NOT NULL,
//	    fields       JSONB NOT NULL DEFAULT '{}',
//	    created_at   TIMESTAMPTZ NOT NULL,
//	    updated_at   TIMESTAMPTZ NOT NULL
//	);
//	CREATE UNIQUE INDEX entities_natural_key
//	    ON entities (kind, community_id, key) WHERE key <> '';
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL entity store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *Store) Create(ctx context.Context, e *lifecycle.Entity) error {
	return s.insert(ctx, e)
}

// CreateIfKeyAvailable relies on the partial unique index rather than a
// pre-check, so concurrent imports of the same unit number cannot both win.
func (s *Store) CreateIfKeyAvailable(ctx context.Context, e *lifecycle.Entity) error {
	err := s.insert(ctx, e)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
		return sentinel.ErrAlreadyUsed
	}
	return err
}

func (s *Store) insert(ctx context.Context, e *lifecycle.Entity) error {
	fields, err := json.Marshal(e.Fields)
	if err != nil {
		return fmt.Errorf("marshal entity fields: %w", err)
	}

	query := `
		INSERT INTO entities (id, kind, community_id, key, status, fields, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(e.ID),
		string(e.Kind),
		communityIDArg(e.CommunityID),
		e.Key,
		string(e.Status),
		fields,
		e.CreatedAt,
		e.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return err
		}
		return fmt.Errorf("insert entity: %w", err)
	}
	return nil
}

func (s *Store) FindByID(ctx context.Context, kind lifecycle.Kind, id domain.EntityID) (*lifecycle.Entity, error) {
	query := selectColumns + ` WHERE kind = $1 AND id = $2`
	return s.scanOne(s.execer(ctx).QueryRowContext(ctx, query, string(kind), uuid.UUID(id)))
}

func (s *Store) FindByKey(ctx context.Context, kind lifecycle.Kind, communityID domain.CommunityID, key string) (*lifecycle.Entity, error) {
	query := selectColumns + ` WHERE kind = $1 AND community_id = $2 AND key = $3`
	return s.scanOne(s.execer(ctx).QueryRowContext(ctx, query, string(kind), uuid.UUID(communityID), key))
}

// UpdateIfStatus is a conditional write: the row updates only when its stored
// status still matches expected. When no row matched, a follow-up read
// distinguishes a concurrent transition from a missing entity.
func (s *Store) UpdateIfStatus(ctx context.Context, expected lifecycle.Status, e *lifecycle.Entity) error {
	fields, err := json.Marshal(e.Fields)
	if err != nil {
		return fmt.Errorf("marshal entity fields: %w", err)
	}

	query := `
		UPDATE entities
		SET status = $1, fields = $2, updated_at = $3
		WHERE kind = $4 AND id = $5 AND status = $6
	`
	res, err := s.execer(ctx).ExecContext(ctx, query,
		string(e.Status),
		fields,
		e.UpdatedAt,
		string(e.Kind),
		uuid.UUID(e.ID),
		string(expected),
	)
	if err != nil {
		return fmt.Errorf("update entity: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update entity: %w", err)
	}
	if affected == 1 {
		return nil
	}

	if _, err := s.FindByID(ctx, e.Kind, e.ID); err != nil {
		return err
	}
	return sentinel.ErrConflict
}

const selectColumns = `
	SELECT id, kind, community_id, key, status, fields, created_at, updated_at
	FROM entities
`

func (s *Store) scanOne(row *sql.Row) (*lifecycle.Entity, error) {
	var (
		e           lifecycle.Entity
		id          uuid.UUID
		kind        string
		communityID *uuid.UUID
		status      string
		fields      []byte
	)
	err := row.Scan(&id, &kind, &communityID, &e.Key, &status, &fields, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan entity: %w", err)
	}
	e.ID = domain.EntityID(id)
	e.Kind = lifecycle.Kind(kind)
	if communityID != nil {
		e.CommunityID = domain.CommunityID(*communityID)
	}
	e.Status = lifecycle.Status(status)
	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &e.Fields); err != nil {
			return nil, fmt.Errorf("unmarshal entity fields: %w", err)
		}
	}
	if e.Fields == nil {
		e.Fields = map[string]any{}
	}
	return &e, nil
}

func communityIDArg(id domain.CommunityID) *uuid.UUID {
	if id.IsNil() {
		return nil
	}
	u := uuid.UUID(id)
	return &u
}
