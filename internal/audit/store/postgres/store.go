package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"villageops/internal/audit"
	"villageops/pkg/domain"
	txcontext "villageops/pkg/platform/tx"
)

// Store implements audit.Store on Postgres. The audit_entries table is
// append-only: there are no UPDATE or DELETE statements in this package, and
// the seq column gives a total order matching commit order per entity.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// Append inserts one audit entry. When the context carries a transaction
// (transition write + audit append as one unit of work) the insert joins it.
func (s *Store) Append(ctx context.Context, entry audit.Entry) error {
	changes, err := json.Marshal(entry.Changes)
	if err != nil {
		return fmt.Errorf("marshal audit changes: %w", err)
	}

	query := `
		INSERT INTO audit_entries (
			id, timestamp, actor, actor_email, action, entity_kind, entity_id,
			community_id, prior_status, new_status, changes, request_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	var communityID *uuid.UUID
	if !entry.CommunityID.IsNil() {
		cid := uuid.UUID(entry.CommunityID)
		communityID = &cid
	}

	_, err = s.execer(ctx).ExecContext(ctx, query,
		entry.ID,
		entry.Timestamp,
		entry.Actor,
		entry.ActorEmail,
		entry.Action,
		entry.EntityKind,
		uuid.UUID(entry.EntityID),
		communityID,
		entry.PriorStatus,
		entry.NewStatus,
		changes,
		entry.RequestID,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// ListRecent returns the N most recent entries.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Entry, error) {
	query := `
		SELECT id, timestamp, actor, actor_email, action, entity_kind, entity_id,
			   community_id, prior_status, new_status, changes, request_id
		FROM audit_entries
		ORDER BY seq DESC
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// ListByEntity returns all entries for one entity in commit order.
func (s *Store) ListByEntity(ctx context.Context, entityKind string, entityID domain.EntityID) ([]audit.Entry, error) {
	query := `
		SELECT id, timestamp, actor, actor_email, action, entity_kind, entity_id,
			   community_id, prior_status, new_status, changes, request_id
		FROM audit_entries
		WHERE entity_kind = $1 AND entity_id = $2
		ORDER BY seq ASC
	`
	rows, err := s.db.QueryContext(ctx, query, entityKind, uuid.UUID(entityID))
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]audit.Entry, error) {
	var entries []audit.Entry

	for rows.Next() {
		var (
			entry       audit.Entry
			entityID    uuid.UUID
			communityID *uuid.UUID
			changes     []byte
		)
		err := rows.Scan(
			&entry.ID,
			&entry.Timestamp,
			&entry.Actor,
			&entry.ActorEmail,
			&entry.Action,
			&entry.EntityKind,
			&entityID,
			&communityID,
			&entry.PriorStatus,
			&entry.NewStatus,
			&changes,
			&entry.RequestID,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entry.EntityID = domain.EntityID(entityID)
		if communityID != nil {
			entry.CommunityID = domain.CommunityID(*communityID)
		}
		if len(changes) > 0 {
			if err := json.Unmarshal(changes, &entry.Changes); err != nil {
				return nil, fmt.Errorf("unmarshal audit changes: %w", err)
			}
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}
