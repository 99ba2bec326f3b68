// Package audit implements the append-only mutation trail required by GoBD.
// Every mutation of a financial record, and every period lock transition,
// produces exactly one row here. Rows are never updated or deleted.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Action identifies the kind of mutation an entry records.
type Action string

const (
	ActionCreate     Action = "create"
	ActionUpdate     Action = "update"
	ActionSoftDelete Action = "soft_delete"
	ActionLock       Action = "lock"
	ActionUnlock     Action = "unlock"
)

// ValidAction reports whether a is a known audit action.
func ValidAction(a Action) bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionSoftDelete, ActionLock, ActionUnlock:
		return true
	}
	return false
}

// FieldDiff is one field-level change inside an audit entry.
type FieldDiff struct {
	Field string `json:"field"`
	Old   any    `json:"old"`
	New   any    `json:"new"`
}

// Entry is a single appended audit row.
type Entry struct {
	ID         int64       `json:"id"`
	EntityType string      `json:"entityType"`
	EntityID   string      `json:"entityId"`
	Action     Action      `json:"action"`
	Diffs      []FieldDiff `json:"diffs"`
	Actor      string      `json:"actor"`
	CreatedAt  time.Time   `json:"createdAt"`
}

// Filter narrows a Search. Zero values mean "no constraint". From and To
// are inclusive ISO calendar days.
type Filter struct {
	EntityType string
	Action     Action
	Actor      string
	From       string
	To         string
	Limit      int
	Offset     int
}

// Querier is the subset of pgx shared by *pgxpool.Pool and pgx.Tx. Record
// takes one so audit writes can join the caller's transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Service provides the append and query surface over the audit_log table.
type Service struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewService creates a new audit trail service.
func NewService(pool *pgxpool.Pool, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{pool: pool, logger: logger}
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Record appends one audit row via q, which is the pool or, for writes that
// must be atomic with a guarded mutation, the mutation's own transaction.
// A committed mutation without its audit row is a correctness bug, so
// callers must not commit if Record fails.
func (s *Service) Record(ctx context.Context, q Querier, e Entry) error {
	if !ValidAction(e.Action) {
		return fmt.Errorf("recording audit entry: unknown action %q", e.Action)
	}
	if e.Diffs == nil {
		e.Diffs = []FieldDiff{}
	}

	diffs, err := json.Marshal(e.Diffs)
	if err != nil {
		return fmt.Errorf("marshaling audit diffs: %w", err)
	}

	_, err = q.Exec(ctx, `
		INSERT INTO audit_log (entity_type, entity_id, action, diffs, actor, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
	`, e.EntityType, e.EntityID, string(e.Action), diffs, e.Actor)
	if err != nil {
		return fmt.Errorf("inserting audit entry for %s %s: %w", e.EntityType, e.EntityID, err)
	}
	return nil
}

// History returns the full ordered trail for one entity, oldest first.
func (s *Service) History(ctx context.Context, entityType, entityID string) ([]Entry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, entity_type, entity_id, action, diffs, actor, created_at
		FROM audit_log
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY id ASC
	`, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("querying audit history for %s %s: %w", entityType, entityID, err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// Search returns entries matching the filter, newest first, paginated by
// Limit/Offset. The dynamic WHERE clause is built with squirrel so filter
// combinations stay composable.
func (s *Service) Search(ctx context.Context, f Filter) ([]Entry, error) {
	if f.Limit < 1 {
		f.Limit = 50
	}
	if f.Limit > 500 {
		f.Limit = 500
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	q := psql.Select("id", "entity_type", "entity_id", "action", "diffs", "actor", "created_at").
		From("audit_log").
		OrderBy("id DESC").
		Limit(uint64(f.Limit)).
		Offset(uint64(f.Offset))

	if f.EntityType != "" {
		q = q.Where(sq.Eq{"entity_type": f.EntityType})
	}
	if f.Action != "" {
		if !ValidAction(f.Action) {
			return nil, fmt.Errorf("searching audit log: unknown action %q", f.Action)
		}
		q = q.Where(sq.Eq{"action": string(f.Action)})
	}
	if f.Actor != "" {
		q = q.Where(sq.Eq{"actor": f.Actor})
	}
	if f.From != "" {
		q = q.Where(sq.GtOrEq{"created_at": f.From})
	}
	if f.To != "" {
		// Inclusive end of day.
		q = q.Where(sq.Lt{"created_at": f.To + "T24:00:00"})
	}

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building audit search query: %w", err)
	}

	rows, err := s.pool.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("searching audit log: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

func scanEntries(rows pgx.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var (
			e      Entry
			action string
			diffs  []byte
		)
		if err := rows.Scan(&e.ID, &e.EntityType, &e.EntityID, &action, &diffs, &e.Actor, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		e.Action = Action(action)
		if err := json.Unmarshal(diffs, &e.Diffs); err != nil {
			return nil, fmt.Errorf("decoding audit diffs for entry %d: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading audit entries: %w", err)
	}
	return entries, nil
}
