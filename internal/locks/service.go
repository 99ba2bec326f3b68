package locks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/steuerkern/api/internal/apperr"
	"github.com/steuerkern/api/internal/audit"
)

// PeriodLock is an active write block on one accounting period.
type PeriodLock struct {
	ID         uuid.UUID  `json:"id"`
	PeriodType PeriodType `json:"periodType"`
	PeriodKey  string     `json:"periodKey"`
	LockedAt   time.Time  `json:"lockedAt"`
	LockedBy   string     `json:"lockedBy"`
	Reason     string     `json:"reason"`
}

// PeriodLockedError rejects a write into a locked period. It names the
// blocking lock and the remediation so the caller can act on it.
type PeriodLockedError struct {
	Date string
	Lock PeriodLock
}

func (e *PeriodLockedError) Error() string {
	return fmt.Sprintf(
		"period %s is locked (locked by %s at %s): record dated %s cannot be changed; unlock the period with a reason first",
		e.Lock.PeriodKey, e.Lock.LockedBy, e.Lock.LockedAt.Format(time.RFC3339), e.Date,
	)
}

const lockEntityType = "period_lock"

// Service tracks period locks and enforces them before guarded writes.
type Service struct {
	pool   *pgxpool.Pool
	audit  *audit.Service
	logger *slog.Logger
}

// NewService creates a new period lock service.
func NewService(pool *pgxpool.Pool, auditSvc *audit.Service, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{pool: pool, audit: auditSvc, logger: logger}
}

// Lock closes a period against further writes. The key format is validated
// strictly per type and a key can only be locked once. The lock row and its
// audit entry commit in one transaction.
func (s *Service) Lock(ctx context.Context, ptype PeriodType, key, actor, reason string) (PeriodLock, error) {
	if err := ValidateKey(ptype, key); err != nil {
		return PeriodLock{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return PeriodLock{}, fmt.Errorf("beginning lock transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM period_locks WHERE period_key = $1)`, key,
	).Scan(&exists); err != nil {
		return PeriodLock{}, fmt.Errorf("checking existing lock for %s: %w", key, err)
	}
	if exists {
		return PeriodLock{}, apperr.Validation("period %s is already locked", key)
	}

	lock := PeriodLock{
		ID:         uuid.New(),
		PeriodType: ptype,
		PeriodKey:  key,
		LockedBy:   actor,
		Reason:     reason,
	}

	if err := tx.QueryRow(ctx, `
		INSERT INTO period_locks (id, period_type, period_key, locked_by, reason, locked_at)
		VALUES ($1, $2, $3, $4, $5, now())
		RETURNING locked_at
	`, lock.ID, string(ptype), key, actor, reason).Scan(&lock.LockedAt); err != nil {
		return PeriodLock{}, fmt.Errorf("inserting lock for %s: %w", key, err)
	}

	entry := audit.Entry{
		EntityType: lockEntityType,
		EntityID:   key,
		Action:     audit.ActionLock,
		Actor:      actor,
		Diffs: []audit.FieldDiff{
			{Field: "locked", Old: false, New: true},
			{Field: "period_type", Old: nil, New: string(ptype)},
			{Field: "reason", Old: nil, New: reason},
		},
	}
	if err := s.audit.Record(ctx, tx, entry); err != nil {
		return PeriodLock{}, fmt.Errorf("auditing lock of %s: %w", key, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return PeriodLock{}, fmt.Errorf("committing lock of %s: %w", key, err)
	}

	s.logger.Info("period locked", "period_key", key, "period_type", ptype, "actor", actor)
	return lock, nil
}

// Unlock reopens a locked period. A non-empty justification is mandatory.
// The unlock audit entry is written before the lock row is deleted, inside
// the same transaction, so the event survives in the trail even though the
// lock itself disappears.
func (s *Service) Unlock(ctx context.Context, key, actor, reason string) error {
	if reason == "" {
		return apperr.Validation("unlocking period %s requires a reason", key)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning unlock transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	lock, err := s.getByKey(ctx, tx, key)
	if err != nil {
		return err
	}

	entry := audit.Entry{
		EntityType: lockEntityType,
		EntityID:   key,
		Action:     audit.ActionUnlock,
		Actor:      actor,
		Diffs: []audit.FieldDiff{
			{Field: "locked", Old: true, New: false},
			{Field: "reason", Old: lock.Reason, New: reason},
		},
	}
	if err := s.audit.Record(ctx, tx, entry); err != nil {
		return fmt.Errorf("auditing unlock of %s: %w", key, err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM period_locks WHERE period_key = $1`, key); err != nil {
		return fmt.Errorf("deleting lock for %s: %w", key, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing unlock of %s: %w", key, err)
	}

	s.logger.Info("period unlocked", "period_key", key, "actor", actor, "reason", reason)
	return nil
}

// Get returns the lock on a period key, or a NotFoundError.
func (s *Service) Get(ctx context.Context, key string) (PeriodLock, error) {
	return s.getByKey(ctx, s.pool, key)
}

// List returns all active locks ordered by key.
func (s *Service) List(ctx context.Context) ([]PeriodLock, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, period_type, period_key, locked_at, locked_by, reason
		FROM period_locks
		ORDER BY period_key
	`)
	if err != nil {
		return nil, fmt.Errorf("listing period locks: %w", err)
	}
	defer rows.Close()

	var out []PeriodLock
	for rows.Next() {
		var (
			l     PeriodLock
			ptype string
		)
		if err := rows.Scan(&l.ID, &ptype, &l.PeriodKey, &l.LockedAt, &l.LockedBy, &l.Reason); err != nil {
			return nil, fmt.Errorf("scanning period lock: %w", err)
		}
		l.PeriodType = PeriodType(ptype)
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading period locks: %w", err)
	}
	return out, nil
}

// CheckDate rejects a write to a record dated on the given day if the
// day's month, quarter or year is locked. It runs on q, the guarded
// write's own transaction, so there is no check-then-write race. Failure
// to evaluate the lock state rejects the write (fail closed).
func (s *Service) CheckDate(ctx context.Context, q audit.Querier, date string) error {
	keys, err := KeysForDate(date)
	if err != nil {
		return err
	}

	row := q.QueryRow(ctx, `
		SELECT id, period_type, period_key, locked_at, locked_by, reason
		FROM period_locks
		WHERE period_key = ANY($1)
		ORDER BY period_key
		LIMIT 1
	`, keys)

	var (
		l     PeriodLock
		ptype string
	)
	err = row.Scan(&l.ID, &ptype, &l.PeriodKey, &l.LockedAt, &l.LockedBy, &l.Reason)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		// Fail closed: an unevaluated lock state must block the write.
		return fmt.Errorf("evaluating period locks for %s (write rejected): %w", date, err)
	}
	l.PeriodType = PeriodType(ptype)

	return &PeriodLockedError{Date: date, Lock: l}
}

// Check reports whether a record dated on the given day could currently
// be written. It is the read-only variant of CheckDate for callers
// outside a transaction.
func (s *Service) Check(ctx context.Context, date string) error {
	return s.CheckDate(ctx, s.pool, date)
}

// CheckYear rejects writes to records that carry only a year (such as
// depreciation entries) when that year is locked. Month and quarter locks
// do not block annual records.
func (s *Service) CheckYear(ctx context.Context, q audit.Querier, year int) error {
	key := fmt.Sprintf("%04d", year)
	lock, err := s.getByKey(ctx, q, key)
	if err != nil {
		if apperr.IsNotFound(err) {
			return nil
		}
		// Fail closed.
		return fmt.Errorf("evaluating year lock %s (write rejected): %w", key, err)
	}
	return &PeriodLockedError{Date: key, Lock: lock}
}

func (s *Service) getByKey(ctx context.Context, q audit.Querier, key string) (PeriodLock, error) {
	var (
		l     PeriodLock
		ptype string
	)
	err := q.QueryRow(ctx, `
		SELECT id, period_type, period_key, locked_at, locked_by, reason
		FROM period_locks
		WHERE period_key = $1
	`, key).Scan(&l.ID, &ptype, &l.PeriodKey, &l.LockedAt, &l.LockedBy, &l.Reason)
	if errors.Is(err, pgx.ErrNoRows) {
		return PeriodLock{}, apperr.NotFound("period lock", key)
	}
	if err != nil {
		return PeriodLock{}, fmt.Errorf("getting lock for %s: %w", key, err)
	}
	l.PeriodType = PeriodType(ptype)
	return l, nil
}
