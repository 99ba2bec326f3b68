// Package records provides the guarded write path for the ledger: every
// mutation passes period lock enforcement and appends its audit entry in
// the same transaction, so no committed write can be missing from the
// trail and no locked period can be changed.
package records

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/steuerkern/api/internal/apperr"
	"github.com/steuerkern/api/internal/audit"
	"github.com/steuerkern/api/internal/ledger"
	"github.com/steuerkern/api/internal/locks"
)

// Entity type names used in the audit trail.
const (
	EntityIncome       = "income_record"
	EntityExpense      = "expense_record"
	EntityDepreciation = "depreciation_entry"
)

var hundred = decimal.NewFromInt(100)

// Service is the guarded CRUD surface over the ledger tables.
type Service struct {
	pool   *pgxpool.Pool
	locks  *locks.Service
	audit  *audit.Service
	logger *slog.Logger
}

// NewService creates a new records service.
func NewService(pool *pgxpool.Pool, lockSvc *locks.Service, auditSvc *audit.Service, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{pool: pool, locks: lockSvc, audit: auditSvc, logger: logger}
}

// IncomeInput carries the caller-supplied fields of an income record.
// The VAT amount is always recomputed server-side.
type IncomeInput struct {
	Date        string
	Description string
	NetAmount   decimal.Decimal
	VATRate     int
	TaxLine     string
	ClientID    *uuid.UUID
}

func (in *IncomeInput) validate() error {
	if _, err := ledger.ParseDay(in.Date); err != nil {
		return apperr.Validation("%v", err)
	}
	if !ledger.ValidRate(in.VATRate) {
		return apperr.Validation("vat rate %d is not one of 0, 7, 19", in.VATRate)
	}
	if in.TaxLine == "" {
		in.TaxLine = ledger.DefaultIncomeLine
	}
	return nil
}

// CreateIncome validates, lock-checks and inserts an income row, auditing
// the creation in the same transaction.
func (s *Service) CreateIncome(ctx context.Context, in IncomeInput, actor string) (ledger.IncomeRecord, error) {
	if err := in.validate(); err != nil {
		return ledger.IncomeRecord{}, err
	}

	rec := ledger.IncomeRecord{
		ID:          uuid.New(),
		Date:        in.Date,
		Description: in.Description,
		NetAmount:   in.NetAmount.Round(2),
		VATRate:     in.VATRate,
		VATAmount:   ledger.VATAmountFor(in.NetAmount, in.VATRate),
		TaxLine:     in.TaxLine,
		ClientID:    in.ClientID,
	}

	err := s.inTx(ctx, func(tx pgx.Tx) error {
		if err := s.locks.CheckDate(ctx, tx, rec.Date); err != nil {
			return err
		}
		if err := tx.QueryRow(ctx, `
			INSERT INTO income_records (id, date, description, net_amount, vat_rate, vat_amount, tax_line, client_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING created_at, updated_at
		`, rec.ID, rec.Date, rec.Description, rec.NetAmount, rec.VATRate, rec.VATAmount, rec.TaxLine, rec.ClientID,
		).Scan(&rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return fmt.Errorf("inserting income record: %w", err)
		}
		return s.audit.Record(ctx, tx, audit.Entry{
			EntityType: EntityIncome,
			EntityID:   rec.ID.String(),
			Action:     audit.ActionCreate,
			Actor:      actor,
			Diffs:      audit.Creation(incomeSnapshot(rec)),
		})
	})
	if err != nil {
		return ledger.IncomeRecord{}, err
	}

	s.logger.Info("income record created", "id", rec.ID, "date", rec.Date, "net", rec.NetAmount)
	return rec, nil
}

// UpdateIncome rewrites an income row. Both the stored date and the new
// date must be in open periods.
func (s *Service) UpdateIncome(ctx context.Context, id uuid.UUID, in IncomeInput, actor string) (ledger.IncomeRecord, error) {
	if err := in.validate(); err != nil {
		return ledger.IncomeRecord{}, err
	}

	var rec ledger.IncomeRecord
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		before, err := s.getIncome(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if err := s.locks.CheckDate(ctx, tx, before.Date); err != nil {
			return err
		}
		if in.Date != before.Date {
			if err := s.locks.CheckDate(ctx, tx, in.Date); err != nil {
				return err
			}
		}

		rec = before
		rec.Date = in.Date
		rec.Description = in.Description
		rec.NetAmount = in.NetAmount.Round(2)
		rec.VATRate = in.VATRate
		rec.VATAmount = ledger.VATAmountFor(in.NetAmount, in.VATRate)
		rec.TaxLine = in.TaxLine
		rec.ClientID = in.ClientID

		if err := tx.QueryRow(ctx, `
			UPDATE income_records
			SET date = $2, description = $3, net_amount = $4, vat_rate = $5,
			    vat_amount = $6, tax_line = $7, client_id = $8, updated_at = now()
			WHERE id = $1
			RETURNING updated_at
		`, id, rec.Date, rec.Description, rec.NetAmount, rec.VATRate, rec.VATAmount, rec.TaxLine, rec.ClientID,
		).Scan(&rec.UpdatedAt); err != nil {
			return fmt.Errorf("updating income record %s: %w", id, err)
		}

		return s.audit.Record(ctx, tx, audit.Entry{
			EntityType: EntityIncome,
			EntityID:   id.String(),
			Action:     audit.ActionUpdate,
			Actor:      actor,
			Diffs:      audit.Diff(incomeSnapshot(before), incomeSnapshot(rec)),
		})
	})
	if err != nil {
		return ledger.IncomeRecord{}, err
	}
	return rec, nil
}

// DeleteIncome soft-deletes an income row.
func (s *Service) DeleteIncome(ctx context.Context, id uuid.UUID, actor string) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		rec, err := s.getIncome(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if err := s.locks.CheckDate(ctx, tx, rec.Date); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`UPDATE income_records SET deleted = true, updated_at = now() WHERE id = $1`, id,
		); err != nil {
			return fmt.Errorf("soft-deleting income record %s: %w", id, err)
		}
		return s.audit.Record(ctx, tx, audit.Entry{
			EntityType: EntityIncome,
			EntityID:   id.String(),
			Action:     audit.ActionSoftDelete,
			Actor:      actor,
			Diffs:      []audit.FieldDiff{{Field: "deleted", Old: false, New: true}},
		})
	})
}

// GetIncome returns one non-deleted income row.
func (s *Service) GetIncome(ctx context.Context, id uuid.UUID) (ledger.IncomeRecord, error) {
	return s.getIncome(ctx, s.pool, id, false)
}

// IncomeInRange returns the non-deleted income rows dated inside r,
// oldest first. The date filter runs in SQL so report endpoints only load
// the period they aggregate.
func (s *Service) IncomeInRange(ctx context.Context, r ledger.Range) ([]ledger.IncomeRecord, error) {
	return s.incomeInRange(ctx, s.pool, r)
}

func (s *Service) incomeInRange(ctx context.Context, q audit.Querier, r ledger.Range) ([]ledger.IncomeRecord, error) {
	rows, err := q.Query(ctx, `
		SELECT id, date, description, net_amount, vat_rate, vat_amount, tax_line, client_id, deleted, created_at, updated_at
		FROM income_records
		WHERE NOT deleted AND date >= $1 AND date <= $2
		ORDER BY date, created_at
	`, r.Start, r.End)
	if err != nil {
		return nil, fmt.Errorf("querying income records %s..%s: %w", r.Start, r.End, err)
	}
	defer rows.Close()

	var out []ledger.IncomeRecord
	for rows.Next() {
		rec, err := scanIncome(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Service) getIncome(ctx context.Context, q audit.Querier, id uuid.UUID, forUpdate bool) (ledger.IncomeRecord, error) {
	sql := `
		SELECT id, date, description, net_amount, vat_rate, vat_amount, tax_line, client_id, deleted, created_at, updated_at
		FROM income_records
		WHERE id = $1 AND NOT deleted`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	rec, err := scanIncome(q.QueryRow(ctx, sql, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.IncomeRecord{}, apperr.NotFound("income record", id.String())
	}
	if err != nil {
		return ledger.IncomeRecord{}, fmt.Errorf("getting income record %s: %w", id, err)
	}
	return rec, nil
}

// Reader is the period-filtered read surface over the ledger. It is
// satisfied by the Service itself (plain pool reads) and by the view
// handed to ReadSnapshot callbacks.
type Reader interface {
	IncomeInRange(ctx context.Context, r ledger.Range) ([]ledger.IncomeRecord, error)
	ExpensesInRange(ctx context.Context, r ledger.Range) ([]ledger.ExpenseRecord, error)
}

// ReadSnapshot runs fn against a single consistent view of the ledger.
// The reads share a repeatable-read, read-only transaction, so a report
// that aggregates several ranges cannot mix rows from two committed
// states.
func (s *Service) ReadSnapshot(ctx context.Context, fn func(Reader) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return fmt.Errorf("beginning snapshot read: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&txReader{s: s, q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("closing snapshot read: %w", err)
	}
	return nil
}

// txReader pins every range read to one transaction.
type txReader struct {
	s *Service
	q audit.Querier
}

func (r *txReader) IncomeInRange(ctx context.Context, rng ledger.Range) ([]ledger.IncomeRecord, error) {
	return r.s.incomeInRange(ctx, r.q, rng)
}

func (r *txReader) ExpensesInRange(ctx context.Context, rng ledger.Range) ([]ledger.ExpenseRecord, error) {
	return r.s.expensesInRange(ctx, r.q, rng)
}

// inTx runs fn inside a transaction, committing only when fn succeeds.
func (s *Service) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func incomeSnapshot(rec ledger.IncomeRecord) map[string]any {
	snap := map[string]any{
		"date":        rec.Date,
		"description": rec.Description,
		"net_amount":  rec.NetAmount,
		"vat_rate":    rec.VATRate,
		"vat_amount":  rec.VATAmount,
		"tax_line":    rec.TaxLine,
	}
	if rec.ClientID != nil {
		snap["client_id"] = rec.ClientID.String()
	}
	return snap
}
