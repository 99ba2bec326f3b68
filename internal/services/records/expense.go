package records

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/steuerkern/api/internal/apperr"
	"github.com/steuerkern/api/internal/audit"
	"github.com/steuerkern/api/internal/ledger"
)

// ExpenseInput carries the caller-supplied fields of an expense record.
type ExpenseInput struct {
	Date              string
	Description       string
	NetAmount         decimal.Decimal
	VATRate           int
	DeductiblePercent decimal.Decimal
	BusinessMeal      bool
	TaxLine           string
}

func (in *ExpenseInput) validate() error {
	if _, err := ledger.ParseDay(in.Date); err != nil {
		return apperr.Validation("%v", err)
	}
	if !ledger.ValidRate(in.VATRate) {
		return apperr.Validation("vat rate %d is not one of 0, 7, 19", in.VATRate)
	}
	if in.BusinessMeal {
		// Statutory rule: business meals are 70% deductible, whatever
		// the caller sent.
		in.DeductiblePercent = decimal.NewFromInt(ledger.MealDeductiblePercent)
	}
	if in.DeductiblePercent.IsNegative() || in.DeductiblePercent.GreaterThan(hundred) {
		return apperr.Validation("deductible percent %s must be between 0 and 100", in.DeductiblePercent)
	}
	if in.TaxLine == "" {
		in.TaxLine = ledger.DefaultExpenseLine
	}
	return nil
}

// CreateExpense validates, lock-checks and inserts an expense row,
// auditing the creation in the same transaction.
func (s *Service) CreateExpense(ctx context.Context, in ExpenseInput, actor string) (ledger.ExpenseRecord, error) {
	if err := in.validate(); err != nil {
		return ledger.ExpenseRecord{}, err
	}

	rec := ledger.ExpenseRecord{
		ID:                uuid.New(),
		Date:              in.Date,
		Description:       in.Description,
		NetAmount:         in.NetAmount.Round(2),
		VATRate:           in.VATRate,
		VATAmount:         ledger.VATAmountFor(in.NetAmount, in.VATRate),
		DeductiblePercent: in.DeductiblePercent,
		BusinessMeal:      in.BusinessMeal,
		TaxLine:           in.TaxLine,
	}

	err := s.inTx(ctx, func(tx pgx.Tx) error {
		if err := s.locks.CheckDate(ctx, tx, rec.Date); err != nil {
			return err
		}
		if err := tx.QueryRow(ctx, `
			INSERT INTO expense_records (id, date, description, net_amount, vat_rate, vat_amount, deductible_percent, business_meal, tax_line)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING created_at, updated_at
		`, rec.ID, rec.Date, rec.Description, rec.NetAmount, rec.VATRate, rec.VATAmount, rec.DeductiblePercent, rec.BusinessMeal, rec.TaxLine,
		).Scan(&rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return fmt.Errorf("inserting expense record: %w", err)
		}
		return s.audit.Record(ctx, tx, audit.Entry{
			EntityType: EntityExpense,
			EntityID:   rec.ID.String(),
			Action:     audit.ActionCreate,
			Actor:      actor,
			Diffs:      audit.Creation(expenseSnapshot(rec)),
		})
	})
	if err != nil {
		return ledger.ExpenseRecord{}, err
	}

	s.logger.Info("expense record created", "id", rec.ID, "date", rec.Date, "net", rec.NetAmount)
	return rec, nil
}

// UpdateExpense rewrites an expense row under the same guards as income.
func (s *Service) UpdateExpense(ctx context.Context, id uuid.UUID, in ExpenseInput, actor string) (ledger.ExpenseRecord, error) {
	if err := in.validate(); err != nil {
		return ledger.ExpenseRecord{}, err
	}

	var rec ledger.ExpenseRecord
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		before, err := s.getExpense(ctx, tx, id, true)
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
		rec.DeductiblePercent = in.DeductiblePercent
		rec.BusinessMeal = in.BusinessMeal
		rec.TaxLine = in.TaxLine

		if err := tx.QueryRow(ctx, `
			UPDATE expense_records
			SET date = $2, description = $3, net_amount = $4, vat_rate = $5, vat_amount = $6,
			    deductible_percent = $7, business_meal = $8, tax_line = $9, updated_at = now()
			WHERE id = $1
			RETURNING updated_at
		`, id, rec.Date, rec.Description, rec.NetAmount, rec.VATRate, rec.VATAmount, rec.DeductiblePercent, rec.BusinessMeal, rec.TaxLine,
		).Scan(&rec.UpdatedAt); err != nil {
			return fmt.Errorf("updating expense record %s: %w", id, err)
		}

		return s.audit.Record(ctx, tx, audit.Entry{
			EntityType: EntityExpense,
			EntityID:   id.String(),
			Action:     audit.ActionUpdate,
			Actor:      actor,
			Diffs:      audit.Diff(expenseSnapshot(before), expenseSnapshot(rec)),
		})
	})
	if err != nil {
		return ledger.ExpenseRecord{}, err
	}
	return rec, nil
}

// DeleteExpense soft-deletes an expense row.
func (s *Service) DeleteExpense(ctx context.Context, id uuid.UUID, actor string) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		rec, err := s.getExpense(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if err := s.locks.CheckDate(ctx, tx, rec.Date); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`UPDATE expense_records SET deleted = true, updated_at = now() WHERE id = $1`, id,
		); err != nil {
			return fmt.Errorf("soft-deleting expense record %s: %w", id, err)
		}
		return s.audit.Record(ctx, tx, audit.Entry{
			EntityType: EntityExpense,
			EntityID:   id.String(),
			Action:     audit.ActionSoftDelete,
			Actor:      actor,
			Diffs:      []audit.FieldDiff{{Field: "deleted", Old: false, New: true}},
		})
	})
}

// GetExpense returns one non-deleted expense row.
func (s *Service) GetExpense(ctx context.Context, id uuid.UUID) (ledger.ExpenseRecord, error) {
	return s.getExpense(ctx, s.pool, id, false)
}

// ExpensesInRange returns the non-deleted expense rows dated inside r.
func (s *Service) ExpensesInRange(ctx context.Context, r ledger.Range) ([]ledger.ExpenseRecord, error) {
	return s.expensesInRange(ctx, s.pool, r)
}

func (s *Service) expensesInRange(ctx context.Context, q audit.Querier, r ledger.Range) ([]ledger.ExpenseRecord, error) {
	rows, err := q.Query(ctx, `
		SELECT id, date, description, net_amount, vat_rate, vat_amount, deductible_percent, business_meal, tax_line, deleted, created_at, updated_at
		FROM expense_records
		WHERE NOT deleted AND date >= $1 AND date <= $2
		ORDER BY date, created_at
	`, r.Start, r.End)
	if err != nil {
		return nil, fmt.Errorf("querying expense records %s..%s: %w", r.Start, r.End, err)
	}
	defer rows.Close()

	var out []ledger.ExpenseRecord
	for rows.Next() {
		rec, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Service) getExpense(ctx context.Context, q audit.Querier, id uuid.UUID, forUpdate bool) (ledger.ExpenseRecord, error) {
	sql := `
		SELECT id, date, description, net_amount, vat_rate, vat_amount, deductible_percent, business_meal, tax_line, deleted, created_at, updated_at
		FROM expense_records
		WHERE id = $1 AND NOT deleted`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	rec, err := scanExpense(q.QueryRow(ctx, sql, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.ExpenseRecord{}, apperr.NotFound("expense record", id.String())
	}
	if err != nil {
		return ledger.ExpenseRecord{}, fmt.Errorf("getting expense record %s: %w", id, err)
	}
	return rec, nil
}

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanIncome(row rowScanner) (ledger.IncomeRecord, error) {
	var (
		rec ledger.IncomeRecord
		day time.Time
	)
	err := row.Scan(&rec.ID, &day, &rec.Description, &rec.NetAmount, &rec.VATRate, &rec.VATAmount,
		&rec.TaxLine, &rec.ClientID, &rec.Deleted, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return ledger.IncomeRecord{}, err
	}
	rec.Date = day.Format("2006-01-02")
	return rec, nil
}

func scanExpense(row rowScanner) (ledger.ExpenseRecord, error) {
	var (
		rec ledger.ExpenseRecord
		day time.Time
	)
	err := row.Scan(&rec.ID, &day, &rec.Description, &rec.NetAmount, &rec.VATRate, &rec.VATAmount,
		&rec.DeductiblePercent, &rec.BusinessMeal, &rec.TaxLine, &rec.Deleted, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return ledger.ExpenseRecord{}, err
	}
	rec.Date = day.Format("2006-01-02")
	return rec, nil
}

func expenseSnapshot(rec ledger.ExpenseRecord) map[string]any {
	return map[string]any{
		"date":               rec.Date,
		"description":        rec.Description,
		"net_amount":         rec.NetAmount,
		"vat_rate":           rec.VATRate,
		"vat_amount":         rec.VATAmount,
		"deductible_percent": rec.DeductiblePercent,
		"business_meal":      rec.BusinessMeal,
		"tax_line":           rec.TaxLine,
	}
}
