package records

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/steuerkern/api/internal/apperr"
	"github.com/steuerkern/api/internal/audit"
	"github.com/steuerkern/api/internal/ledger"
)

// DepreciationInput carries the caller-supplied fields of a depreciation entry.
type DepreciationInput struct {
	AssetName               string
	Year                    int
	DepreciationAmount      decimal.Decimal
	AccumulatedDepreciation decimal.Decimal
	BookValue               decimal.Decimal
}

func (in *DepreciationInput) validate() error {
	if in.AssetName == "" {
		return apperr.Validation("asset name is required")
	}
	if in.Year < 2000 || in.Year > 2100 {
		return apperr.Validation("year %d is out of range", in.Year)
	}
	if in.DepreciationAmount.IsNegative() {
		return apperr.Validation("depreciation amount must not be negative")
	}
	return nil
}

// CreateDepreciation inserts a depreciation entry after checking the year
// lock. Depreciation has no calendar day, so only the year-level lock
// applies.
func (s *Service) CreateDepreciation(ctx context.Context, in DepreciationInput, actor string) (ledger.DepreciationEntry, error) {
	if err := in.validate(); err != nil {
		return ledger.DepreciationEntry{}, err
	}

	entry := ledger.DepreciationEntry{
		ID:                      uuid.New(),
		AssetName:               in.AssetName,
		Year:                    in.Year,
		DepreciationAmount:      in.DepreciationAmount.Round(2),
		AccumulatedDepreciation: in.AccumulatedDepreciation.Round(2),
		BookValue:               in.BookValue.Round(2),
	}

	err := s.inTx(ctx, func(tx pgx.Tx) error {
		if err := s.locks.CheckYear(ctx, tx, entry.Year); err != nil {
			return err
		}
		if err := tx.QueryRow(ctx, `
			INSERT INTO depreciation_entries (id, asset_name, year, depreciation_amount, accumulated_depreciation, book_value)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING created_at
		`, entry.ID, entry.AssetName, entry.Year, entry.DepreciationAmount, entry.AccumulatedDepreciation, entry.BookValue,
		).Scan(&entry.CreatedAt); err != nil {
			return fmt.Errorf("inserting depreciation entry: %w", err)
		}
		return s.audit.Record(ctx, tx, audit.Entry{
			EntityType: EntityDepreciation,
			EntityID:   entry.ID.String(),
			Action:     audit.ActionCreate,
			Actor:      actor,
			Diffs:      audit.Creation(depreciationSnapshot(entry)),
		})
	})
	if err != nil {
		return ledger.DepreciationEntry{}, err
	}

	s.logger.Info("depreciation entry created", "id", entry.ID, "asset", entry.AssetName, "year", entry.Year)
	return entry, nil
}

// DeleteDepreciation removes a depreciation entry. Entries are corrections
// to a yearly schedule rather than bookkeeping rows, so deletion is hard,
// but still lock-guarded and audited.
func (s *Service) DeleteDepreciation(ctx context.Context, id uuid.UUID, actor string) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		var entry ledger.DepreciationEntry
		err := tx.QueryRow(ctx, `
			SELECT id, asset_name, year, depreciation_amount, accumulated_depreciation, book_value, created_at
			FROM depreciation_entries
			WHERE id = $1
			FOR UPDATE
		`, id).Scan(&entry.ID, &entry.AssetName, &entry.Year, &entry.DepreciationAmount,
			&entry.AccumulatedDepreciation, &entry.BookValue, &entry.CreatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound("depreciation entry", id.String())
		}
		if err != nil {
			return fmt.Errorf("getting depreciation entry %s: %w", id, err)
		}
		if err := s.locks.CheckYear(ctx, tx, entry.Year); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM depreciation_entries WHERE id = $1`, id); err != nil {
			return fmt.Errorf("deleting depreciation entry %s: %w", id, err)
		}
		return s.audit.Record(ctx, tx, audit.Entry{
			EntityType: EntityDepreciation,
			EntityID:   id.String(),
			Action:     audit.ActionSoftDelete,
			Actor:      actor,
			Diffs:      []audit.FieldDiff{{Field: "deleted", Old: false, New: true}},
		})
	})
}

// DepreciationForYear returns the entries booked for one calendar year.
func (s *Service) DepreciationForYear(ctx context.Context, year int) ([]ledger.DepreciationEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, asset_name, year, depreciation_amount, accumulated_depreciation, book_value, created_at
		FROM depreciation_entries
		WHERE year = $1
		ORDER BY asset_name, created_at
	`, year)
	if err != nil {
		return nil, fmt.Errorf("querying depreciation entries for %d: %w", year, err)
	}
	defer rows.Close()

	var out []ledger.DepreciationEntry
	for rows.Next() {
		var e ledger.DepreciationEntry
		if err := rows.Scan(&e.ID, &e.AssetName, &e.Year, &e.DepreciationAmount,
			&e.AccumulatedDepreciation, &e.BookValue, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func depreciationSnapshot(e ledger.DepreciationEntry) map[string]any {
	return map[string]any{
		"asset_name":               e.AssetName,
		"year":                     e.Year,
		"depreciation_amount":      e.DepreciationAmount,
		"accumulated_depreciation": e.AccumulatedDepreciation,
		"book_value":               e.BookValue,
	}
}
