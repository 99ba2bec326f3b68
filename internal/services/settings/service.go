// Package settings stores the tenant-wide configuration the calculators
// and generators read: the homeoffice flat rate, the seller identity and
// the bank details. Values live in a JSONB key-value table so scalars and
// structured settings share one store.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/steuerkern/api/internal/apperr"
)

// Setting keys known to the suite.
const (
	KeyHomeofficeEnabled = "homeoffice_enabled"
	KeyHomeofficeRate    = "homeoffice_rate"
	KeySeller            = "seller"
	KeyBank              = "bank"
)

// DefaultHomeofficeRate is the statutory annual Homeoffice-Pauschale.
var DefaultHomeofficeRate = decimal.NewFromInt(1260)

// Seller is the issuing party of invoices and submissions.
type Seller struct {
	Name        string `json:"name"`
	Street      string `json:"street"`
	PostalCode  string `json:"postalCode"`
	City        string `json:"city"`
	CountryCode string `json:"countryCode"`
	TaxNumber   string `json:"taxNumber"`
	VATID       string `json:"vatId"`
	Email       string `json:"email"`
}

// Bank holds the payment account printed on invoices.
type Bank struct {
	IBAN        string `json:"iban"`
	BIC         string `json:"bic"`
	AccountName string `json:"accountName"`
}

// Service reads and writes the settings table.
type Service struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewService creates a new settings service.
func NewService(pool *pgxpool.Pool, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{pool: pool, logger: logger}
}

// Get unmarshals the value stored under key into dst. A missing key
// returns a NotFoundError and leaves dst untouched.
func (s *Service) Get(ctx context.Context, key string, dst any) error {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, key).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("setting", key)
	}
	if err != nil {
		return fmt.Errorf("reading setting %q: %w", key, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decoding setting %q: %w", key, err)
	}
	return nil
}

// Set upserts a setting.
func (s *Service) Set(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding setting %q: %w", key, err)
	}
	if _, err := s.pool.Exec(ctx, `
		INSERT INTO settings (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()
	`, key, raw); err != nil {
		return fmt.Errorf("writing setting %q: %w", key, err)
	}
	s.logger.Info("setting updated", "key", key)
	return nil
}

// HomeofficeEnabled reports whether the flat-rate deduction is switched
// on. A missing key means disabled.
func (s *Service) HomeofficeEnabled(ctx context.Context) (bool, error) {
	var enabled bool
	err := s.Get(ctx, KeyHomeofficeEnabled, &enabled)
	if apperr.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return enabled, nil
}

// HomeofficeRate returns the configured annual flat rate, falling back to
// the statutory default when unset.
func (s *Service) HomeofficeRate(ctx context.Context) (decimal.Decimal, error) {
	var raw string
	err := s.Get(ctx, KeyHomeofficeRate, &raw)
	if apperr.IsNotFound(err) {
		return DefaultHomeofficeRate, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	rate, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing homeoffice rate %q: %w", raw, err)
	}
	return rate, nil
}

// Seller returns the configured seller identity.
func (s *Service) Seller(ctx context.Context) (Seller, error) {
	var seller Seller
	if err := s.Get(ctx, KeySeller, &seller); err != nil {
		return Seller{}, err
	}
	return seller, nil
}

// Bank returns the configured payment account.
func (s *Service) Bank(ctx context.Context) (Bank, error) {
	var bank Bank
	if err := s.Get(ctx, KeyBank, &bank); err != nil {
		return Bank{}, err
	}
	return bank, nil
}
