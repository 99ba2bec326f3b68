// Package client manages the buyer identities referenced by income
// records, e-invoices and the EC sales list.
package client

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
)

// Client is one buyer.
type Client struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Street      string    `json:"street"`
	PostalCode  string    `json:"postalCode"`
	City        string    `json:"city"`
	CountryCode string    `json:"countryCode"`
	VATID       string    `json:"vatId,omitempty"`
	Email       string    `json:"email,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Input carries the caller-supplied client fields.
type Input struct {
	Name        string `json:"name"`
	Street      string `json:"street"`
	PostalCode  string `json:"postalCode"`
	City        string `json:"city"`
	CountryCode string `json:"countryCode"`
	VATID       string `json:"vatId"`
	Email       string `json:"email"`
}

func (in *Input) validate() error {
	if in.Name == "" {
		return apperr.Validation("client name is required")
	}
	if in.CountryCode == "" {
		in.CountryCode = "DE"
	}
	if len(in.CountryCode) != 2 {
		return apperr.Validation("country code %q must be ISO 3166-1 alpha-2", in.CountryCode)
	}
	return nil
}

// Service is the client store.
type Service struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewService creates a new client service.
func NewService(pool *pgxpool.Pool, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{pool: pool, logger: logger}
}

// Create inserts a client.
func (s *Service) Create(ctx context.Context, in Input) (Client, error) {
	if err := in.validate(); err != nil {
		return Client{}, err
	}
	c := Client{
		ID:          uuid.New(),
		Name:        in.Name,
		Street:      in.Street,
		PostalCode:  in.PostalCode,
		City:        in.City,
		CountryCode: in.CountryCode,
		VATID:       in.VATID,
		Email:       in.Email,
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO clients (id, name, street, postal_code, city, country_code, vat_id, email)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''))
		RETURNING created_at, updated_at
	`, c.ID, c.Name, c.Street, c.PostalCode, c.City, c.CountryCode, c.VATID, c.Email,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Client{}, fmt.Errorf("inserting client: %w", err)
	}
	s.logger.Info("client created", "id", c.ID, "name", c.Name)
	return c, nil
}

// Update rewrites a client.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in Input) (Client, error) {
	if err := in.validate(); err != nil {
		return Client{}, err
	}
	c := Client{
		ID:          id,
		Name:        in.Name,
		Street:      in.Street,
		PostalCode:  in.PostalCode,
		City:        in.City,
		CountryCode: in.CountryCode,
		VATID:       in.VATID,
		Email:       in.Email,
	}
	err := s.pool.QueryRow(ctx, `
		UPDATE clients
		SET name = $2, street = $3, postal_code = $4, city = $5, country_code = $6,
		    vat_id = NULLIF($7, ''), email = NULLIF($8, ''), updated_at = now()
		WHERE id = $1
		RETURNING created_at, updated_at
	`, id, c.Name, c.Street, c.PostalCode, c.City, c.CountryCode, c.VATID, c.Email,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Client{}, apperr.NotFound("client", id.String())
	}
	if err != nil {
		return Client{}, fmt.Errorf("updating client %s: %w", id, err)
	}
	return c, nil
}

// Get returns one client.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Client, error) {
	c, err := scanClient(s.pool.QueryRow(ctx, selectClient+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Client{}, apperr.NotFound("client", id.String())
	}
	if err != nil {
		return Client{}, fmt.Errorf("getting client %s: %w", id, err)
	}
	return c, nil
}

// List returns all clients ordered by name.
func (s *Service) List(ctx context.Context) ([]Client, error) {
	rows, err := s.pool.Query(ctx, selectClient+` ORDER BY name, created_at`)
	if err != nil {
		return nil, fmt.Errorf("listing clients: %w", err)
	}
	defer rows.Close()

	var out []Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Delete removes a client. Referenced clients are protected by the
// income_records foreign key; the database error surfaces as-is.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM clients WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting client %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("client", id.String())
	}
	return nil
}

const selectClient = `
	SELECT id, name, street, postal_code, city, country_code,
	       COALESCE(vat_id, ''), COALESCE(email, ''), created_at, updated_at
	FROM clients`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClient(row rowScanner) (Client, error) {
	var c Client
	err := row.Scan(&c.ID, &c.Name, &c.Street, &c.PostalCode, &c.City,
		&c.CountryCode, &c.VATID, &c.Email, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}
