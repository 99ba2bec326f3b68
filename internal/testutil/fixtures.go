package testutil

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FixtureClient inserts a client and returns its id. An empty vatID is
// stored as NULL.
func (tdb *TestDB) FixtureClient(t *testing.T, name, countryCode, vatID string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := tdb.Pool.Exec(context.Background(), `
		INSERT INTO clients (id, name, street, postal_code, city, country_code, vat_id)
		VALUES ($1, $2, 'Teststr. 1', '10115', 'Berlin', $3, NULLIF($4, ''))
	`, id, name, countryCode, vatID)
	if err != nil {
		t.Fatalf("creating fixture client %q: %v", name, err)
	}
	return id
}

// FixtureIncome inserts an income record directly, bypassing lock checks
// and the audit trail. clientID may be uuid.Nil for domestic income.
func (tdb *TestDB) FixtureIncome(t *testing.T, date string, net decimal.Decimal, rate int, clientID uuid.UUID) uuid.UUID {
	t.Helper()
	id := uuid.New()
	vat := net.Mul(decimal.NewFromInt(int64(rate))).Div(decimal.NewFromInt(100)).Round(2)

	var client *uuid.UUID
	if clientID != uuid.Nil {
		client = &clientID
	}
	_, err := tdb.Pool.Exec(context.Background(), `
		INSERT INTO income_records (id, date, description, net_amount, vat_rate, vat_amount, tax_line, client_id)
		VALUES ($1, $2, 'Fixture income', $3, $4, $5, 'Betriebseinnahmen', $6)
	`, id, date, net, rate, vat, client)
	if err != nil {
		t.Fatalf("creating fixture income on %s: %v", date, err)
	}
	return id
}

// FixtureExpense inserts a fully deductible expense record.
func (tdb *TestDB) FixtureExpense(t *testing.T, date string, net decimal.Decimal, rate int, taxLine string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	vat := net.Mul(decimal.NewFromInt(int64(rate))).Div(decimal.NewFromInt(100)).Round(2)
	_, err := tdb.Pool.Exec(context.Background(), `
		INSERT INTO expense_records (id, date, description, net_amount, vat_rate, vat_amount, deductible_percent, business_meal, tax_line)
		VALUES ($1, $2, 'Fixture expense', $3, $4, $5, 100, false, $6)
	`, id, date, net, rate, vat, taxLine)
	if err != nil {
		t.Fatalf("creating fixture expense on %s: %v", date, err)
	}
	return id
}

// FixtureSeller stores a complete seller identity in settings.
func (tdb *TestDB) FixtureSeller(t *testing.T) {
	t.Helper()
	_, err := tdb.Pool.Exec(context.Background(), `
		INSERT INTO settings (key, value)
		VALUES ('seller', '{"name":"Testfirma","street":"Teststr. 1","postalCode":"10115","city":"Berlin","countryCode":"DE","taxNumber":"1121081508150","vatId":"DE123456789","email":"test@testfirma.example"}')
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
	`)
	if err != nil {
		t.Fatalf("seeding fixture seller: %v", err)
	}
}
