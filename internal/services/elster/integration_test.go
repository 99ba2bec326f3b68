package elster_test

import (
	"context"
	"errors"
	"log"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/steuerkern/api/internal/apperr"
	"github.com/steuerkern/api/internal/audit"
	"github.com/steuerkern/api/internal/locks"
	"github.com/steuerkern/api/internal/services/client"
	"github.com/steuerkern/api/internal/services/elster"
	"github.com/steuerkern/api/internal/services/euer"
	"github.com/steuerkern/api/internal/services/records"
	"github.com/steuerkern/api/internal/services/settings"
	"github.com/steuerkern/api/internal/services/vatreturn"
	"github.com/steuerkern/api/internal/testutil"
)

var testDB *testutil.TestDB

func TestMain(m *testing.M) {
	var code int
	defer func() { os.Exit(code) }()

	db, err := testutil.SetupTestDB()
	if err != nil {
		log.Fatalf("setting up test database: %v", err)
	}
	defer db.Close()
	testDB = db

	code = m.Run()
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newService() *elster.Service {
	auditSvc := audit.NewService(testDB.Pool, nil)
	lockSvc := locks.NewService(testDB.Pool, auditSvc, nil)
	recordsSvc := records.NewService(testDB.Pool, lockSvc, auditSvc, nil)
	settingsSvc := settings.NewService(testDB.Pool, nil)
	clientSvc := client.NewService(testDB.Pool, nil)
	vatSvc := vatreturn.NewService(recordsSvc, nil)
	euerSvc := euer.NewService(recordsSvc, settingsSvc, nil)
	return elster.NewService(testDB.Pool, vatSvc, euerSvc, recordsSvc, clientSvc, settingsSvc, nil)
}

func TestCreate_PersistsDraft(t *testing.T) {
	testDB.Truncate(t)
	testDB.FixtureSeller(t)
	testDB.FixtureIncome(t, "2025-02-10", dec("5000.00"), 19, uuid.Nil)
	svc := newService()
	ctx := context.Background()

	sub, err := svc.Create(ctx, elster.BuildRequest{
		Type:       elster.TypeUStVA,
		Year:       2025,
		Period:     1,
		PeriodType: "quarter",
		TestMode:   true,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if sub.Status != elster.StatusDraft {
		t.Errorf("status: got %q, want draft", sub.Status)
	}
	if sub.PeriodKey != "2025-Q1" {
		t.Errorf("period key: got %q, want 2025-Q1", sub.PeriodKey)
	}
	if !sub.TestMode {
		t.Error("test mode flag lost")
	}
	if !strings.Contains(sub.XMLPayload, "<Kz81>5000</Kz81>") {
		t.Errorf("payload missing taxable turnover:\n%s", sub.XMLPayload)
	}
	if !strings.Contains(string(sub.Snapshot), `"zahllast"`) {
		t.Errorf("snapshot missing computed figures: %s", sub.Snapshot)
	}

	got, err := svc.Get(ctx, sub.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.XMLPayload != sub.XMLPayload {
		t.Error("payload did not round-trip")
	}
}

func TestCreate_DuplicatePeriodRejected(t *testing.T) {
	testDB.Truncate(t)
	testDB.FixtureSeller(t)
	testDB.FixtureIncome(t, "2025-02-10", dec("1000.00"), 19, uuid.Nil)
	svc := newService()
	ctx := context.Background()

	req := elster.BuildRequest{Type: elster.TypeUStVA, Year: 2025, Period: 1, PeriodType: "quarter"}
	if _, err := svc.Create(ctx, req); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	if _, err := svc.Create(ctx, req); !errors.Is(err, elster.ErrDuplicate) {
		t.Errorf("second Create: got %v, want ErrDuplicate", err)
	}

	// A different period of the same type is fine.
	req.Period = 2
	if _, err := svc.Create(ctx, req); err != nil {
		t.Errorf("Create for Q2: %v", err)
	}
}

func TestCreate_WithoutSellerRejected(t *testing.T) {
	testDB.Truncate(t)
	svc := newService()

	_, err := svc.Create(context.Background(), elster.BuildRequest{
		Type: elster.TypeUStVA, Year: 2025, Period: 1, PeriodType: "quarter",
	})
	if !apperr.IsValidation(err) {
		t.Errorf("got %v, want validation error about missing seller", err)
	}
}

func TestUpdateStatus_WalksTheLifecycle(t *testing.T) {
	testDB.Truncate(t)
	testDB.FixtureSeller(t)
	svc := newService()
	ctx := context.Background()

	sub, err := svc.Create(ctx, elster.BuildRequest{
		Type: elster.TypeUStVA, Year: 2025, Period: 3, PeriodType: "month",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Draft cannot jump straight to accepted.
	if _, err := svc.UpdateStatus(ctx, sub.ID, elster.StatusUpdate{Status: elster.StatusAccepted}); !apperr.IsValidation(err) {
		t.Errorf("draft -> accepted: got %v, want validation error", err)
	}

	sub, err = svc.UpdateStatus(ctx, sub.ID, elster.StatusUpdate{
		Status:         elster.StatusSubmitted,
		TransferTicket: "et-1234567890",
	})
	if err != nil {
		t.Fatalf("draft -> submitted: %v", err)
	}
	if sub.TransferTicket != "et-1234567890" {
		t.Errorf("transfer ticket: got %q", sub.TransferTicket)
	}

	sub, err = svc.UpdateStatus(ctx, sub.ID, elster.StatusUpdate{
		Status:      elster.StatusAccepted,
		ResponseXML: "<Erfolg/>",
	})
	if err != nil {
		t.Fatalf("submitted -> accepted: %v", err)
	}
	if sub.Status != elster.StatusAccepted {
		t.Errorf("final status: got %q", sub.Status)
	}

	// Accepted is terminal.
	if _, err := svc.UpdateStatus(ctx, sub.ID, elster.StatusUpdate{Status: elster.StatusDraft}); !apperr.IsValidation(err) {
		t.Errorf("accepted -> draft: got %v, want validation error", err)
	}
}

func TestUpdateStatus_OnlyOneSubmitWins(t *testing.T) {
	testDB.Truncate(t)
	testDB.FixtureSeller(t)
	svc := newService()
	ctx := context.Background()

	sub, err := svc.Create(ctx, elster.BuildRequest{
		Type: elster.TypeUStVA, Year: 2025, Period: 4, PeriodType: "month",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	first, err := svc.UpdateStatus(ctx, sub.ID, elster.StatusUpdate{
		Status:         elster.StatusSubmitted,
		TransferTicket: "et-0000000001",
	})
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}

	// A second submit of the same draft must fail instead of silently
	// overwriting the first transfer ticket.
	if _, err := svc.UpdateStatus(ctx, sub.ID, elster.StatusUpdate{
		Status:         elster.StatusSubmitted,
		TransferTicket: "et-0000000002",
	}); !apperr.IsValidation(err) {
		t.Fatalf("second submit: got %v, want validation error", err)
	}

	got, err := svc.Get(ctx, sub.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != elster.StatusSubmitted || got.TransferTicket != first.TransferTicket {
		t.Errorf("submission after duplicate submit: status %q ticket %q, want %q/%q",
			got.Status, got.TransferTicket, elster.StatusSubmitted, first.TransferTicket)
	}
}

func TestUpdateStatus_UnknownID(t *testing.T) {
	testDB.Truncate(t)
	svc := newService()

	_, err := svc.UpdateStatus(context.Background(), uuid.New(), elster.StatusUpdate{Status: elster.StatusSubmitted})
	if !apperr.IsNotFound(err) {
		t.Errorf("got %v, want not-found", err)
	}
}
