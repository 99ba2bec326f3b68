package audit_test

import (
	"context"
	"log"
	"os"
	"testing"

	"github.com/steuerkern/api/internal/audit"
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

func record(t *testing.T, svc *audit.Service, entityType, entityID string, action audit.Action, actor string) {
	t.Helper()
	err := svc.Record(context.Background(), testDB.Pool, audit.Entry{
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		Actor:      actor,
		Diffs:      []audit.FieldDiff{{Field: "net_amount", Old: "100.00", New: "200.00"}},
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
}

func TestHistory_OrderedOldestFirst(t *testing.T) {
	testDB.Truncate(t)
	svc := audit.NewService(testDB.Pool, nil)
	ctx := context.Background()

	record(t, svc, "income_record", "abc", audit.ActionCreate, "alice")
	record(t, svc, "income_record", "abc", audit.ActionUpdate, "bob")
	record(t, svc, "income_record", "other", audit.ActionCreate, "alice")

	entries, err := svc.History(ctx, "income_record", "abc")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries: got %d, want 2", len(entries))
	}
	if entries[0].Action != audit.ActionCreate || entries[1].Action != audit.ActionUpdate {
		t.Errorf("order: got %q, %q, want create, update", entries[0].Action, entries[1].Action)
	}
	if len(entries[1].Diffs) != 1 || entries[1].Diffs[0].Field != "net_amount" {
		t.Errorf("diffs did not round-trip: %+v", entries[1].Diffs)
	}
}

func TestRecord_UnknownActionRejected(t *testing.T) {
	testDB.Truncate(t)
	svc := audit.NewService(testDB.Pool, nil)

	err := svc.Record(context.Background(), testDB.Pool, audit.Entry{
		EntityType: "income_record",
		EntityID:   "abc",
		Action:     "destroy",
		Actor:      "alice",
	})
	if err == nil {
		t.Fatal("expected unknown action to be rejected")
	}
}

func TestAuditLog_IsImmutable(t *testing.T) {
	testDB.Truncate(t)
	svc := audit.NewService(testDB.Pool, nil)
	ctx := context.Background()

	record(t, svc, "income_record", "abc", audit.ActionCreate, "alice")

	// The table trigger rejects any UPDATE or DELETE outright.
	if _, err := testDB.Pool.Exec(ctx, `UPDATE audit_log SET actor = 'mallory'`); err == nil {
		t.Error("expected UPDATE on audit_log to fail")
	}
	if _, err := testDB.Pool.Exec(ctx, `DELETE FROM audit_log`); err == nil {
		t.Error("expected DELETE on audit_log to fail")
	}

	entries, err := svc.History(ctx, "income_record", "abc")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(entries) != 1 || entries[0].Actor != "alice" {
		t.Errorf("trail changed despite immutability: %+v", entries)
	}
}

func TestSearch_Filters(t *testing.T) {
	testDB.Truncate(t)
	svc := audit.NewService(testDB.Pool, nil)
	ctx := context.Background()

	record(t, svc, "income_record", "a", audit.ActionCreate, "alice")
	record(t, svc, "income_record", "a", audit.ActionUpdate, "alice")
	record(t, svc, "expense_record", "b", audit.ActionCreate, "bob")
	record(t, svc, "period_lock", "2025-01", audit.ActionLock, "bob")

	tests := []struct {
		name   string
		filter audit.Filter
		want   int
	}{
		{"no filter returns all", audit.Filter{}, 4},
		{"by entity type", audit.Filter{EntityType: "income_record"}, 2},
		{"by action", audit.Filter{Action: audit.ActionCreate}, 2},
		{"by actor", audit.Filter{Actor: "bob"}, 2},
		{"combined", audit.Filter{EntityType: "expense_record", Actor: "bob"}, 1},
		{"no matches", audit.Filter{Actor: "mallory"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := svc.Search(ctx, tt.filter)
			if err != nil {
				t.Fatalf("Search: %v", err)
			}
			if len(entries) != tt.want {
				t.Errorf("got %d entries, want %d", len(entries), tt.want)
			}
		})
	}
}

func TestSearch_Pagination(t *testing.T) {
	testDB.Truncate(t)
	svc := audit.NewService(testDB.Pool, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		record(t, svc, "income_record", "a", audit.ActionUpdate, "alice")
	}

	page1, err := svc.Search(ctx, audit.Filter{Limit: 2})
	if err != nil {
		t.Fatalf("Search page 1: %v", err)
	}
	page2, err := svc.Search(ctx, audit.Filter{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("Search page 2: %v", err)
	}
	if len(page1) != 2 || len(page2) != 2 {
		t.Fatalf("page sizes: got %d and %d, want 2 and 2", len(page1), len(page2))
	}
	// Newest first, so ids strictly decrease across pages.
	if page1[1].ID <= page2[0].ID {
		t.Errorf("expected page 1 to hold newer entries than page 2")
	}
}
