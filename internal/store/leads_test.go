package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"zionic-engine/internal/lead"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := Migrate(db.Pool); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return db
}

func testLead(company, roles string) lead.Lead {
	f := lead.EmptyFields()
	f.Company = company
	f.RolesAdvertised = roles
	f.Sector = "Electrical"
	f.EmploymentType = "Full-time"
	f.Skip = "No"
	return lead.Normalize(f, lead.Rules{Sector: "Electrical", Timezone: time.UTC}, time.Now())
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	if err := Migrate(db.Pool); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
}

func TestInsertAndFind(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	row, inserted, err := InsertLeadIgnore(ctx, db.Pool, testLead("Sparky Co", "Electrician"), "subject", time.Now())
	if err != nil {
		t.Fatalf("InsertLeadIgnore: %v", err)
	}
	if !inserted {
		t.Fatal("expected insert")
	}

	id, dup, found, err := FindByDedupeKey(ctx, db.Pool, row.DedupeKey)
	if err != nil {
		t.Fatalf("FindByDedupeKey: %v", err)
	}
	if !found || dup || id != row.ID {
		t.Errorf("found=%v dup=%v id=%d, want found, not dup, id=%d", found, dup, id, row.ID)
	}
}

func TestFindMissingKey(t *testing.T) {
	db := newTestDB(t)

	_, _, found, err := FindByDedupeKey(context.Background(), db.Pool, "nobody|nothing")
	if err != nil {
		t.Fatalf("FindByDedupeKey: %v", err)
	}
	if found {
		t.Error("found a row that was never inserted")
	}
}

func TestInsertIgnoresSameKey(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now()

	if _, inserted, err := InsertLeadIgnore(ctx, db.Pool, testLead("Sparky Co", "Electrician"), "a", now); err != nil || !inserted {
		t.Fatalf("first insert: inserted=%v err=%v", inserted, err)
	}
	if _, inserted, err := InsertLeadIgnore(ctx, db.Pool, testLead("Sparky Co", "Electrician"), "b", now); err != nil {
		t.Fatalf("second insert: %v", err)
	} else if inserted {
		t.Error("second insert with same key must be ignored")
	}
}

func TestMarkDuplicateIdempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	row, _, err := InsertLeadIgnore(ctx, db.Pool, testLead("Sparky Co", "Electrician"), "s", time.Now())
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		if err := MarkDuplicate(ctx, db.Pool, row.ID); err != nil {
			t.Fatalf("MarkDuplicate %d: %v", i, err)
		}
	}

	_, dup, _, err := FindByDedupeKey(ctx, db.Pool, row.DedupeKey)
	if err != nil {
		t.Fatal(err)
	}
	if !dup {
		t.Error("duplicate_flag not set")
	}
}

func TestListLeadsFilters(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now()

	mk := func(company, roles, location string) {
		t.Helper()
		l := testLead(company, roles)
		l.Location = location
		if _, _, err := InsertLeadIgnore(ctx, db.Pool, l, "s", now); err != nil {
			t.Fatal(err)
		}
	}
	mk("Sparky Co", "Electrician", "Adelaide SA")
	mk("Volt Pty", "Apprentice Electrician", "Mount Barker SA")
	mk("Pipes R Us", "Plumber", "Melbourne VIC")

	got, err := ListLeads(ctx, db.Pool, ListLeadsOpts{Role: "electrician"})
	if err != nil {
		t.Fatalf("ListLeads: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("role filter matched %d rows, want 2", len(got))
	}

	got, err = ListLeads(ctx, db.Pool, ListLeadsOpts{Town: "adelaide"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Company != "Sparky Co" {
		t.Errorf("town filter = %+v", got)
	}

	got, err = ListLeads(ctx, db.Pool, ListLeadsOpts{State: "SA"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("state filter matched %d rows, want 2", len(got))
	}
}

func TestLeadMetrics(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now()

	m, err := LeadMetrics(ctx, db.Pool)
	if err != nil {
		t.Fatalf("LeadMetrics on empty table: %v", err)
	}
	if m != (Metrics{}) {
		t.Errorf("empty metrics = %+v", m)
	}

	high := testLead("Sparky Co", "Electrician")
	high.Email = "boss@sparky.example"
	high.Phone = "0400"
	high.SalaryInfo = "$95k"
	high.Priority = 4

	low := testLead("Volt Pty", "Apprentice")

	if _, _, err := InsertLeadIgnore(ctx, db.Pool, high, "s", now); err != nil {
		t.Fatal(err)
	}
	row, _, err := InsertLeadIgnore(ctx, db.Pool, low, "s", now)
	if err != nil {
		t.Fatal(err)
	}
	if err := MarkDuplicate(ctx, db.Pool, row.ID); err != nil {
		t.Fatal(err)
	}

	m, err = LeadMetrics(ctx, db.Pool)
	if err != nil {
		t.Fatalf("LeadMetrics: %v", err)
	}
	want := Metrics{TotalLeads: 2, UniqueLeads: 1, HighPriorityLeads: 1, DuplicatesFound: 1}
	if m != want {
		t.Errorf("metrics = %+v, want %+v", m, want)
	}
}

func TestAllLeadsNewestFirst(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	old := time.Now().Add(-time.Hour)
	if _, _, err := InsertLeadIgnore(ctx, db.Pool, testLead("Old Co", "Electrician"), "s", old); err != nil {
		t.Fatal(err)
	}
	if _, _, err := InsertLeadIgnore(ctx, db.Pool, testLead("New Co", "Electrician"), "s", time.Now()); err != nil {
		t.Fatal(err)
	}

	got, err := AllLeads(ctx, db.Pool)
	if err != nil {
		t.Fatalf("AllLeads: %v", err)
	}
	if len(got) != 2 || got[0].Company != "New Co" {
		t.Errorf("order wrong: %+v", got)
	}
}
