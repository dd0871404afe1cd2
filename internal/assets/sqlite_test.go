package assets

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(t.TempDir() + "/assets.db")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLitePagesRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	pages := []Page{
		{ID: "900100", Name: "Acme Shop", AccountID: "1111", Confirmed: true},
		{ID: "900200", Name: "Acme Blog", AccountID: "act_1111", Confirmed: true},
		{ID: "900300", Name: "Pending", AccountID: "act_1111", Confirmed: false},
		{ID: "900400", Name: "Other tenant", AccountID: "act_1111", Confirmed: true},
	}
	for i, p := range pages {
		tenantID := "tn_acme"
		if i == 3 {
			tenantID = "tn_beta"
		}
		if err := s.UpsertPage(ctx, tenantID, p); err != nil {
			t.Fatalf("UpsertPage: %v", err)
		}
	}

	got, err := s.PagesForAccount(ctx, "tn_acme", "act_1111")
	if err != nil {
		t.Fatalf("PagesForAccount: %v", err)
	}
	if len(got) != 2 || got[0].ID != "900100" || got[1].ID != "900200" {
		t.Fatalf("PagesForAccount=%+v, want the two confirmed tn_acme pages", got)
	}
	// Account ids were normalized on write: raw "1111" and "act_1111" landed
	// on the same account.
	if got[0].AccountID != "act_1111" {
		t.Fatalf("stored account id=%q, want normalized", got[0].AccountID)
	}
}

func TestSQLiteUpsertPageOverwrites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.UpsertPage(ctx, "tn_1", Page{ID: "p1", AccountID: "act_1", Name: "Old", Confirmed: true}); err != nil {
		t.Fatalf("UpsertPage: %v", err)
	}
	if err := s.UpsertPage(ctx, "tn_1", Page{ID: "p1", AccountID: "act_1", Name: "New", Confirmed: true}); err != nil {
		t.Fatalf("UpsertPage: %v", err)
	}
	got, err := s.PagesForAccount(ctx, "tn_1", "act_1")
	if err != nil || len(got) != 1 {
		t.Fatalf("PagesForAccount=%+v err=%v", got, err)
	}
	if got[0].Name != "New" {
		t.Fatalf("Name=%q, want New", got[0].Name)
	}
}

func TestSQLiteDefaultPage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	got, err := s.DefaultPage(ctx, "tn_1", "act_1")
	if err != nil || got != "" {
		t.Fatalf("unset default: got=%q err=%v", got, err)
	}

	if err := s.SetDefaultPage(ctx, "tn_1", "1", "900100"); err != nil {
		t.Fatalf("SetDefaultPage: %v", err)
	}
	if got, err = s.DefaultPage(ctx, "tn_1", "act_1"); err != nil || got != "900100" {
		t.Fatalf("DefaultPage=%q err=%v, want 900100", got, err)
	}

	// Overwrite.
	if err := s.SetDefaultPage(ctx, "tn_1", "act_1", "900200"); err != nil {
		t.Fatalf("SetDefaultPage: %v", err)
	}
	if got, _ = s.DefaultPage(ctx, "tn_1", "act_1"); got != "900200" {
		t.Fatalf("DefaultPage=%q, want 900200", got)
	}
}

func TestSQLiteComplianceRoundTrip(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	s, err := NewSQLiteStore(t.TempDir()+"/assets.db", WithNowFunc(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	if _, ok, err := s.Compliance(ctx, "tn_1", "act_1"); err != nil || ok {
		t.Fatalf("empty compliance: ok=%v err=%v", ok, err)
	}

	in := ComplianceSettings{Beneficiary: "Acme GmbH", Payor: "Acme GmbH", Source: SourceRecommendation}
	if err := s.SaveCompliance(ctx, "tn_1", "act_1", in); err != nil {
		t.Fatalf("SaveCompliance: %v", err)
	}
	got, ok, err := s.Compliance(ctx, "tn_1", "act_1")
	if err != nil || !ok {
		t.Fatalf("Compliance: ok=%v err=%v", ok, err)
	}
	if got.Beneficiary != "Acme GmbH" || got.Source != SourceRecommendation {
		t.Fatalf("Compliance=%+v", got)
	}
	if !got.UpdatedAt.Equal(now) {
		t.Fatalf("UpdatedAt=%s, want %s", got.UpdatedAt, now)
	}
	if !got.Complete() {
		t.Fatalf("expected complete settings")
	}
}

func TestSQLiteSchemaMigrationIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/assets.db"
	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if err := s.UpsertPage(context.Background(), "tn_1", Page{ID: "p1", AccountID: "act_1", Confirmed: true}); err != nil {
		t.Fatalf("UpsertPage: %v", err)
	}
	s.Close()

	// Re-open: migrations must not re-run destructively.
	s2, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer s2.Close()
	got, err := s2.PagesForAccount(context.Background(), "tn_1", "act_1")
	if err != nil || len(got) != 1 {
		t.Fatalf("data lost across reopen: %+v err=%v", got, err)
	}
}

func TestMemoryStoreDegraded(t *testing.T) {
	s := NewMemoryStore()
	s.SetDegraded(true)
	if _, _, err := s.Compliance(context.Background(), "tn_1", "act_1"); !errors.Is(err, ErrSchemaMissing) {
		t.Fatalf("err=%v, want ErrSchemaMissing", err)
	}
	if err := s.SaveCompliance(context.Background(), "tn_1", "act_1", ComplianceSettings{}); !errors.Is(err, ErrSchemaMissing) {
		t.Fatalf("err=%v, want ErrSchemaMissing", err)
	}
}
