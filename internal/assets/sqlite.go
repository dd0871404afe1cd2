package assets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/promogate/promogate/internal/tenant"
)

const schemaVersion = 2

const schemaV1 = `
CREATE TABLE IF NOT EXISTS pages (
  tenant_id  TEXT NOT NULL,
  page_id    TEXT NOT NULL,
  account_id TEXT NOT NULL,
  name       TEXT NOT NULL DEFAULT '',
  confirmed  INTEGER NOT NULL DEFAULT 0,
  PRIMARY KEY (tenant_id, page_id)
);
CREATE INDEX IF NOT EXISTS idx_pages_account
  ON pages(tenant_id, account_id, confirmed);

CREATE TABLE IF NOT EXISTS default_pages (
  tenant_id  TEXT NOT NULL,
  account_id TEXT NOT NULL,
  page_id    TEXT NOT NULL,
  PRIMARY KEY (tenant_id, account_id)
);
`

const schemaV2 = `
CREATE TABLE IF NOT EXISTS compliance_settings (
  tenant_id   TEXT NOT NULL,
  account_id  TEXT NOT NULL,
  beneficiary TEXT NOT NULL DEFAULT '',
  payor       TEXT NOT NULL DEFAULT '',
  source      TEXT NOT NULL DEFAULT 'MANUAL',
  updated_at  INTEGER NOT NULL,
  PRIMARY KEY (tenant_id, account_id)
);
`

// SQLiteStore is the durable asset store.
type SQLiteStore struct {
	db    *sql.DB
	nowFn func() time.Time
}

type SQLiteOption func(*SQLiteStore)

// WithNowFunc overrides the clock. Tests only.
func WithNowFunc(now func() time.Time) SQLiteOption {
	return func(s *SQLiteStore) {
		if now != nil {
			s.nowFn = now
		}
	}
}

// NewSQLiteStore opens (creating if needed) the asset database at dbPath.
func NewSQLiteStore(dbPath string, opts ...SQLiteOption) (*SQLiteStore, error) {
	dbPath = strings.TrimSpace(dbPath)
	if dbPath == "" {
		return nil, errors.New("empty db path")
	}

	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, nowFn: time.Now}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) init() error {
	ctx := context.Background()

	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		return fmt.Errorf("sqlite: set journal_mode=wal: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout=5000;"); err != nil {
		return fmt.Errorf("sqlite: set busy_timeout: %w", err)
	}

	var userVersion int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version;").Scan(&userVersion); err != nil {
		return fmt.Errorf("sqlite: read user_version: %w", err)
	}
	migrations := []string{schemaV1, schemaV2}
	for v := userVersion; v < schemaVersion; v++ {
		if _, err := s.db.ExecContext(ctx, migrations[v]); err != nil {
			return fmt.Errorf("sqlite: apply schema v%d: %w", v+1, err)
		}
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version=%d;", v+1)); err != nil {
			return fmt.Errorf("sqlite: bump user_version: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) PagesForAccount(ctx context.Context, tenantID, accountID string) ([]Page, error) {
	accountID = tenant.NormalizeAccountID(accountID)
	rows, err := s.db.QueryContext(ctx,
		`SELECT page_id, name, confirmed FROM pages
		 WHERE tenant_id = ? AND account_id = ? AND confirmed = 1
		 ORDER BY page_id`,
		tenantID, accountID,
	)
	if err != nil {
		return nil, wrapSchemaErr(err)
	}
	defer rows.Close()

	var pages []Page
	for rows.Next() {
		var p Page
		var confirmed int
		if err := rows.Scan(&p.ID, &p.Name, &confirmed); err != nil {
			return nil, err
		}
		p.AccountID = accountID
		p.Confirmed = confirmed == 1
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

func (s *SQLiteStore) UpsertPage(ctx context.Context, tenantID string, page Page) error {
	confirmed := 0
	if page.Confirmed {
		confirmed = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pages (tenant_id, page_id, account_id, name, confirmed)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (tenant_id, page_id) DO UPDATE
		 SET account_id = excluded.account_id,
		     name = excluded.name,
		     confirmed = excluded.confirmed`,
		tenantID, tenant.NormalizePageID(page.ID), tenant.NormalizeAccountID(page.AccountID), page.Name, confirmed,
	)
	return wrapSchemaErr(err)
}

func (s *SQLiteStore) DefaultPage(ctx context.Context, tenantID, accountID string) (string, error) {
	var pageID string
	err := s.db.QueryRowContext(ctx,
		`SELECT page_id FROM default_pages WHERE tenant_id = ? AND account_id = ?`,
		tenantID, tenant.NormalizeAccountID(accountID),
	).Scan(&pageID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", wrapSchemaErr(err)
	}
	return pageID, nil
}

func (s *SQLiteStore) SetDefaultPage(ctx context.Context, tenantID, accountID, pageID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO default_pages (tenant_id, account_id, page_id)
		 VALUES (?, ?, ?)
		 ON CONFLICT (tenant_id, account_id) DO UPDATE SET page_id = excluded.page_id`,
		tenantID, tenant.NormalizeAccountID(accountID), tenant.NormalizePageID(pageID),
	)
	return wrapSchemaErr(err)
}

func (s *SQLiteStore) Compliance(ctx context.Context, tenantID, accountID string) (ComplianceSettings, bool, error) {
	var cs ComplianceSettings
	var source string
	var updatedAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT beneficiary, payor, source, updated_at FROM compliance_settings
		 WHERE tenant_id = ? AND account_id = ?`,
		tenantID, tenant.NormalizeAccountID(accountID),
	).Scan(&cs.Beneficiary, &cs.Payor, &source, &updatedAt)
	if err == sql.ErrNoRows {
		return ComplianceSettings{}, false, nil
	}
	if err != nil {
		return ComplianceSettings{}, false, wrapSchemaErr(err)
	}
	cs.Source = ComplianceSource(source)
	cs.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return cs, true, nil
}

func (s *SQLiteStore) SaveCompliance(ctx context.Context, tenantID, accountID string, cs ComplianceSettings) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO compliance_settings (tenant_id, account_id, beneficiary, payor, source, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (tenant_id, account_id) DO UPDATE
		 SET beneficiary = excluded.beneficiary,
		     payor = excluded.payor,
		     source = excluded.source,
		     updated_at = excluded.updated_at`,
		tenantID, tenant.NormalizeAccountID(accountID), cs.Beneficiary, cs.Payor, string(cs.Source), s.nowFn().Unix(),
	)
	return wrapSchemaErr(err)
}

// wrapSchemaErr maps "no such table" onto ErrSchemaMissing so degraded
// deployments are distinguishable from real failures.
func wrapSchemaErr(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "no such table") {
		return fmt.Errorf("%w: %v", ErrSchemaMissing, err)
	}
	return err
}

var _ Store = (*SQLiteStore)(nil)
