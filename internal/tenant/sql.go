package tenant

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const sqlRegistrySchema = `
CREATE TABLE IF NOT EXISTS tenant_accounts (
  tenant_id  TEXT NOT NULL,
  account_id TEXT NOT NULL,
  PRIMARY KEY (tenant_id, account_id)
);
CREATE INDEX IF NOT EXISTS idx_tenant_accounts_account
  ON tenant_accounts(account_id);

CREATE TABLE IF NOT EXISTS tenant_pages (
  tenant_id TEXT NOT NULL,
  page_id   TEXT NOT NULL,
  PRIMARY KEY (tenant_id, page_id)
);
`

// SQLRegistry is the relational backend of AccountIsolationGuard, for
// deployments where tenant membership lives in the application database
// rather than a config file.
type SQLRegistry struct {
	db *sql.DB
}

// OpenSQLRegistry connects via the pgx stdlib driver and ensures the
// membership schema exists.
func OpenSQLRegistry(ctx context.Context, dsn string) (*SQLRegistry, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open tenant registry db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping tenant registry db: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqlRegistrySchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure tenant registry schema: %w", err)
	}
	return &SQLRegistry{db: db}, nil
}

// NewSQLRegistry wraps an existing handle. Used by tests and by deployments
// that share a pool with the rest of the application.
func NewSQLRegistry(db *sql.DB) *SQLRegistry {
	return &SQLRegistry{db: db}
}

func (r *SQLRegistry) Close() error {
	return r.db.Close()
}

func (r *SQLRegistry) AssertAccountAllowed(ctx context.Context, tenantID, accountID string) error {
	id := NormalizeAccountID(accountID)
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM tenant_accounts WHERE tenant_id = $1 AND account_id = $2`,
		tenantID, id,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return denied(tenantID, id, "account not in tenant's allowed set")
	}
	if err != nil {
		return fmt.Errorf("tenant registry lookup: %w", err)
	}
	return nil
}

func (r *SQLRegistry) AssertPageAllowed(ctx context.Context, tenantID, pageID string) error {
	id := NormalizePageID(pageID)
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM tenant_pages WHERE tenant_id = $1 AND page_id = $2`,
		tenantID, id,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return denied(tenantID, id, "page not in tenant's allowed set")
	}
	if err != nil {
		return fmt.Errorf("tenant registry lookup: %w", err)
	}
	return nil
}

func (r *SQLRegistry) InferTenantByAccount(ctx context.Context, accountID string) (string, error) {
	id := NormalizeAccountID(accountID)
	rows, err := r.db.QueryContext(ctx,
		`SELECT tenant_id FROM tenant_accounts WHERE account_id = $1 ORDER BY tenant_id LIMIT 2`,
		id,
	)
	if err != nil {
		return "", fmt.Errorf("tenant registry lookup: %w", err)
	}
	defer rows.Close()

	var owners []string
	for rows.Next() {
		var tenantID string
		if err := rows.Scan(&tenantID); err != nil {
			return "", fmt.Errorf("tenant registry scan: %w", err)
		}
		owners = append(owners, tenantID)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("tenant registry lookup: %w", err)
	}
	switch len(owners) {
	case 0:
		return "", nil
	case 1:
		return owners[0], nil
	default:
		return "", ambiguous(id)
	}
}

func (r *SQLRegistry) AllowedAccountIDs(ctx context.Context, tenantID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT account_id FROM tenant_accounts WHERE tenant_id = $1 ORDER BY account_id`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("tenant registry lookup: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("tenant registry scan: %w", err)
		}
		ids = append(ids, NormalizeAccountID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("tenant registry lookup: %w", err)
	}
	return ids, nil
}

var _ AccountIsolationGuard = (*SQLRegistry)(nil)
var _ AccountIsolationGuard = (*StaticRegistry)(nil)
