package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Mirror is an optional SQL copy of the advisory collection. Like the JSON
// file it is append-only: rows are never updated once inserted.
type Mirror struct {
	db     *sqlx.DB
	driver string
}

func OpenMirror(ctx context.Context, driver, dsn string) (*Mirror, error) {
	switch driver {
	case "mysql", "sqlite":
	default:
		return nil, fmt.Errorf("unsupported mirror driver %q", driver)
	}
	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, err
	}
	m := &Mirror{db: db, driver: driver}
	if err := m.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return m, nil
}

func (m *Mirror) Close() error { return m.db.Close() }

func (m *Mirror) migrate(ctx context.Context) error {
	createAdvisories := `CREATE TABLE IF NOT EXISTS advisories (
    errata_id VARCHAR(64) PRIMARY KEY,
    cve_ids TEXT,
    severity VARCHAR(32),
    issue_date VARCHAR(32),
    original_synopsis TEXT,
    summary TEXT,
    affected_products TEXT,
    harvested_at TIMESTAMP NULL
)`
	if _, err := m.db.ExecContext(ctx, createAdvisories); err != nil {
		return err
	}
	_ = m.execIgnoreDupIndex(ctx, `CREATE INDEX idx_issue_date ON advisories(issue_date)`)
	return nil
}

// MySQL lacks IF NOT EXISTS for CREATE INDEX; sqlite reports "already exists".
func (m *Mirror) execIgnoreDupIndex(ctx context.Context, ddl string) error {
	_, err := m.db.ExecContext(ctx, ddl)
	if err != nil {
		e := err.Error()
		if strings.Contains(e, "Duplicate key name") || strings.Contains(e, "1061") || strings.Contains(e, "already exists") {
			return nil
		}
	}
	return err
}

type mirrorRow struct {
	Advisory
	HarvestedAt time.Time `db:"harvested_at"`
}

func (m *Mirror) Insert(ctx context.Context, advisories []Advisory) (int64, error) {
	if len(advisories) == 0 {
		return 0, nil
	}
	verb := "INSERT IGNORE INTO"
	if m.driver == "sqlite" {
		verb = "INSERT OR IGNORE INTO"
	}
	query := verb + ` advisories
    (errata_id, cve_ids, severity, issue_date, original_synopsis, summary, affected_products, harvested_at)
    VALUES (:errata_id, :cve_ids, :severity, :issue_date, :original_synopsis, :summary, :affected_products, :harvested_at)`

	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	var written int64
	for _, a := range advisories {
		res, err := tx.NamedExecContext(ctx, query, mirrorRow{Advisory: a, HarvestedAt: now})
		if err != nil {
			return 0, fmt.Errorf("insert %s: %w", a.ID, err)
		}
		n, _ := res.RowsAffected()
		written += n
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return written, nil
}

func (m *Mirror) Count(ctx context.Context) (int, error) {
	var n int
	err := m.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM advisories`)
	return n, err
}
