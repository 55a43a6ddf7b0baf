package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	// Registers the sqlite3 database/sql driver
	_ "github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel/attribute"

	"github.com/stacklok/connsync/database"
)

// placeholderRe matches $N placeholders, rewritten to ?N for SQLite
var placeholderRe = regexp.MustCompile(`\$(\d+)`)

func rebind(query string) string {
	return placeholderRe.ReplaceAllString(query, "?$1")
}

// sqlQuerier is satisfied by both *sql.DB and *sql.Tx
type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type sqlAdapter struct {
	q sqlQuerier
}

func (a sqlAdapter) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := a.q.ExecContext(ctx, rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (a sqlAdapter) queryRow(ctx context.Context, query string, args ...any) row {
	return sqlRow{a.q.QueryRowContext(ctx, rebind(query), args...)}
}

func (a sqlAdapter) query(ctx context.Context, query string, args ...any) (rows, error) {
	rs, err := a.q.QueryContext(ctx, rebind(query), args...)
	if err != nil {
		return nil, err
	}
	return sqlRows{rs}, nil
}

type sqlRow struct {
	row *sql.Row
}

func (r sqlRow) Scan(dest ...any) error {
	err := r.row.Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return errNoRows
	}
	return err
}

type sqlRows struct {
	*sql.Rows
}

func (r sqlRows) Close() {
	_ = r.Rows.Close()
}

type sqlTx struct {
	sqlAdapter
	tx *sql.Tx
}

func (t sqlTx) commit(context.Context) error {
	return t.tx.Commit()
}

func (t sqlTx) rollback(context.Context) error {
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

type sqliteDriver struct {
	sqlAdapter
	db *sql.DB
}

func (d *sqliteDriver) begin(ctx context.Context) (tx, error) {
	t, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return sqlTx{sqlAdapter: sqlAdapter{q: t}, tx: t}, nil
}

// forUpdate is empty: transactions take the database write lock when they begin
func (*sqliteDriver) forUpdate() string {
	return ""
}

func (*sqliteDriver) system() attribute.KeyValue {
	return dbSystemSQLite
}

func (d *sqliteDriver) close() error {
	return d.db.Close()
}

// NewSQLiteLedger opens (creating if needed) the SQLite database at path, applies the
// schema migrations and returns a ledger backed by it.
//
// A single connection is used so writers never contend, and every transaction begins
// IMMEDIATE so the read-then-write sequences in job creation cannot interleave.
func NewSQLiteLedger(path string, opts ...Option) (Ledger, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
		}
	}

	m, err := database.NewForSQLite(path)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare migrations: %w", err)
	}
	migrateErr := database.MigrateUp(m)
	_, _ = m.Close()
	if migrateErr != nil {
		return nil, migrateErr
	}

	dsn := fmt.Sprintf(
		"file:%s?_txlock=immediate&_busy_timeout=5000&_foreign_keys=on&_journal_mode=WAL&_synchronous=NORMAL",
		path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return newSQLLedger(&sqliteDriver{sqlAdapter: sqlAdapter{q: db}, db: db}, opts...), nil
}
