package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
)

// pgxQuerier is satisfied by both *pgxpool.Pool and pgx.Tx
type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type pgxAdapter struct {
	q pgxQuerier
}

func (a pgxAdapter) exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := a.q.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (a pgxAdapter) queryRow(ctx context.Context, query string, args ...any) row {
	return pgxRow{a.q.QueryRow(ctx, query, args...)}
}

func (a pgxAdapter) query(ctx context.Context, query string, args ...any) (rows, error) {
	return a.q.Query(ctx, query, args...)
}

type pgxRow struct {
	row pgx.Row
}

func (r pgxRow) Scan(dest ...any) error {
	err := r.row.Scan(dest...)
	if errors.Is(err, pgx.ErrNoRows) {
		return errNoRows
	}
	return err
}

type pgxTx struct {
	pgxAdapter
	tx pgx.Tx
}

func (t pgxTx) commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t pgxTx) rollback(ctx context.Context) error {
	return t.tx.Rollback(ctx)
}

type postgresDriver struct {
	pgxAdapter
	pool *pgxpool.Pool
}

func (d *postgresDriver) begin(ctx context.Context) (tx, error) {
	t, err := d.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, err
	}
	return pgxTx{pgxAdapter: pgxAdapter{q: t}, tx: t}, nil
}

func (*postgresDriver) forUpdate() string {
	return " FOR UPDATE"
}

func (*postgresDriver) system() attribute.KeyValue {
	return dbSystemPostgres
}

func (d *postgresDriver) close() error {
	d.pool.Close()
	return nil
}

// NewPostgresLedger creates a ledger backed by a Postgres pool. The schema must already be
// migrated. Closing the ledger closes the pool.
func NewPostgresLedger(pool *pgxpool.Pool, opts ...Option) (Ledger, error) {
	if pool == nil {
		return nil, fmt.Errorf("pgx pool is required")
	}
	return newSQLLedger(&postgresDriver{pgxAdapter: pgxAdapter{q: pool}, pool: pool}, opts...), nil
}
