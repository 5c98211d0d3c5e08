package repository

import (
	"context"
	"strings"

	"github.com/Domenick1991/tripbooking/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type execCall struct {
	sql  string
	args []any
}

// fakeDB answers conditional writes from canned values. Methods the repository
// does not call fall through to the nil embedded interfaces and panic.
type fakeDB struct {
	pgxIface

	rowsAffected int64
	status       domain.BookingStatus
	statusErr    error

	execs     []execCall
	batch     *pgx.Batch
	committed bool
}

func (f *fakeDB) Begin(ctx context.Context) (pgx.Tx, error) {
	return &fakeTx{db: f}, nil
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, execCall{sql: sql, args: args})
	if strings.HasPrefix(sql, "UPDATE bookings") {
		if f.rowsAffected == 0 {
			return pgconn.NewCommandTag("UPDATE 0"), nil
		}
		return pgconn.NewCommandTag("UPDATE 1"), nil
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

type fakeTx struct {
	pgx.Tx
	db *fakeDB
}

func (t *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return t.db.Exec(ctx, sql, args...)
}

func (t *fakeTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return statusRow{status: t.db.status, err: t.db.statusErr}
}

func (t *fakeTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	t.db.batch = b
	return closedBatch{}
}

func (t *fakeTx) Commit(ctx context.Context) error {
	t.db.committed = true
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	return nil
}

type statusRow struct {
	status domain.BookingStatus
	err    error
}

func (r statusRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*domain.BookingStatus) = r.status
	return nil
}

type closedBatch struct {
	pgx.BatchResults
}

func (closedBatch) Close() error { return nil }
