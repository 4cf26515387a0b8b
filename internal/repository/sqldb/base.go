package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// dialect holds the few statement fragments that differ between Postgres and SQLite.
type dialect struct {
	name string
	// appended to a SELECT that must lock the rows it returns
	forUpdate string
	// appended to the outbox claim query so concurrent relays skip each other's rows
	skipLocked string
	// SQLite transactions are already serialisable and reject explicit levels
	isolation bool
}

func dialectFor(driver string) dialect {
	switch driver {
	case "sqlite":
		return dialect{name: "sqlite"}
	default:
		return dialect{
			name:       "postgres",
			forUpdate:  " FOR UPDATE",
			skipLocked: " FOR UPDATE SKIP LOCKED",
			isolation:  true,
		}
	}
}

// BaseRepository provides common functionality for all repositories
type BaseRepository struct {
	db        *sqlx.DB
	dialect   dialect
	isolation sql.IsolationLevel
}

// NewBaseRepository creates a new base repository. The isolation level is
// applied to every transaction on drivers that support it.
func NewBaseRepository(db *sqlx.DB, isolation sql.IsolationLevel) BaseRepository {
	return BaseRepository{
		db:        db,
		dialect:   dialectFor(db.DriverName()),
		isolation: isolation,
	}
}

func (r *BaseRepository) txOptions(readOnly bool) *sql.TxOptions {
	if !r.dialect.isolation {
		return nil
	}
	return &sql.TxOptions{Isolation: r.isolation, ReadOnly: readOnly}
}

// WithTx executes a function within a transaction
func (r *BaseRepository) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	return r.withTx(ctx, r.txOptions(false), fn)
}

// WithReadTx runs fn in a read-only transaction so multi-query reads see one snapshot.
func (r *BaseRepository) WithReadTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	return r.withTx(ctx, r.txOptions(true), fn)
}

func (r *BaseRepository) withTx(ctx context.Context, opts *sql.TxOptions, fn func(*sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Ping checks that the database is reachable.
func (r *BaseRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// isUniqueViolation recognises unique constraint failures from every registered driver.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code.Name() == "unique_violation"
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}
