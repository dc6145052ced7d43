package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// WithTx executes a function within a transaction using the RepeatableRead isolation level.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}

	return nil
}

// UnitOfWork collects side effects that must only run after the enclosing
// transaction durably commits. Broadcasts and client notifications are queued
// here so a rollback never leaks an observable state change.
type UnitOfWork struct {
	deferred []func()
}

// Defer queues fn to run after commit. Order of registration is preserved.
func (u *UnitOfWork) Defer(fn func()) {
	if fn == nil {
		return
	}
	u.deferred = append(u.deferred, fn)
}

// Flush runs the queued hooks. Callers invoke it exactly once, and only after
// the transaction reported success.
func (u *UnitOfWork) Flush() {
	for _, fn := range u.deferred {
		fn()
	}
	u.deferred = nil
}

// WithUnitOfWork runs fn inside a transaction and flushes the unit of work
// after a successful commit. Deferred hooks never fire on rollback.
func WithUnitOfWork(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx, *UnitOfWork) error) error {
	uow := &UnitOfWork{}
	if err := WithTx(ctx, pool, func(tx pgx.Tx) error {
		return fn(tx, uow)
	}); err != nil {
		return err
	}
	uow.Flush()
	return nil
}
