package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Tx exposes the same entity operations as Store, bound to one transaction.
type Tx struct {
	queries
}

// RunInTransaction executes fn inside a BEGIN IMMEDIATE transaction on a
// dedicated connection, committing on nil and rolling back on error or
// panic. IMMEDIATE takes the write lock up front, so check-then-write
// sequences (ownership claims, cycle checks) observe and mutate a single
// consistent snapshot.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx *Tx) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	if err := beginImmediate(ctx, conn, s.busyRetries); err != nil {
		return err
	}

	committed := false
	defer func() {
		if !committed {
			// Background context so rollback still runs if ctx was cancelled.
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	tx := &Tx{queries: queries{db: conn}}
	if err := fn(tx); err != nil {
		return err
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// beginImmediate starts the transaction, retrying with backoff while the
// database is busy with another writer.
func beginImmediate(ctx context.Context, conn *sql.Conn, retries int) error {
	delay := 10 * time.Millisecond
	var err error
	for attempt := 0; attempt <= retries; attempt++ {
		_, err = conn.ExecContext(ctx, "BEGIN IMMEDIATE")
		if err == nil {
			return nil
		}
		if !isBusy(err) {
			return fmt.Errorf("begin transaction: %w", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return fmt.Errorf("begin transaction after %d retries: %w", retries, err)
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}
