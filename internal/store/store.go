// Package store implements the relational store backing the engine.
// Entities live in SQLite; every engine mutation and its audit event commit
// inside one BEGIN IMMEDIATE transaction via RunInTransaction.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DBTX is satisfied by *sql.DB and *sql.Conn, so every query helper works
// both on the pool and inside a transaction's dedicated connection.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	queries
	db          *sql.DB
	busyRetries int
}

// Open opens (creating if necessary) the SQLite database at path and applies
// the schema. WAL mode keeps readers unblocked by the single writer.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	s := &Store{
		queries:     queries{db: db},
		db:          db,
		busyRetries: 5,
	}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// SetBusyRetries adjusts how many times BEGIN IMMEDIATE is retried while
// another writer holds the lock.
func (s *Store) SetBusyRetries(n int) {
	if n > 0 {
		s.busyRetries = n
	}
}

func (s *Store) Close() error {
	return s.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS projects (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS authors (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS subprojects (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	number     INTEGER NOT NULL,
	name       TEXT NOT NULL,
	is_default INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL,
	UNIQUE (project_id, number)
);

CREATE TABLE IF NOT EXISTS tasks (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id      INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	subproject_id   INTEGER REFERENCES subprojects(id) ON DELETE SET NULL,
	parent_id       INTEGER REFERENCES tasks(id) ON DELETE CASCADE,
	title           TEXT NOT NULL,
	description     TEXT NOT NULL DEFAULT '',
	tag             TEXT NOT NULL,
	priority        TEXT NOT NULL,
	status          TEXT NOT NULL,
	author_id       INTEGER REFERENCES authors(id),
	owner_id        INTEGER REFERENCES authors(id),
	due_date        TIMESTAMP,
	estimated_hours REAL,
	actual_hours    REAL,
	created_at      TIMESTAMP NOT NULL,
	updated_at      TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS dependencies (
	blocking_id INTEGER NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
	blocked_id  INTEGER NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
	created_at  TIMESTAMP NOT NULL,
	PRIMARY KEY (blocking_id, blocked_id)
);

CREATE TABLE IF NOT EXISTS comments (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	task_id    INTEGER NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
	author_id  INTEGER REFERENCES authors(id),
	body       TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	task_id    INTEGER NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
	type       TEXT NOT NULL,
	field      TEXT,
	old_value  TEXT,
	new_value  TEXT,
	author_id  INTEGER REFERENCES authors(id),
	metadata   TEXT,
	created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tasks_project ON tasks(project_id);
CREATE INDEX IF NOT EXISTS idx_tasks_subproject ON tasks(subproject_id);
CREATE INDEX IF NOT EXISTS idx_tasks_parent ON tasks(parent_id);
CREATE INDEX IF NOT EXISTS idx_tasks_owner ON tasks(owner_id);
CREATE INDEX IF NOT EXISTS idx_deps_blocked ON dependencies(blocked_id);
CREATE INDEX IF NOT EXISTS idx_events_task ON events(task_id, id);
CREATE INDEX IF NOT EXISTS idx_comments_task ON comments(task_id);
`

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// queries holds every entity operation. Store embeds it over the pool; Tx
// embeds it over a dedicated in-transaction connection.
type queries struct {
	db DBTX
}
