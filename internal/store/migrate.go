package store

import (
	"context"
	"fmt"
)

// migrations are applied in order; index+1 is the schema version.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS skill_span (
		span_id        TEXT PRIMARY KEY,
		workflow       TEXT NOT NULL,
		parent_span_id TEXT REFERENCES skill_span(span_id),
		status         TEXT NOT NULL DEFAULT 'active'
		               CHECK (status IN ('active', 'suspended', 'completed')),
		first_step     TEXT NOT NULL DEFAULT '',
		last_step      TEXT NOT NULL DEFAULT '',
		steps          TEXT NOT NULL DEFAULT '[]',
		session_id     TEXT NOT NULL,
		created_at     TEXT NOT NULL,
		updated_at     TEXT NOT NULL,
		suspended_at   TEXT,
		completed_at   TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_skill_span_scope
		ON skill_span(session_id, workflow, status);
	CREATE TABLE IF NOT EXISTS life_event (
		id         TEXT PRIMARY KEY,
		timestamp  TEXT NOT NULL,
		workflow   TEXT NOT NULL,
		phase      TEXT NOT NULL DEFAULT '',
		event_kind TEXT NOT NULL,
		session_id TEXT NOT NULL DEFAULT '',
		payload    TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_life_event_session
		ON life_event(session_id, timestamp);`,
	`CREATE INDEX IF NOT EXISTS idx_life_event_visits
		ON life_event(session_id, workflow, phase, event_kind);`,
}

// SchemaVersion is the version reached once all migrations ran.
var SchemaVersion = len(migrations)

func (s *Store) migrate(ctx context.Context) error {
	return s.Exclusive(ctx, func(tx *Tx) error {
		if _, err := tx.conn.ExecContext(ctx, `
			CREATE TABLE IF NOT EXISTS schema_migrations (
				version    INTEGER PRIMARY KEY,
				applied_at TEXT NOT NULL
			);`); err != nil {
			return fmt.Errorf("store: create schema_migrations: %w", err)
		}

		var current int
		if err := tx.conn.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(version), 0) FROM schema_migrations;`).Scan(&current); err != nil {
			return fmt.Errorf("store: read schema version: %w", err)
		}
		if current > SchemaVersion {
			return fmt.Errorf("store: schema version %d is newer than supported %d", current, SchemaVersion)
		}

		for i := current; i < len(migrations); i++ {
			if _, err := tx.conn.ExecContext(ctx, migrations[i]); err != nil {
				return fmt.Errorf("store: apply migration %d: %w", i+1, err)
			}
			if _, err := tx.conn.ExecContext(ctx,
				`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?);`,
				i+1, formatTime(tx.now())); err != nil {
				return fmt.Errorf("store: record migration %d: %w", i+1, err)
			}
		}
		return nil
	})
}
