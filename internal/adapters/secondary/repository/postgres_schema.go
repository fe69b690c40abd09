package repository

import (
	"context"
	"fmt"
)

// Contraintes nommées : handleError s'appuie sur ConstraintName pour distinguer handle / contact.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id            TEXT PRIMARY KEY,
		handle        TEXT NOT NULL,
		contact       TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		followers     TEXT[] NOT NULL DEFAULT '{}',
		following     TEXT[] NOT NULL DEFAULT '{}',
		created_at    TIMESTAMPTZ NOT NULL,
		updated_at    TIMESTAMPTZ NOT NULL,
		CONSTRAINT accounts_handle_key UNIQUE (handle),
		CONSTRAINT accounts_contact_key UNIQUE (contact)
	)`,
	`CREATE TABLE IF NOT EXISTS content_items (
		id         TEXT PRIMARY KEY,
		owner_id   TEXT NOT NULL REFERENCES accounts (id),
		media_url  TEXT NOT NULL,
		caption    TEXT NOT NULL DEFAULT '',
		liked_by   TEXT[] NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS content_items_owner_idx ON content_items (owner_id, created_at DESC)`,
}

// EnsureSchema crée les tables si besoin (idempotent, appelé au démarrage).
func (r *PostgresStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := r.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("db: ensure schema: %w", err)
		}
	}
	return nil
}
