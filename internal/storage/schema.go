package storage

import (
	"context"
	"database/sql"
	"errors"
)

const currentSchemaVersion = 1

// migrate brings the schema up to currentSchemaVersion.
func (db *DB) migrate(ctx context.Context) error {
	version, err := db.schemaVersion(ctx)
	if err != nil {
		return err
	}
	if version == currentSchemaVersion {
		db.logger.Debug("Database schema is up to date", "version", version, "path", db.dbPath)
		return nil
	}

	return db.WithTx(ctx, func(tx *sql.Tx) error {
		if version < 1 {
			for _, stmt := range schemaV1 {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return err
				}
			}
		}
		if err := setSchemaVersion(ctx, tx, currentSchemaVersion); err != nil {
			return err
		}
		db.logger.Info("Database schema initialized",
			"from_version", version,
			"to_version", currentSchemaVersion,
			"path", db.dbPath,
		)
		return nil
	})
}

var schemaV1 = []string{
	`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS builds (
		id              TEXT PRIMARY KEY,
		created_at      TEXT NOT NULL,
		source          TEXT NOT NULL,
		root            TEXT NOT NULL DEFAULT '',
		frameworks      TEXT NOT NULL DEFAULT '[]',
		entry_points    INTEGER NOT NULL,
		edges           INTEGER NOT NULL,
		interface_edges INTEGER NOT NULL,
		graph           BLOB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_builds_created ON builds(created_at)`,
	`CREATE TABLE IF NOT EXISTS entry_points (
		build_id  TEXT NOT NULL REFERENCES builds(id) ON DELETE CASCADE,
		ordinal   INTEGER NOT NULL,
		entry_id  TEXT NOT NULL,
		protocol  TEXT NOT NULL,
		method    TEXT NOT NULL DEFAULT '',
		path      TEXT NOT NULL DEFAULT '',
		handler   TEXT NOT NULL DEFAULT '',
		framework TEXT NOT NULL,
		package   TEXT NOT NULL,
		package_dir TEXT NOT NULL DEFAULT '',
		file      TEXT NOT NULL DEFAULT '',
		line      INTEGER NOT NULL DEFAULT 0,
		edges     INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (build_id, ordinal)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_entry_points_protocol ON entry_points(build_id, protocol)`,
}

func (db *DB) schemaVersion(ctx context.Context) (int, error) {
	var name string
	err := db.conn.QueryRowContext(ctx, `
		SELECT name FROM sqlite_master
		WHERE type='table' AND name='schema_version'
	`).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	var version int
	err = db.conn.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return version, err
}

func setSchemaVersion(ctx context.Context, tx *sql.Tx, version int) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM schema_version"); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", version)
	return err
}
