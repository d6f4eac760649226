package store

import (
	"database/sql"
	"strconv"

	"github.com/pkg/errors"

	pkgLogger "github.com/fpt/gemini-discuss/pkg/logger"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

// migrations are applied in order, each exactly once.
var migrations = []migration{
	{
		Version:     1,
		Description: "config_parameter and gemini_model",
		SQL: `
		CREATE TABLE IF NOT EXISTS config_parameter (
			key    TEXT PRIMARY KEY,
			value  TEXT NOT NULL DEFAULT ''
		);

		CREATE TABLE IF NOT EXISTS gemini_model (
			id     INTEGER PRIMARY KEY AUTOINCREMENT,
			key    TEXT NOT NULL UNIQUE,
			name   TEXT NOT NULL
		);
		`,
	},
}

func runMigrations(db *sql.DB, logger *pkgLogger.Logger) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version     INTEGER PRIMARY KEY,
			description TEXT,
			applied_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return errors.Wrap(err, "create schema_version table")
	}

	current, err := schemaVersion(db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		logger.DebugWithIntention(pkgLogger.IntentionConfig, "Applying migration",
			"version", m.Version, "description", m.Description)

		tx, err := db.Begin()
		if err != nil {
			return errors.Wrapf(err, "begin migration v%d", m.Version)
		}
		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "apply migration v%d", m.Version)
		}
		if _, err := tx.Exec(
			`INSERT INTO schema_version (version, description) VALUES (?, ?)`,
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "record migration v%d", m.Version)
		}
		if err := tx.Commit(); err != nil {
			return errors.Wrapf(err, "commit migration v%d", m.Version)
		}
	}
	return nil
}

func schemaVersion(db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&v); err != nil {
		return 0, errors.Wrap(err, "query schema version")
	}
	return v, nil
}

func parseID(s string) (int64, bool) {
	id, err := strconv.ParseInt(s, 10, 64)
	return id, err == nil
}
