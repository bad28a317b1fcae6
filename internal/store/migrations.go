package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ahmedgfathy/contaboo/internal/patterns"
)

// migrate creates all tables if they don't exist and seeds metadata.
func (s *SQLiteStore) migrate() error {
	bootstrapDone, err := s.isMetaFlagEnabled("schema_bootstrap_complete")
	if err != nil {
		return fmt.Errorf("checking bootstrap state: %w", err)
	}

	if !bootstrapDone {
		if err := s.runBootstrapDDL(); err != nil {
			return err
		}
	}

	// Seed metadata (outside bootstrap transaction; meta table now exists)
	if err := s.seedMeta(); err != nil {
		return fmt.Errorf("seeding metadata: %w", err)
	}

	if !bootstrapDone {
		if err := s.setMetaFlag("schema_bootstrap_complete"); err != nil {
			return fmt.Errorf("marking bootstrap complete: %w", err)
		}
	}

	// Schema evolution: quality columns (schema v2).
	if err := s.migrateQualityColumns(); err != nil {
		return fmt.Errorf("migrating quality columns: %w", err)
	}

	return nil
}

func (s *SQLiteStore) runBootstrapDDL() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS properties (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			message       TEXT NOT NULL,
			sender        TEXT NOT NULL DEFAULT '',
			sent_at       DATETIME,
			source        TEXT NOT NULL DEFAULT '',
			source_ref    TEXT NOT NULL DEFAULT '',
			content_hash  TEXT UNIQUE NOT NULL,
			purpose       TEXT NOT NULL DEFAULT 'unknown' CHECK(purpose IN ('sale','rent','wanted','unknown')),
			area          TEXT NOT NULL DEFAULT '',
			price         REAL,
			price_range   TEXT NOT NULL DEFAULT 'unknown',
			broker_name   TEXT NOT NULL DEFAULT '',
			broker_mobile TEXT NOT NULL DEFAULT '',
			property_type TEXT NOT NULL DEFAULT 'other',
			keywords      TEXT NOT NULL DEFAULT '[]',
			search_text   TEXT NOT NULL DEFAULT '',
			imported_at   DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at    DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_properties_purpose ON properties(purpose)`,
		`CREATE INDEX IF NOT EXISTS idx_properties_area ON properties(area)`,
		`CREATE INDEX IF NOT EXISTS idx_properties_price ON properties(price)`,
		`CREATE INDEX IF NOT EXISTS idx_properties_broker_mobile ON properties(broker_mobile)`,
		`CREATE INDEX IF NOT EXISTS idx_properties_type ON properties(property_type)`,

		// FTS5 index over the folded search text
		`CREATE VIRTUAL TABLE IF NOT EXISTS properties_fts USING fts5(
			search_text,
			content=properties,
			content_rowid=id,
			tokenize='unicode61 remove_diacritics 2'
		)`,

		`CREATE TRIGGER IF NOT EXISTS properties_ai AFTER INSERT ON properties BEGIN
			INSERT INTO properties_fts(rowid, search_text) VALUES (new.id, new.search_text);
		END`,

		`CREATE TRIGGER IF NOT EXISTS properties_ad AFTER DELETE ON properties BEGIN
			INSERT INTO properties_fts(properties_fts, rowid, search_text) VALUES('delete', old.id, old.search_text);
		END`,

		`CREATE TRIGGER IF NOT EXISTS properties_au AFTER UPDATE OF search_text ON properties BEGIN
			INSERT INTO properties_fts(properties_fts, rowid, search_text) VALUES('delete', old.id, old.search_text);
			INSERT INTO properties_fts(rowid, search_text) VALUES (new.id, new.search_text);
		END`,

		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT
		)`,
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning migration transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("executing migration %q: %w", truncate(stmt, 80), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing migration: %w", err)
	}

	return nil
}

func (s *SQLiteStore) isMetaFlagEnabled(key string) (bool, error) {
	var exists int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='meta'`).Scan(&exists); err != nil {
		return false, err
	}
	if exists == 0 {
		return false, nil
	}

	value, err := s.getMetaValue(key)
	if err != nil {
		return false, err
	}
	return value == "true", nil
}

func (s *SQLiteStore) setMetaFlag(key string) error {
	return s.setMetaValue(key, "true")
}

func (s *SQLiteStore) getMetaValue(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", err
	}
	return value, nil
}

func (s *SQLiteStore) setMetaValue(key, value string) error {
	_, err := s.db.Exec("INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)", key, value)
	return err
}

func isDuplicateColumnError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "duplicate column name")
}

// migrateQualityColumns adds the quality score and status columns if they
// don't exist. Safe to run on every open.
func (s *SQLiteStore) migrateQualityColumns() error {
	var count int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM pragma_table_info('properties') WHERE name='quality_status'",
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking for quality_status column: %w", err)
	}
	if count > 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning quality migration: %w", err)
	}
	defer tx.Rollback()

	stmts := []string{
		`ALTER TABLE properties ADD COLUMN quality_score INTEGER NOT NULL DEFAULT 0`,
		`ALTER TABLE properties ADD COLUMN quality_status TEXT NOT NULL DEFAULT ''`,
		`CREATE INDEX IF NOT EXISTS idx_properties_quality ON properties(quality_status)`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			if isDuplicateColumnError(err) {
				continue
			}
			return fmt.Errorf("executing %q: %w", truncate(stmt, 60), err)
		}
	}

	if _, err := tx.Exec("INSERT OR REPLACE INTO meta (key, value) VALUES ('schema_version', '2')"); err != nil {
		return fmt.Errorf("bumping schema version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing quality migration: %w", err)
	}
	s.logger.Info("upgraded schema", zap.String("version", "2"), zap.String("db", s.dbPath))
	return nil
}

func (s *SQLiteStore) seedMeta() error {
	defaults := map[string]string{
		"schema_version":  "1",
		"pattern_version": patterns.Version,
		"created_at":      time.Now().UTC().Format(time.RFC3339),
	}

	for k, v := range defaults {
		_, err := s.db.Exec(
			"INSERT OR IGNORE INTO meta (key, value) VALUES (?, ?)", k, v,
		)
		if err != nil {
			return fmt.Errorf("seeding meta key %q: %w", k, err)
		}
	}
	return nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
