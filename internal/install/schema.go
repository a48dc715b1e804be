package install

import (
	"database/sql"
	"fmt"
)

// Schema version tracking
const currentSchemaVersion = 1

func (s *Store) initializeSchema() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	version, err := schemaVersion(tx)
	if err != nil {
		return err
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}

	if version < 1 {
		if _, err := tx.Exec(`
			CREATE TABLE IF NOT EXISTS installs (
				id            TEXT PRIMARY KEY,
				backend_id    TEXT NOT NULL UNIQUE,
				command       TEXT NOT NULL,
				resolved_path TEXT NOT NULL DEFAULT '',
				status        TEXT NOT NULL,
				detail        TEXT NOT NULL DEFAULT '',
				checked_at    INTEGER NOT NULL
			)`); err != nil {
			return fmt.Errorf("failed to create installs table: %w", err)
		}
		if _, err := tx.Exec(`DELETE FROM schema_version`); err != nil {
			return fmt.Errorf("failed to reset schema version: %w", err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_version (version) VALUES (?)`, currentSchemaVersion); err != nil {
			return fmt.Errorf("failed to set schema version: %w", err)
		}
		s.logger.Info("Install database schema initialized", "version", currentSchemaVersion, "path", s.dbPath)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func schemaVersion(tx *sql.Tx) (int, error) {
	var version sql.NullInt64
	if err := tx.QueryRow(`SELECT MAX(version) FROM schema_version`).Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	if !version.Valid {
		return 0, nil
	}
	return int(version.Int64), nil
}
