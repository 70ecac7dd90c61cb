package storage

import (
	"database/sql"
	"fmt"
)

// Schema version tracking
const currentSchemaVersion = 1

// initializeSchema creates all tables for a new database
func (db *DB) initializeSchema() error {
	return db.WithTx(func(tx *sql.Tx) error {
		if err := createSchemaVersionTable(tx); err != nil {
			return err
		}
		if err := createRepositoriesTable(tx); err != nil {
			return err
		}
		if err := createFilesTable(tx); err != nil {
			return err
		}
		if err := createSymbolsTable(tx); err != nil {
			return err
		}
		if err := createDependenciesTable(tx); err != nil {
			return err
		}
		if err := createFileDependenciesTable(tx); err != nil {
			return err
		}

		if err := setSchemaVersion(tx, currentSchemaVersion); err != nil {
			return err
		}

		db.logger.Info("Database schema initialized", map[string]interface{}{
			"version": currentSchemaVersion,
		})

		return nil
	})
}

// runMigrations runs any pending schema migrations
func (db *DB) runMigrations() error {
	version, err := db.getSchemaVersion()
	if err != nil {
		return err
	}

	if version == currentSchemaVersion {
		return nil
	}
	if version == 0 {
		// Database created before version tracking or empty; rebuild schema
		return db.initializeSchema()
	}

	db.logger.Info("Running database migrations", map[string]interface{}{
		"from_version": version,
		"to_version":   currentSchemaVersion,
	})

	// Migration functions go here as the schema evolves
	return nil
}

// getSchemaVersion gets the current schema version
func (db *DB) getSchemaVersion() (int, error) {
	var tableName string
	err := db.QueryRow(`
		SELECT name FROM sqlite_master
		WHERE type='table' AND name='schema_version'
	`).Scan(&tableName)

	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	var version int
	err = db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	return version, nil
}

// setSchemaVersion sets the schema version
func setSchemaVersion(tx *sql.Tx, version int) error {
	if _, err := tx.Exec("DELETE FROM schema_version"); err != nil {
		return err
	}
	_, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version)
	return err
}

func createSchemaVersionTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}
	return nil
}

func createRepositoriesTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS repositories (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			name            TEXT NOT NULL,
			path            TEXT NOT NULL UNIQUE,
			last_indexed_at INTEGER NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create repositories table: %w", err)
	}
	return nil
}

func createFilesTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS files (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			repository_id INTEGER NOT NULL REFERENCES repositories(id) ON DELETE CASCADE,
			path          TEXT NOT NULL,
			language      TEXT NOT NULL DEFAULT '',
			size          INTEGER NOT NULL DEFAULT 0,
			content_hash  TEXT NOT NULL DEFAULT '',
			modified_at   INTEGER NOT NULL DEFAULT 0,
			is_generated  INTEGER NOT NULL DEFAULT 0,
			is_test       INTEGER NOT NULL DEFAULT 0,
			UNIQUE (repository_id, path)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create files table: %w", err)
	}

	_, err = tx.Exec(`CREATE INDEX IF NOT EXISTS idx_files_repository ON files(repository_id)`)
	if err != nil {
		return fmt.Errorf("failed to create files index: %w", err)
	}
	return nil
}

func createSymbolsTable(tx *sql.Tx) error {
	// Physical identity is (file, name, kind, start_line). parent_symbol_id
	// is a plain id column, never an in-memory pointer, so the containment
	// tree cannot form reference cycles.
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS symbols (
			id               INTEGER PRIMARY KEY AUTOINCREMENT,
			file_id          INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
			name             TEXT NOT NULL,
			qualified_name   TEXT,
			parent_symbol_id INTEGER REFERENCES symbols(id) ON DELETE SET NULL,
			kind             TEXT NOT NULL,
			start_line       INTEGER NOT NULL,
			end_line         INTEGER NOT NULL,
			is_exported      INTEGER NOT NULL DEFAULT 0,
			signature        TEXT,
			description      TEXT,
			UNIQUE (file_id, name, kind, start_line)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create symbols table: %w", err)
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_symbols_file ON symbols(file_id)`,
		`CREATE INDEX IF NOT EXISTS idx_symbols_qualified_name ON symbols(qualified_name)`,
		`CREATE INDEX IF NOT EXISTS idx_symbols_name ON symbols(name)`,
	}
	for _, idx := range indexes {
		if _, err := tx.Exec(idx); err != nil {
			return fmt.Errorf("failed to create symbols index: %w", err)
		}
	}
	return nil
}

func createDependenciesTable(tx *sql.Tx) error {
	// to_symbol_id is NULL until the resolution pass binds qualified_target.
	// SQLite treats NULLs as distinct in UNIQUE indexes, so unresolved edges
	// never collide here; their dedup happens in the resolution pass.
	// Deleting a target symbol reverts inbound edges to unresolved instead of
	// dropping them: qualified_target survives, so the next resolution pass
	// re-binds edges whose target file was merely re-ingested.
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS dependencies (
			id                INTEGER PRIMARY KEY AUTOINCREMENT,
			from_symbol_id    INTEGER NOT NULL REFERENCES symbols(id) ON DELETE CASCADE,
			to_symbol_id      INTEGER REFERENCES symbols(id) ON DELETE SET NULL,
			kind              TEXT NOT NULL,
			line_number       INTEGER NOT NULL DEFAULT 0,
			qualified_target  TEXT,
			caller_object     TEXT,
			resolved_class    TEXT,
			qualified_context TEXT,
			parameter_context TEXT,
			parameter_types   TEXT,
			call_instance_id  TEXT,
			created_at        INTEGER NOT NULL DEFAULT 0,
			updated_at        INTEGER NOT NULL DEFAULT 0,
			UNIQUE (from_symbol_id, to_symbol_id, kind, line_number)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create dependencies table: %w", err)
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_dependencies_from ON dependencies(from_symbol_id)`,
		`CREATE INDEX IF NOT EXISTS idx_dependencies_to ON dependencies(to_symbol_id)`,
		`CREATE INDEX IF NOT EXISTS idx_dependencies_target ON dependencies(qualified_target)`,
	}
	for _, idx := range indexes {
		if _, err := tx.Exec(idx); err != nil {
			return fmt.Errorf("failed to create dependencies index: %w", err)
		}
	}
	return nil
}

func createFileDependenciesTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS file_dependencies (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			from_file_id    INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
			to_file_id      INTEGER REFERENCES files(id) ON DELETE CASCADE,
			kind            TEXT NOT NULL,
			external_target TEXT NOT NULL DEFAULT '',
			UNIQUE (from_file_id, to_file_id, kind, external_target)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create file_dependencies table: %w", err)
	}

	_, err = tx.Exec(`CREATE INDEX IF NOT EXISTS idx_file_dependencies_from ON file_dependencies(from_file_id)`)
	if err != nil {
		return fmt.Errorf("failed to create file_dependencies index: %w", err)
	}
	return nil
}
