package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// GetRepositoryByPath returns the repository rooted at path, or nil
func (db *DB) GetRepositoryByPath(path string) (*Repository, error) {
	row := db.QueryRow(`
		SELECT id, name, path, last_indexed_at
		FROM repositories
		WHERE path = ?
	`, path)
	return scanRepository(row)
}

// GetRepository returns the repository with the given id, or nil
func (db *DB) GetRepository(id int64) (*Repository, error) {
	row := db.QueryRow(`
		SELECT id, name, path, last_indexed_at
		FROM repositories
		WHERE id = ?
	`, id)
	return scanRepository(row)
}

func scanRepository(row *sql.Row) (*Repository, error) {
	var r Repository
	var lastIndexed int64

	err := row.Scan(&r.ID, &r.Name, &r.Path, &lastIndexed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan repository: %w", err)
	}

	if lastIndexed > 0 {
		r.LastIndexedAt = time.Unix(lastIndexed, 0)
	}
	return &r, nil
}

// EnsureRepository returns the repository at path, creating it if absent
func (db *DB) EnsureRepository(name, path string) (*Repository, error) {
	existing, err := db.GetRepositoryByPath(path)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	res, err := db.Exec(`
		INSERT INTO repositories (name, path, last_indexed_at)
		VALUES (?, ?, 0)
	`, name, path)
	if err != nil {
		return nil, fmt.Errorf("failed to create repository: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read repository id: %w", err)
	}

	return &Repository{ID: id, Name: name, Path: path}, nil
}

// TouchLastIndexed records the end of a successful analysis run
func (db *DB) TouchLastIndexed(repoID int64, at time.Time) error {
	_, err := db.Exec(`
		UPDATE repositories SET last_indexed_at = ? WHERE id = ?
	`, at.Unix(), repoID)
	if err != nil {
		return fmt.Errorf("failed to update last_indexed_at: %w", err)
	}
	return nil
}

// DeleteRepository removes a repository and, via cascade, all of its files,
// symbols, and edges.
func (db *DB) DeleteRepository(repoID int64) error {
	_, err := db.Exec(`DELETE FROM repositories WHERE id = ?`, repoID)
	if err != nil {
		return fmt.Errorf("failed to delete repository: %w", err)
	}
	return nil
}

// RepositoryStats summarizes stored entity counts for a repository
type RepositoryStats struct {
	Files            int
	Symbols          int
	Dependencies     int
	Unresolved       int
	FileDependencies int
}

// GetRepositoryStats returns entity counts for status reporting
func (db *DB) GetRepositoryStats(repoID int64) (*RepositoryStats, error) {
	var stats RepositoryStats

	err := db.QueryRow(`SELECT COUNT(*) FROM files WHERE repository_id = ?`, repoID).Scan(&stats.Files)
	if err != nil {
		return nil, fmt.Errorf("failed to count files: %w", err)
	}

	err = db.QueryRow(`
		SELECT COUNT(*) FROM symbols s
		JOIN files f ON f.id = s.file_id
		WHERE f.repository_id = ?
	`, repoID).Scan(&stats.Symbols)
	if err != nil {
		return nil, fmt.Errorf("failed to count symbols: %w", err)
	}

	err = db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN d.to_symbol_id IS NULL THEN 1 ELSE 0 END), 0)
		FROM dependencies d
		JOIN symbols s ON s.id = d.from_symbol_id
		JOIN files f ON f.id = s.file_id
		WHERE f.repository_id = ?
	`, repoID).Scan(&stats.Dependencies, &stats.Unresolved)
	if err != nil {
		return nil, fmt.Errorf("failed to count dependencies: %w", err)
	}

	err = db.QueryRow(`
		SELECT COUNT(*) FROM file_dependencies fd
		JOIN files f ON f.id = fd.from_file_id
		WHERE f.repository_id = ?
	`, repoID).Scan(&stats.FileDependencies)
	if err != nil {
		return nil, fmt.Errorf("failed to count file dependencies: %w", err)
	}

	return &stats, nil
}
