package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// UpsertFile inserts or updates a file row keyed by (repository, path) and
// returns its id. Existing rows are updated in place so the id stays stable
// across re-analyses.
func (db *DB) UpsertFile(f *File) (int64, error) {
	var id int64
	err := db.QueryRow(`
		INSERT INTO files (repository_id, path, language, size, content_hash, modified_at, is_generated, is_test)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (repository_id, path) DO UPDATE SET
			language     = excluded.language,
			size         = excluded.size,
			content_hash = excluded.content_hash,
			modified_at  = excluded.modified_at,
			is_generated = excluded.is_generated,
			is_test      = excluded.is_test
		RETURNING id
	`, f.RepositoryID, f.Path, f.Language, f.Size, f.ContentHash,
		f.ModifiedAt.Unix(), boolToInt(f.IsGenerated), boolToInt(f.IsTest)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert file %s: %w", f.Path, err)
	}

	f.ID = id
	return id, nil
}

// GetFileByPath returns the file row for (repo, path), or nil
func (db *DB) GetFileByPath(repoID int64, path string) (*File, error) {
	rows, err := db.Query(`
		SELECT id, repository_id, path, language, size, content_hash, modified_at, is_generated, is_test
		FROM files
		WHERE repository_id = ? AND path = ?
	`, repoID, path)
	if err != nil {
		return nil, fmt.Errorf("failed to query file: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}

	f, err := scanFile(rows)
	if err != nil {
		return nil, err
	}
	return f, rows.Err()
}

// ListFilesByRepository returns all file rows for a repository
func (db *DB) ListFilesByRepository(repoID int64) ([]File, error) {
	rows, err := db.Query(`
		SELECT id, repository_id, path, language, size, content_hash, modified_at, is_generated, is_test
		FROM files
		WHERE repository_id = ?
		ORDER BY path
	`, repoID)
	if err != nil {
		return nil, fmt.Errorf("failed to query files: %w", err)
	}
	defer rows.Close()

	var files []File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, *f)
	}

	return files, rows.Err()
}

func scanFile(rows *sql.Rows) (*File, error) {
	var f File
	var modifiedAt int64
	var isGenerated, isTest int

	err := rows.Scan(&f.ID, &f.RepositoryID, &f.Path, &f.Language, &f.Size,
		&f.ContentHash, &modifiedAt, &isGenerated, &isTest)
	if err != nil {
		return nil, fmt.Errorf("failed to scan file: %w", err)
	}

	f.ModifiedAt = time.Unix(modifiedAt, 0)
	f.IsGenerated = isGenerated != 0
	f.IsTest = isTest != 0
	return &f, nil
}

// DeleteFiles removes file rows by id; symbols and edges cascade
func (db *DB) DeleteFiles(fileIDs []int64) (int, error) {
	if len(fileIDs) == 0 {
		return 0, nil
	}

	query := `DELETE FROM files WHERE id IN (` + placeholders(len(fileIDs)) + `)`
	res, err := db.Exec(query, int64Args(fileIDs)...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete files: %w", err)
	}

	n, _ := res.RowsAffected()
	return int(n), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// placeholders returns "?, ?, ..." with n placeholders
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	buf := make([]byte, 0, n*3)
	for i := 0; i < n; i++ {
		if i > 0 {
			buf = append(buf, ',', ' ')
		}
		buf = append(buf, '?')
	}
	return string(buf)
}

func int64Args(ids []int64) []interface{} {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
