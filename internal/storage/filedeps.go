package storage

import (
	"database/sql"
	"fmt"
)

// UpsertFileDependencies writes file-level edges in bounded-size batches.
// Collisions on (from, to, kind, external target) are ignored: the edge
// already exists and carries no mutable payload.
func (db *DB) UpsertFileDependencies(deps []FileDependency, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}

	created := 0
	for start := 0; start < len(deps); start += batchSize {
		end := start + batchSize
		if end > len(deps) {
			end = len(deps)
		}

		n, err := db.upsertFileDependencyBatch(deps[start:end])
		if err != nil {
			return created, err
		}
		created += n
	}
	return created, nil
}

func (db *DB) upsertFileDependencyBatch(batch []FileDependency) (int, error) {
	created := 0
	err := db.WithTx(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT OR IGNORE INTO file_dependencies (from_file_id, to_file_id, kind, external_target)
			VALUES (?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare file dependency insert: %w", err)
		}
		defer stmt.Close()

		for i := range batch {
			fd := &batch[i]
			var to interface{}
			if fd.ToFileID != 0 {
				to = fd.ToFileID
			}

			res, err := stmt.Exec(fd.FromFileID, to, fd.Kind, fd.ExternalTarget)
			if err != nil {
				return fmt.Errorf("failed to insert file dependency: %w", err)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				created++
			}
		}
		return nil
	})
	return created, err
}

// DeleteFileDependenciesFrom removes every file-level edge originating in
// the given files. Re-derivation after ingestion rebuilds the complete set,
// so stale edges from a previous version of a file never survive.
func (db *DB) DeleteFileDependenciesFrom(fileIDs []int64) (int64, error) {
	if len(fileIDs) == 0 {
		return 0, nil
	}

	query := `DELETE FROM file_dependencies WHERE from_file_id IN (` + placeholders(len(fileIDs)) + `)`
	res, err := db.Exec(query, int64Args(fileIDs)...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete file dependencies: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ListFileDependencies returns all file-level edges for a repository
func (db *DB) ListFileDependencies(repoID int64) ([]FileDependency, error) {
	rows, err := db.Query(`
		SELECT fd.id, fd.from_file_id, fd.to_file_id, fd.kind, fd.external_target
		FROM file_dependencies fd
		JOIN files f ON f.id = fd.from_file_id
		WHERE f.repository_id = ?
		ORDER BY fd.id
	`, repoID)
	if err != nil {
		return nil, fmt.Errorf("failed to query file dependencies: %w", err)
	}
	defer rows.Close()

	var deps []FileDependency
	for rows.Next() {
		var fd FileDependency
		var to sql.NullInt64
		if err := rows.Scan(&fd.ID, &fd.FromFileID, &to, &fd.Kind, &fd.ExternalTarget); err != nil {
			return nil, fmt.Errorf("failed to scan file dependency: %w", err)
		}
		fd.ToFileID = to.Int64
		deps = append(deps, fd)
	}
	return deps, rows.Err()
}
