package storage

import (
	"database/sql"
	"fmt"
)

// InsertSymbols writes symbols for a file in bounded-size batches. Rows
// colliding on the physical key merge in place, preferring the incoming
// variant's descriptive fields. Assigned ids are written back into syms.
func (db *DB) InsertSymbols(syms []Symbol, batchSize int) error {
	if batchSize <= 0 {
		batchSize = 50
	}

	for start := 0; start < len(syms); start += batchSize {
		end := start + batchSize
		if end > len(syms) {
			end = len(syms)
		}
		if err := db.insertSymbolBatch(syms[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (db *DB) insertSymbolBatch(batch []Symbol) error {
	return db.WithTx(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO symbols (file_id, name, qualified_name, parent_symbol_id, kind, start_line, end_line, is_exported, signature, description)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (file_id, name, kind, start_line) DO UPDATE SET
				qualified_name = excluded.qualified_name,
				end_line       = excluded.end_line,
				is_exported    = excluded.is_exported,
				signature      = excluded.signature,
				description    = excluded.description
			RETURNING id
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare symbol insert: %w", err)
		}
		defer stmt.Close()

		for i := range batch {
			s := &batch[i]
			var parent interface{}
			if s.ParentSymbolID != 0 {
				parent = s.ParentSymbolID
			}

			err := stmt.QueryRow(s.FileID, s.Name, nullable(s.QualifiedName), parent,
				s.Kind, s.StartLine, s.EndLine, boolToInt(s.IsExported),
				nullable(s.Signature), nullable(s.Description)).Scan(&s.ID)
			if err != nil {
				return fmt.Errorf("failed to insert symbol %s: %w", s.Name, err)
			}
		}
		return nil
	})
}

// GetSymbolsByFile returns all symbols owned by a file, ordered by start line
func (db *DB) GetSymbolsByFile(fileID int64) ([]Symbol, error) {
	rows, err := db.Query(`
		SELECT id, file_id, name, qualified_name, parent_symbol_id, kind, start_line, end_line, is_exported, signature, description
		FROM symbols
		WHERE file_id = ?
		ORDER BY start_line, id
	`, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to query symbols: %w", err)
	}
	defer rows.Close()

	return scanSymbols(rows)
}

// GetSymbolByID returns a symbol by id, or nil
func (db *DB) GetSymbolByID(id int64) (*Symbol, error) {
	rows, err := db.Query(`
		SELECT id, file_id, name, qualified_name, parent_symbol_id, kind, start_line, end_line, is_exported, signature, description
		FROM symbols
		WHERE id = ?
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query symbol: %w", err)
	}
	defer rows.Close()

	syms, err := scanSymbols(rows)
	if err != nil {
		return nil, err
	}
	if len(syms) == 0 {
		return nil, nil
	}
	return &syms[0], nil
}

// FindSymbols returns symbols in a repository whose name or qualified name
// matches exactly. Used to turn CLI arguments into seed ids.
func (db *DB) FindSymbols(repoID int64, name string) ([]Symbol, error) {
	rows, err := db.Query(`
		SELECT s.id, s.file_id, s.name, s.qualified_name, s.parent_symbol_id, s.kind, s.start_line, s.end_line, s.is_exported, s.signature, s.description
		FROM symbols s
		JOIN files f ON f.id = s.file_id
		WHERE f.repository_id = ? AND (s.name = ? OR s.qualified_name = ?)
		ORDER BY s.id
	`, repoID, name, name)
	if err != nil {
		return nil, fmt.Errorf("failed to find symbols: %w", err)
	}
	defer rows.Close()

	return scanSymbols(rows)
}

func scanSymbols(rows *sql.Rows) ([]Symbol, error) {
	var syms []Symbol
	for rows.Next() {
		var s Symbol
		var qname, signature, description sql.NullString
		var parent sql.NullInt64
		var exported int

		err := rows.Scan(&s.ID, &s.FileID, &s.Name, &qname, &parent, &s.Kind,
			&s.StartLine, &s.EndLine, &exported, &signature, &description)
		if err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}

		s.QualifiedName = qname.String
		s.ParentSymbolID = parent.Int64
		s.IsExported = exported != 0
		s.Signature = signature.String
		s.Description = description.String
		syms = append(syms, s)
	}
	return syms, rows.Err()
}

// SetSymbolParents assigns parent links in one transaction
func (db *DB) SetSymbolParents(links map[int64]int64) error {
	if len(links) == 0 {
		return nil
	}

	return db.WithTx(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`UPDATE symbols SET parent_symbol_id = ? WHERE id = ?`)
		if err != nil {
			return fmt.Errorf("failed to prepare parent update: %w", err)
		}
		defer stmt.Close()

		for childID, parentID := range links {
			if _, err := stmt.Exec(parentID, childID); err != nil {
				return fmt.Errorf("failed to link symbol %d: %w", childID, err)
			}
		}
		return nil
	})
}

// DeleteSymbolsByFile removes all symbols owned by a file; dependency edges
// touching them cascade.
func (db *DB) DeleteSymbolsByFile(fileID int64) (int, error) {
	res, err := db.Exec(`DELETE FROM symbols WHERE file_id = ?`, fileID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete symbols for file %d: %w", fileID, err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// ListSymbolsByRepository returns every symbol in a repository, ordered by
// file then start line. Used by graph export.
func (db *DB) ListSymbolsByRepository(repoID int64) ([]Symbol, error) {
	rows, err := db.Query(`
		SELECT s.id, s.file_id, s.name, s.qualified_name, s.parent_symbol_id, s.kind, s.start_line, s.end_line, s.is_exported, s.signature, s.description
		FROM symbols s
		JOIN files f ON f.id = s.file_id
		WHERE f.repository_id = ?
		ORDER BY s.file_id, s.start_line, s.id
	`, repoID)
	if err != nil {
		return nil, fmt.Errorf("failed to query repository symbols: %w", err)
	}
	defer rows.Close()

	return scanSymbols(rows)
}

// QualifiedNameIndex maps every qualified name in a repository to the ids of
// symbols carrying it. The resolution pass binds only names with exactly one
// entry.
func (db *DB) QualifiedNameIndex(repoID int64) (map[string][]int64, error) {
	rows, err := db.Query(`
		SELECT s.qualified_name, s.id
		FROM symbols s
		JOIN files f ON f.id = s.file_id
		WHERE f.repository_id = ? AND s.qualified_name IS NOT NULL AND s.qualified_name != ''
	`, repoID)
	if err != nil {
		return nil, fmt.Errorf("failed to query qualified names: %w", err)
	}
	defer rows.Close()

	index := make(map[string][]int64)
	for rows.Next() {
		var qname string
		var id int64
		if err := rows.Scan(&qname, &id); err != nil {
			return nil, fmt.Errorf("failed to scan qualified name: %w", err)
		}
		index[qname] = append(index[qname], id)
	}
	return index, rows.Err()
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
