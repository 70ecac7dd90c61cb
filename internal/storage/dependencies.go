package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DependencyWriteResult reports what a batch write did
type DependencyWriteResult struct {
	Created  int
	Updated  int
	Existing []Dependency // rows returned by the conflict fallback path
}

// UpsertDependencies writes dependency edges in bounded-size batches with
// merge-on-conflict semantics: a collision on (from, to, kind, line) updates
// the mutable fields instead of erroring. If a batch still fails with a
// constraint violation (a concurrent writer on the same repository), the
// already-persisted rows are re-queried and returned rather than failing.
func (db *DB) UpsertDependencies(deps []Dependency, batchSize int) (*DependencyWriteResult, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}

	result := &DependencyWriteResult{}
	for start := 0; start < len(deps); start += batchSize {
		end := start + batchSize
		if end > len(deps) {
			end = len(deps)
		}
		batch := deps[start:end]

		created, updated, err := db.upsertDependencyBatch(batch)
		if err == nil {
			result.Created += created
			result.Updated += updated
			continue
		}

		if !IsConstraintErr(err) {
			return nil, err
		}

		// Conflict fallback: read the rows that beat us to the store
		existing, qerr := db.getDependenciesByKeys(batch)
		if qerr != nil {
			return nil, fmt.Errorf("conflict fallback query failed: %w", qerr)
		}
		result.Existing = append(result.Existing, existing...)
	}

	return result, nil
}

// upsertDependencyBatch writes one batch in two phases: an insert that
// ignores uniqueness collisions, then an in-place update for the rows the
// insert skipped. The phase that takes a row decides created versus
// updated, so an update landing in the same second as the original insert
// is still counted correctly. OR IGNORE does not swallow foreign key
// violations, which keep surfacing as constraint errors for the caller's
// fallback path.
func (db *DB) upsertDependencyBatch(batch []Dependency) (created, updated int, err error) {
	now := time.Now().Unix()

	err = db.WithTx(func(tx *sql.Tx) error {
		insert, err := tx.Prepare(`
			INSERT OR IGNORE INTO dependencies (from_symbol_id, to_symbol_id, kind, line_number,
				qualified_target, caller_object, resolved_class, qualified_context,
				parameter_context, parameter_types, call_instance_id, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			RETURNING id, created_at
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare dependency insert: %w", err)
		}
		defer insert.Close()

		update, err := tx.Prepare(`
			UPDATE dependencies SET
				parameter_context = ?,
				parameter_types   = ?,
				updated_at        = ?
			WHERE from_symbol_id = ? AND to_symbol_id IS ? AND kind = ? AND line_number = ?
			RETURNING id, created_at
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare dependency update: %w", err)
		}
		defer update.Close()

		for i := range batch {
			d := &batch[i]
			var to interface{}
			if d.ToSymbolID != 0 {
				to = d.ToSymbolID
			}

			var createdAt int64
			err := insert.QueryRow(d.FromSymbolID, to, d.Kind, d.LineNumber,
				nullable(d.QualifiedTarget), nullable(d.CallerObject),
				nullable(d.ResolvedClass), nullable(d.QualifiedContext),
				nullable(d.ParameterContext), nullable(d.ParameterTypes),
				nullable(d.CallInstanceID), now, now).Scan(&d.ID, &createdAt)
			switch {
			case err == nil:
				created++
			case errors.Is(err, sql.ErrNoRows):
				// Uniqueness collision: refresh the mutable fields in place
				err = update.QueryRow(nullable(d.ParameterContext), nullable(d.ParameterTypes),
					now, d.FromSymbolID, to, d.Kind, d.LineNumber).Scan(&d.ID, &createdAt)
				if err != nil {
					return err
				}
				updated++
			default:
				return err
			}

			d.CreatedAt = time.Unix(createdAt, 0)
			d.UpdatedAt = time.Unix(now, 0)
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return created, updated, nil
}

// getDependenciesByKeys reads persisted rows matching the uniqueness tuples
// of batch. Used only on the conflict fallback path.
func (db *DB) getDependenciesByKeys(batch []Dependency) ([]Dependency, error) {
	var out []Dependency
	for i := range batch {
		d := &batch[i]
		var to interface{}
		if d.ToSymbolID != 0 {
			to = d.ToSymbolID
		}

		rows, err := db.Query(`
			SELECT id, from_symbol_id, to_symbol_id, kind, line_number, qualified_target,
				caller_object, resolved_class, qualified_context, parameter_context,
				parameter_types, call_instance_id, created_at, updated_at
			FROM dependencies
			WHERE from_symbol_id = ? AND to_symbol_id IS ? AND kind = ? AND line_number = ?
		`, d.FromSymbolID, to, d.Kind, d.LineNumber)
		if err != nil {
			return nil, fmt.Errorf("failed to query dependency by key: %w", err)
		}

		deps, err := scanDependencies(rows)
		rows.Close()
		if err != nil {
			return nil, err
		}
		out = append(out, deps...)
	}
	return out, nil
}

// ListDependenciesByRepository returns every edge in the repository,
// resolved and unresolved, ordered by id. Used by graph export.
func (db *DB) ListDependenciesByRepository(ctx context.Context, repoID int64) ([]Dependency, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT d.id, d.from_symbol_id, d.to_symbol_id, d.kind, d.line_number, d.qualified_target,
			d.caller_object, d.resolved_class, d.qualified_context, d.parameter_context,
			d.parameter_types, d.call_instance_id, d.created_at, d.updated_at
		FROM dependencies d
		JOIN symbols s ON s.id = d.from_symbol_id
		JOIN files f ON f.id = s.file_id
		WHERE f.repository_id = ?
		ORDER BY d.id
	`, repoID)
	if err != nil {
		return nil, MapQueryErr("list repository dependencies", err)
	}
	defer rows.Close()

	return scanDependencies(rows)
}

// ListUnresolvedDependencies returns every edge in the repository that still
// carries only a qualified-name target.
func (db *DB) ListUnresolvedDependencies(ctx context.Context, repoID int64) ([]Dependency, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT d.id, d.from_symbol_id, d.to_symbol_id, d.kind, d.line_number, d.qualified_target,
			d.caller_object, d.resolved_class, d.qualified_context, d.parameter_context,
			d.parameter_types, d.call_instance_id, d.created_at, d.updated_at
		FROM dependencies d
		JOIN symbols s ON s.id = d.from_symbol_id
		JOIN files f ON f.id = s.file_id
		WHERE f.repository_id = ? AND d.to_symbol_id IS NULL
		ORDER BY d.id
	`, repoID)
	if err != nil {
		return nil, MapQueryErr("list unresolved dependencies", err)
	}
	defer rows.Close()

	return scanDependencies(rows)
}

func scanDependencies(rows *sql.Rows) ([]Dependency, error) {
	var deps []Dependency
	for rows.Next() {
		var d Dependency
		var to sql.NullInt64
		var target, caller, class, qctx, pctx, ptypes, callID sql.NullString
		var createdAt, updatedAt int64

		err := rows.Scan(&d.ID, &d.FromSymbolID, &to, &d.Kind, &d.LineNumber, &target,
			&caller, &class, &qctx, &pctx, &ptypes, &callID, &createdAt, &updatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dependency: %w", err)
		}

		d.ToSymbolID = to.Int64
		d.QualifiedTarget = target.String
		d.CallerObject = caller.String
		d.ResolvedClass = class.String
		d.QualifiedContext = qctx.String
		d.ParameterContext = pctx.String
		d.ParameterTypes = ptypes.String
		d.CallInstanceID = callID.String
		d.CreatedAt = time.Unix(createdAt, 0)
		d.UpdatedAt = time.Unix(updatedAt, 0)
		deps = append(deps, d)
	}
	return deps, rows.Err()
}

// DeleteDependencies removes edges by id
func (db *DB) DeleteDependencies(ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	deleted := 0
	// Chunked so very large cleanups stay under the parameter limit
	const chunk = 500
	for start := 0; start < len(ids); start += chunk {
		end := start + chunk
		if end > len(ids) {
			end = len(ids)
		}

		query := `DELETE FROM dependencies WHERE id IN (` + placeholders(end-start) + `)`
		res, err := db.Exec(query, int64Args(ids[start:end])...)
		if err != nil {
			return deleted, fmt.Errorf("failed to delete dependencies: %w", err)
		}
		n, _ := res.RowsAffected()
		deleted += int(n)
	}
	return deleted, nil
}

// BindDependencies sets to_symbol_id for the given edges. A bind that would
// collide with an existing resolved edge is skipped, not an error; the
// loser stays unresolved and is retried or cleaned on the next pass.
func (db *DB) BindDependencies(ctx context.Context, binds map[int64]int64) (int, error) {
	if len(binds) == 0 {
		return 0, nil
	}

	bound := 0
	err := db.WithTx(func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			UPDATE OR IGNORE dependencies
			SET to_symbol_id = ?, updated_at = ?
			WHERE id = ? AND to_symbol_id IS NULL
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare bind update: %w", err)
		}
		defer stmt.Close()

		now := time.Now().Unix()
		for depID, symID := range binds {
			res, err := stmt.ExecContext(ctx, symID, now, depID)
			if err != nil {
				return fmt.Errorf("failed to bind dependency %d: %w", depID, err)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				bound++
			}
		}
		return nil
	})
	if err != nil {
		return bound, MapQueryErr("bind dependencies", err)
	}
	return bound, nil
}

// DeleteNeverResolvable removes edges with neither a resolved target nor a
// qualified-name target.
func (db *DB) DeleteNeverResolvable(ctx context.Context, repoID int64) (int, error) {
	res, err := db.ExecContext(ctx, `
		DELETE FROM dependencies WHERE id IN (
			SELECT d.id FROM dependencies d
			JOIN symbols s ON s.id = d.from_symbol_id
			JOIN files f ON f.id = s.file_id
			WHERE f.repository_id = ?
				AND d.to_symbol_id IS NULL
				AND (d.qualified_target IS NULL OR d.qualified_target = '')
		)
	`, repoID)
	if err != nil {
		return 0, MapQueryErr("delete never-resolvable edges", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// DeleteUnmatchedOrphans removes unresolved edges whose qualified-name target
// matches no symbol anywhere in the repository. Edges of the imports kind are
// preserved: they may legitimately reference external packages.
func (db *DB) DeleteUnmatchedOrphans(ctx context.Context, repoID int64) (int, error) {
	res, err := db.ExecContext(ctx, `
		DELETE FROM dependencies WHERE id IN (
			SELECT d.id FROM dependencies d
			JOIN symbols s ON s.id = d.from_symbol_id
			JOIN files f ON f.id = s.file_id
			WHERE f.repository_id = ?
				AND d.to_symbol_id IS NULL
				AND d.qualified_target IS NOT NULL AND d.qualified_target != ''
				AND d.kind != ?
				AND NOT EXISTS (
					SELECT 1 FROM symbols s2
					JOIN files f2 ON f2.id = s2.file_id
					WHERE f2.repository_id = ? AND s2.qualified_name = d.qualified_target
				)
		)
	`, repoID, DepKindImports, repoID)
	if err != nil {
		return 0, MapQueryErr("delete orphan edges", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// TraversalDirection selects which way edges are followed
type TraversalDirection string

const (
	// DirectionCallers follows edges backwards: who calls/references the seed
	DirectionCallers TraversalDirection = "callers"
	// DirectionDependencies follows edges forwards: what the seed depends on
	DirectionDependencies TraversalDirection = "dependencies"
)

// ListEdges returns resolved edges anchored at the given symbols, joined with
// both endpoint symbols and files. For DirectionCallers the anchors are edge
// targets; for DirectionDependencies they are edge sources. Self-edges are
// excluded from caller results.
func (db *DB) ListEdges(ctx context.Context, anchors []int64, direction TraversalDirection, kinds []string) ([]GraphEdge, error) {
	if len(anchors) == 0 {
		return nil, nil
	}

	anchorCol := "d.to_symbol_id"
	selfEdgeFilter := " AND d.from_symbol_id != d.to_symbol_id"
	if direction == DirectionDependencies {
		anchorCol = "d.from_symbol_id"
		selfEdgeFilter = ""
	}

	var sb strings.Builder
	sb.WriteString(`
		SELECT d.id, d.from_symbol_id, d.to_symbol_id, d.kind, d.line_number, d.qualified_target,
			d.caller_object, d.resolved_class, d.qualified_context, d.parameter_context,
			d.parameter_types, d.call_instance_id, d.created_at, d.updated_at,
			sf.name, sf.file_id, ff.path,
			st.name, st.file_id, ft.path
		FROM dependencies d
		JOIN symbols sf ON sf.id = d.from_symbol_id
		JOIN files ff ON ff.id = sf.file_id
		JOIN symbols st ON st.id = d.to_symbol_id
		JOIN files ft ON ft.id = st.file_id
		WHERE d.to_symbol_id IS NOT NULL AND `)
	sb.WriteString(anchorCol)
	sb.WriteString(` IN (`)
	sb.WriteString(placeholders(len(anchors)))
	sb.WriteString(`)`)
	sb.WriteString(selfEdgeFilter)

	args := int64Args(anchors)
	if len(kinds) > 0 {
		sb.WriteString(` AND d.kind IN (`)
		sb.WriteString(placeholders(len(kinds)))
		sb.WriteString(`)`)
		for _, k := range kinds {
			args = append(args, k)
		}
	}
	sb.WriteString(` ORDER BY d.id DESC`)

	rows, err := db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, MapQueryErr("list edges", err)
	}
	defer rows.Close()

	var edges []GraphEdge
	for rows.Next() {
		var e GraphEdge
		var to sql.NullInt64
		var target, caller, class, qctx, pctx, ptypes, callID sql.NullString
		var createdAt, updatedAt int64

		err := rows.Scan(&e.ID, &e.FromSymbolID, &to, &e.Dependency.Kind, &e.LineNumber, &target,
			&caller, &class, &qctx, &pctx, &ptypes, &callID, &createdAt, &updatedAt,
			&e.FromSymbolName, &e.FromFileID, &e.FromFilePath,
			&e.ToSymbolName, &e.ToFileID, &e.ToFilePath)
		if err != nil {
			return nil, fmt.Errorf("failed to scan graph edge: %w", err)
		}

		e.ToSymbolID = to.Int64
		e.QualifiedTarget = target.String
		e.CallerObject = caller.String
		e.ResolvedClass = class.String
		e.QualifiedContext = qctx.String
		e.ParameterContext = pctx.String
		e.ParameterTypes = ptypes.String
		e.CallInstanceID = callID.String
		e.CreatedAt = time.Unix(createdAt, 0)
		e.UpdatedAt = time.Unix(updatedAt, 0)
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// ListCrossFileEdges returns resolved symbol edges that cross file
// boundaries, originating in the given files. Used to derive file-level
// dependencies.
func (db *DB) ListCrossFileEdges(ctx context.Context, fileIDs []int64) ([]GraphEdge, error) {
	if len(fileIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT d.id, d.kind, sf.file_id, ff.path, st.file_id, ft.path
		FROM dependencies d
		JOIN symbols sf ON sf.id = d.from_symbol_id
		JOIN files ff ON ff.id = sf.file_id
		JOIN symbols st ON st.id = d.to_symbol_id
		JOIN files ft ON ft.id = st.file_id
		WHERE d.to_symbol_id IS NOT NULL
			AND sf.file_id != st.file_id
			AND sf.file_id IN (` + placeholders(len(fileIDs)) + `)`

	rows, err := db.QueryContext(ctx, query, int64Args(fileIDs)...)
	if err != nil {
		return nil, MapQueryErr("list cross-file edges", err)
	}
	defer rows.Close()

	var edges []GraphEdge
	for rows.Next() {
		var e GraphEdge
		if err := rows.Scan(&e.ID, &e.Dependency.Kind, &e.FromFileID, &e.FromFilePath, &e.ToFileID, &e.ToFilePath); err != nil {
			return nil, fmt.Errorf("failed to scan cross-file edge: %w", err)
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// ListUnresolvedByFiles returns unresolved edges originating in the given
// files, including imports. Used to derive external file-level dependencies.
func (db *DB) ListUnresolvedByFiles(ctx context.Context, fileIDs []int64) ([]GraphEdge, error) {
	if len(fileIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT d.id, d.kind, COALESCE(d.qualified_target, ''), sf.file_id
		FROM dependencies d
		JOIN symbols sf ON sf.id = d.from_symbol_id
		WHERE d.to_symbol_id IS NULL
			AND sf.file_id IN (` + placeholders(len(fileIDs)) + `)`

	rows, err := db.QueryContext(ctx, query, int64Args(fileIDs)...)
	if err != nil {
		return nil, MapQueryErr("list unresolved by files", err)
	}
	defer rows.Close()

	var edges []GraphEdge
	for rows.Next() {
		var e GraphEdge
		if err := rows.Scan(&e.ID, &e.Dependency.Kind, &e.QualifiedTarget, &e.FromFileID); err != nil {
			return nil, fmt.Errorf("failed to scan unresolved edge: %w", err)
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}
