package ingest

import (
	"context"
	"fmt"
	"path"
	"strings"

	"codegraph/internal/storage"
)

// jsExtensions are tried, in order, when an import specifier omits the
// file extension.
var jsExtensions = []string{".ts", ".tsx", ".js", ".jsx", ".mjs"}

// DeriveFileDependencies projects symbol-level edges originating in the
// given files onto file-level edges. Resolved cross-file edges become
// internal file dependencies; unresolved edges become external ones keyed
// by their target. Relative import specifiers are resolved against the
// repository's stored file paths first.
func (in *Ingestor) DeriveFileDependencies(ctx context.Context, repoID int64, fileIDs []int64) (int, error) {
	if len(fileIDs) == 0 {
		return 0, nil
	}

	files, err := in.db.ListFilesByRepository(repoID)
	if err != nil {
		return 0, fmt.Errorf("failed to load repository files: %w", err)
	}
	byPath := make(map[string]int64, len(files))
	pathByID := make(map[int64]string, len(files))
	for _, f := range files {
		byPath[f.Path] = f.ID
		pathByID[f.ID] = f.Path
	}

	type fileDepKey struct {
		from, to int64
		kind     string
		external string
	}
	seen := make(map[fileDepKey]bool)
	var out []storage.FileDependency

	add := func(d storage.FileDependency) {
		key := fileDepKey{d.FromFileID, d.ToFileID, d.Kind, d.ExternalTarget}
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, d)
	}

	crossFile, err := in.db.ListCrossFileEdges(ctx, fileIDs)
	if err != nil {
		return 0, err
	}
	for _, e := range crossFile {
		add(storage.FileDependency{
			FromFileID: e.FromFileID,
			ToFileID:   e.ToFileID,
			Kind:       e.Kind,
		})
	}

	unresolved, err := in.db.ListUnresolvedByFiles(ctx, fileIDs)
	if err != nil {
		return 0, err
	}
	for _, e := range unresolved {
		if e.QualifiedTarget == "" {
			continue
		}

		if e.Kind == storage.DepKindImports {
			if toID, ok := resolveImportPath(e.QualifiedTarget, pathByID[e.FromFileID], byPath); ok {
				if toID != e.FromFileID {
					add(storage.FileDependency{
						FromFileID: e.FromFileID,
						ToFileID:   toID,
						Kind:       e.Kind,
					})
				}
				continue
			}
		}
		add(storage.FileDependency{
			FromFileID:     e.FromFileID,
			Kind:           e.Kind,
			ExternalTarget: e.QualifiedTarget,
		})
	}

	// The set above is complete for these files, so drop whatever an
	// earlier version of them derived before writing.
	if _, err := in.db.DeleteFileDependenciesFrom(fileIDs); err != nil {
		return 0, err
	}

	created, err := in.db.UpsertFileDependencies(out, in.depBatch)
	if err != nil {
		return 0, err
	}
	return created, nil
}

// resolveImportPath maps a relative import specifier to a stored file ID.
// Bare specifiers (packages) never match. Extension-less specifiers are
// tried with the known extensions, then as a directory index.
func resolveImportPath(spec, fromPath string, byPath map[string]int64) (int64, bool) {
	if !strings.HasPrefix(spec, "./") && !strings.HasPrefix(spec, "../") {
		return 0, false
	}

	base := path.Join(path.Dir(fromPath), spec)
	if id, ok := byPath[base]; ok {
		return id, true
	}
	for _, ext := range jsExtensions {
		if id, ok := byPath[base+ext]; ok {
			return id, true
		}
	}
	for _, ext := range jsExtensions {
		if id, ok := byPath[path.Join(base, "index"+ext)]; ok {
			return id, true
		}
	}
	return 0, false
}
