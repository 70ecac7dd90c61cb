// Package resolve implements the deferred resolution pass that binds
// qualified-name dependency targets to stored symbols after each ingestion
// round.
package resolve

import (
	"context"
	"fmt"

	"codegraph/internal/logging"
	"codegraph/internal/storage"
)

// Result reports what a resolution pass did.
type Result struct {
	Deduplicated int `json:"deduplicated"`
	Resolved     int `json:"resolved"`
	Ambiguous    int `json:"ambiguous"`
	Orphaned     int `json:"orphaned"`
	Remaining    int `json:"remaining"`
}

func (r Result) String() string {
	return fmt.Sprintf("deduplicated=%d resolved=%d ambiguous=%d orphaned=%d remaining=%d",
		r.Deduplicated, r.Resolved, r.Ambiguous, r.Orphaned, r.Remaining)
}

// Resolver runs the resolution pass against a single repository.
type Resolver struct {
	db     *storage.DB
	logger *logging.Logger
}

func NewResolver(db *storage.DB, logger *logging.Logger) *Resolver {
	return &Resolver{db: db, logger: logger.Named("resolve")}
}

// Resolve runs the three stages in their required order: deduplicate
// unresolved edges, bind unambiguous qualified-name targets, then clean up
// edges that can never resolve. Deduplication must come first so that a
// later bind cannot collide with a duplicate of itself.
func (r *Resolver) Resolve(ctx context.Context, repoID int64) (*Result, error) {
	result := &Result{}

	unresolved, err := r.db.ListUnresolvedDependencies(ctx, repoID)
	if err != nil {
		return nil, err
	}

	unresolved, deduped, err := r.deduplicate(unresolved)
	if err != nil {
		return nil, err
	}
	result.Deduplicated = deduped

	index, err := r.db.QualifiedNameIndex(repoID)
	if err != nil {
		return nil, err
	}

	binds := make(map[int64]int64)
	for _, d := range unresolved {
		if d.QualifiedTarget == "" {
			continue
		}
		matches := index[d.QualifiedTarget]
		switch len(matches) {
		case 0:
			// Stays unresolved; cleanup decides its fate below.
		case 1:
			if matches[0] != d.FromSymbolID {
				binds[d.ID] = matches[0]
			}
		default:
			result.Ambiguous++
		}
	}

	bound, err := r.db.BindDependencies(ctx, binds)
	if err != nil {
		return nil, err
	}
	result.Resolved = bound

	empty, err := r.db.DeleteNeverResolvable(ctx, repoID)
	if err != nil {
		return nil, err
	}
	orphans, err := r.db.DeleteUnmatchedOrphans(ctx, repoID)
	if err != nil {
		return nil, err
	}
	result.Orphaned = empty + orphans
	result.Remaining = len(unresolved) - bound - result.Orphaned

	r.logger.Info("resolution pass complete", map[string]interface{}{
		"repository_id": repoID,
		"deduplicated":  result.Deduplicated,
		"resolved":      result.Resolved,
		"ambiguous":     result.Ambiguous,
		"orphaned":      result.Orphaned,
		"remaining":     result.Remaining,
	})
	return result, nil
}

// deduplicate collapses unresolved edges that share (from, target, kind,
// line), keeping the most recently written row. The store's uniqueness
// constraint treats NULL targets as distinct, so these duplicates can only
// be removed here.
func (r *Resolver) deduplicate(unresolved []storage.Dependency) ([]storage.Dependency, int, error) {
	type key struct {
		from   int64
		target string
		kind   string
		line   int
	}

	keep := make(map[key]storage.Dependency, len(unresolved))
	for _, d := range unresolved {
		k := key{d.FromSymbolID, d.QualifiedTarget, d.Kind, d.LineNumber}
		if prev, ok := keep[k]; !ok || d.ID > prev.ID {
			keep[k] = d
		}
	}
	if len(keep) == len(unresolved) {
		return unresolved, 0, nil
	}

	keptIDs := make(map[int64]bool, len(keep))
	for _, d := range keep {
		keptIDs[d.ID] = true
	}

	var doomed []int64
	kept := make([]storage.Dependency, 0, len(keep))
	for _, d := range unresolved {
		if keptIDs[d.ID] {
			kept = append(kept, d)
		} else {
			doomed = append(doomed, d.ID)
		}
	}

	deleted, err := r.db.DeleteDependencies(doomed)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to delete duplicate edges: %w", err)
	}
	return kept, deleted, nil
}
