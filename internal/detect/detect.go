// Package detect computes the minimal set of added, changed, and deleted
// files for a repository since its last analysis run. Detection is pure: the
// caller performs the actual deletion and re-ingestion.
package detect

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	cgerrors "codegraph/internal/errors"
	"codegraph/internal/logging"
	"codegraph/internal/storage"
)

// ChangeSet holds three disjoint path sets
type ChangeSet struct {
	NewFiles       []string // on disk, not in store
	ChangedFiles   []string // in store and on disk, modified since last index
	DeletedFileIDs []int64  // in store, no longer on disk
}

// Empty reports whether nothing changed
func (c *ChangeSet) Empty() bool {
	return len(c.NewFiles) == 0 && len(c.ChangedFiles) == 0 && len(c.DeletedFileIDs) == 0
}

// Controller detects file changes against the stored baseline
type Controller struct {
	db       *storage.DB
	supports func(string) bool
	excludes []string
	logger   *logging.Logger
}

// NewController creates a change detection controller. supports filters
// discovered paths to those the configured parsers handle.
func NewController(db *storage.DB, supports func(string) bool, excludes []string, logger *logging.Logger) *Controller {
	return &Controller{
		db:       db,
		supports: supports,
		excludes: excludes,
		logger:   logger,
	}
}

// DetectChanges compares the on-disk file set against the stored state of
// repo. With no previous index every discovered file is new (full analysis).
func (c *Controller) DetectChanges(ctx context.Context, repo *storage.Repository) (*ChangeSet, error) {
	onDisk, err := c.discoverFiles(ctx, repo.Path)
	if err != nil {
		return nil, err
	}

	stored, err := c.db.ListFilesByRepository(repo.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list stored files: %w", err)
	}

	changes := &ChangeSet{}

	if repo.LastIndexedAt.IsZero() || len(stored) == 0 {
		for path := range onDisk {
			changes.NewFiles = append(changes.NewFiles, path)
		}
		sortPaths(changes.NewFiles)
		return changes, nil
	}

	storedByPath := make(map[string]storage.File, len(stored))
	for _, f := range stored {
		storedByPath[f.Path] = f
	}

	for path, modTime := range onDisk {
		if _, exists := storedByPath[path]; !exists {
			changes.NewFiles = append(changes.NewFiles, path)
			continue
		}
		if modTime.After(repo.LastIndexedAt) {
			changes.ChangedFiles = append(changes.ChangedFiles, path)
		}
	}

	for path, f := range storedByPath {
		if _, exists := onDisk[path]; !exists {
			changes.DeletedFileIDs = append(changes.DeletedFileIDs, f.ID)
		}
	}

	sortPaths(changes.NewFiles)
	sortPaths(changes.ChangedFiles)
	return changes, nil
}

// discoverFiles walks the repository root collecting supported source files
// and their modification times. A file vanishing mid-walk is skipped as
// already deleted; any other I/O failure aborts the run so a partial scan
// cannot corrupt the incremental baseline.
func (c *Controller) discoverFiles(ctx context.Context, root string) (map[string]time.Time, error) {
	onDisk := make(map[string]time.Time)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return cgerrors.New(cgerrors.IOError,
				fmt.Sprintf("failed to scan %s", path), err)
		}

		if d.IsDir() {
			if c.isExcluded(root, path) {
				return filepath.SkipDir
			}
			return nil
		}

		relPath, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		relPath = filepath.ToSlash(relPath)

		if !c.supports(relPath) || c.isExcluded(root, path) {
			return nil
		}

		info, statErr := d.Info()
		if statErr != nil {
			if os.IsNotExist(statErr) {
				return nil
			}
			return cgerrors.New(cgerrors.IOError,
				fmt.Sprintf("failed to stat %s", relPath), statErr)
		}

		onDisk[relPath] = info.ModTime()
		return nil
	})
	if err != nil {
		return nil, err
	}

	return onDisk, nil
}

func sortPaths(paths []string) {
	sort.Strings(paths)
}

// isExcluded checks a path against the configured exclude patterns
func (c *Controller) isExcluded(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)

	for _, pattern := range c.excludes {
		pattern = filepath.ToSlash(pattern)
		if matched, _ := filepath.Match(pattern, rel); matched {
			return true
		}
		if rel == pattern || strings.HasPrefix(rel, pattern+"/") {
			return true
		}
		// Name excludes apply at any depth
		base := filepath.Base(rel)
		if base == pattern {
			return true
		}
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
	}
	return false
}
