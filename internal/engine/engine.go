// Package engine wires the analysis pipeline together: change detection,
// parallel parsing, serialized ingestion, file-dependency derivation, the
// resolution pass, and cache invalidation. One Engine serves one repository.
package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"codegraph/internal/cache"
	"codegraph/internal/config"
	"codegraph/internal/detect"
	"codegraph/internal/ingest"
	"codegraph/internal/logging"
	"codegraph/internal/parser"
	"codegraph/internal/resolve"
	"codegraph/internal/storage"
	"codegraph/internal/traverse"
)

// Engine owns the store, cache, and pipeline stages for one repository.
type Engine struct {
	cfg       *config.Config
	db        *storage.DB
	cache     *cache.Cache
	parser    parser.Parser
	detector  *detect.Controller
	ingestor  *ingest.Ingestor
	resolver  *resolve.Resolver
	traverser *traverse.Engine
	logger    *logging.Logger
}

// New opens the store under cfg.RepoRoot and assembles the pipeline
func New(cfg *config.Config, logger *logging.Logger) (*Engine, error) {
	db, err := storage.Open(cfg.RepoRoot, logger)
	if err != nil {
		return nil, err
	}

	c, err := cache.New(cache.Options{
		MaxEntries:   cfg.Cache.MaxEntries,
		MaxSizeBytes: int64(cfg.Cache.MaxSizeBytes),
		TTL:          cfg.Cache.TTL(),
		Statistics:   cfg.Cache.Statistics,
	}, logger.Named("cache"))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create result cache: %w", err)
	}

	p := parser.NewTreeSitterParser()
	e := &Engine{
		cfg:       cfg,
		db:        db,
		cache:     c,
		parser:    p,
		detector:  detect.NewController(db, p.Supports, cfg.Analysis.Excludes, logger.Named("detect")),
		ingestor:  ingest.NewIngestor(db, cfg.Ingestion, logger),
		resolver:  resolve.NewResolver(db, logger),
		traverser: traverse.NewEngine(db, c, cfg.Traversal, logger),
		logger:    logger.Named("engine"),
	}
	return e, nil
}

// Close releases the store and stops the cache sweep
func (e *Engine) Close() error {
	e.cache.Close()
	return e.db.Close()
}

// DB exposes the underlying store for read-only queries
func (e *Engine) DB() *storage.DB { return e.db }

// AnalyzeResult summarizes one analysis run
type AnalyzeResult struct {
	RunID            string              `json:"runId"`
	Repository       *storage.Repository `json:"repository"`
	Unchanged        bool                `json:"unchanged"`
	FilesParsed      int                 `json:"filesParsed"`
	FilesFailed      int                 `json:"filesFailed"`
	FilesDeleted     int                 `json:"filesDeleted"`
	Counts           ingest.FileCounts   `json:"counts"`
	FileDependencies int                 `json:"fileDependencies"`
	Resolution       *resolve.Result     `json:"resolution,omitempty"`
	Duration         time.Duration       `json:"duration"`
}

// Analyze runs one incremental analysis round. Parsing fans out across the
// configured worker count; all writes stay on a single goroutine so batch
// transactions never contend. A file that fails to parse is logged and
// skipped, never fatal. The new baseline timestamp is captured before
// scanning, so edits racing the run are re-detected next time.
func (e *Engine) Analyze(ctx context.Context) (*AnalyzeResult, error) {
	start := time.Now()
	runID := uuid.NewString()
	log := e.logger.Named("run")

	repo, err := e.db.EnsureRepository(filepath.Base(e.cfg.RepoRoot), e.cfg.RepoRoot)
	if err != nil {
		return nil, err
	}
	result := &AnalyzeResult{RunID: runID, Repository: repo}

	changes, err := e.detector.DetectChanges(ctx, repo)
	if err != nil {
		return nil, err
	}
	if changes.Empty() {
		result.Unchanged = true
		result.Duration = time.Since(start)
		log.Info("nothing to analyze", map[string]interface{}{
			"run_id":     runID,
			"repository": repo.Name,
		})
		return result, nil
	}

	log.Info("analysis started", map[string]interface{}{
		"run_id":  runID,
		"new":     len(changes.NewFiles),
		"changed": len(changes.ChangedFiles),
		"deleted": len(changes.DeletedFileIDs),
	})

	parsed, failed, err := e.parseAll(ctx, append(changes.NewFiles, changes.ChangedFiles...))
	if err != nil {
		return nil, err
	}
	result.FilesParsed = len(parsed)
	result.FilesFailed = failed

	var fileIDs []int64
	for _, pf := range parsed {
		counts, err := e.ingestor.IngestFile(ctx, repo.ID, pf)
		if err != nil {
			return nil, fmt.Errorf("failed to ingest %s: %w", pf.Path, err)
		}
		result.Counts.Add(counts)
		fileIDs = append(fileIDs, counts.FileID)
	}

	if len(changes.DeletedFileIDs) > 0 {
		deleted, err := e.db.DeleteFiles(changes.DeletedFileIDs)
		if err != nil {
			return nil, err
		}
		result.FilesDeleted = deleted
	}

	// Resolution first: file-level derivation treats remaining unresolved
	// edges as external, so internal targets must be bound before it runs.
	resolution, err := e.resolver.Resolve(ctx, repo.ID)
	if err != nil {
		return nil, err
	}
	result.Resolution = resolution

	fileDeps, err := e.ingestor.DeriveFileDependencies(ctx, repo.ID, fileIDs)
	if err != nil {
		return nil, err
	}
	result.FileDependencies = fileDeps

	if err := e.db.TouchLastIndexed(repo.ID, start); err != nil {
		return nil, err
	}

	// Everything cached for this repository is now stale
	// Trailing colon keeps repo:1 from also sweeping repo:10's entries
	e.cache.InvalidateByPattern(fmt.Sprintf("repo:%d:", repo.ID))

	result.Duration = time.Since(start)
	log.Info("analysis complete", map[string]interface{}{
		"run_id":       runID,
		"files_parsed": result.FilesParsed,
		"files_failed": result.FilesFailed,
		"symbols":      result.Counts.SymbolsCreated,
		"edges":        result.Counts.DependenciesCreated,
		"resolution":   resolution.String(),
		"duration_ms":  result.Duration.Milliseconds(),
	})
	return result, nil
}

// parseAll parses paths concurrently, preserving input order in the output.
// Parse failures are logged per file and only counted.
func (e *Engine) parseAll(ctx context.Context, paths []string) ([]*parser.ParsedFile, int, error) {
	workers := e.cfg.Analysis.Workers
	if workers <= 0 {
		workers = 1
	}

	results := make([]*parser.ParsedFile, len(paths))
	var mu sync.Mutex
	failed := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, relPath := range paths {
		i, relPath := i, relPath
		g.Go(func() error {
			abs := filepath.Join(e.cfg.RepoRoot, relPath)
			pf, err := e.parser.ParseFile(gctx, abs, relPath)
			if err != nil {
				e.logger.Warn("failed to parse file", map[string]interface{}{
					"path":  relPath,
					"error": err.Error(),
				})
				mu.Lock()
				failed++
				mu.Unlock()
				return nil
			}
			results[i] = pf
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, failed, err
	}

	parsed := make([]*parser.ParsedFile, 0, len(results))
	for _, pf := range results {
		if pf != nil {
			parsed = append(parsed, pf)
		}
	}
	return parsed, failed, nil
}

// Callers runs a backward traversal from the named or numbered symbol
func (e *Engine) Callers(ctx context.Context, req traverse.Request) (*traverse.Result, error) {
	req.Direction = storage.DirectionCallers
	return e.traverser.Traverse(ctx, req)
}

// Dependencies runs a forward traversal
func (e *Engine) Dependencies(ctx context.Context, req traverse.Request) (*traverse.Result, error) {
	req.Direction = storage.DirectionDependencies
	return e.traverser.Traverse(ctx, req)
}

// GroupCallers aggregates direct callers by argument shape
func (e *Engine) GroupCallers(ctx context.Context, repoID, symbolID int64) ([]traverse.CallerGroup, error) {
	return e.traverser.GroupCallers(ctx, repoID, symbolID)
}

// LookupSymbol resolves a CLI symbol argument to exactly one stored symbol.
// Multiple matches are a validation error listing the candidates.
func (e *Engine) LookupSymbol(repoID int64, name string) (*storage.Symbol, error) {
	matches, err := e.db.FindSymbols(repoID, name)
	if err != nil {
		return nil, err
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("no symbol named %q", name)
	case 1:
		return &matches[0], nil
	}

	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m.QualifiedName)
	}
	sort.Strings(names)
	return nil, fmt.Errorf("symbol %q is ambiguous, use a qualified name: %v", name, names)
}

// Repository returns the stored repository for the configured root, or nil
func (e *Engine) Repository() (*storage.Repository, error) {
	return e.db.GetRepositoryByPath(e.cfg.RepoRoot)
}

// StatusReport is the combined store and cache view shown by the status command
type StatusReport struct {
	Repository *storage.Repository      `json:"repository,omitempty"`
	Stats      *storage.RepositoryStats `json:"stats,omitempty"`
	Cache      cache.Stats              `json:"cache"`
}

// Status reports store counts and cache effectiveness for the repository
func (e *Engine) Status() (*StatusReport, error) {
	report := &StatusReport{Cache: e.cache.Stats()}

	repo, err := e.db.GetRepositoryByPath(e.cfg.RepoRoot)
	if err != nil {
		return nil, err
	}
	if repo == nil {
		return report, nil
	}
	report.Repository = repo

	stats, err := e.db.GetRepositoryStats(repo.ID)
	if err != nil {
		return nil, err
	}
	report.Stats = stats
	return report, nil
}
