// Package ingest persists parsed symbol and dependency batches, guaranteeing
// no uniqueness violation and idempotent re-runs.
package ingest

import (
	"context"
	"fmt"
	"strings"

	"codegraph/internal/config"
	"codegraph/internal/logging"
	"codegraph/internal/parser"
	"codegraph/internal/storage"
)

// Ingestor writes parsed file batches into the entity store
type Ingestor struct {
	db          *storage.DB
	symbolBatch int
	depBatch    int
	logger      *logging.Logger
}

// NewIngestor creates an ingestor with the configured batch sizes
func NewIngestor(db *storage.DB, cfg config.IngestionConfig, logger *logging.Logger) *Ingestor {
	symbolBatch := cfg.SymbolBatchSize
	if symbolBatch <= 0 {
		symbolBatch = 50
	}
	depBatch := cfg.DependencyBatchSize
	if depBatch <= 0 {
		depBatch = 1000
	}
	return &Ingestor{
		db:          db,
		symbolBatch: symbolBatch,
		depBatch:    depBatch,
		logger:      logger,
	}
}

// FileCounts reports what ingesting one file did
type FileCounts struct {
	FileID                   int64
	SymbolsCreated           int
	SymbolsDeduplicated      int
	SymbolsLinked            int
	DependenciesCreated      int
	DependenciesUpdated      int
	DependenciesDeduplicated int
	RecordsSkipped           int
}

// Add accumulates counts from another file
func (c *FileCounts) Add(other *FileCounts) {
	c.SymbolsCreated += other.SymbolsCreated
	c.SymbolsDeduplicated += other.SymbolsDeduplicated
	c.SymbolsLinked += other.SymbolsLinked
	c.DependenciesCreated += other.DependenciesCreated
	c.DependenciesUpdated += other.DependenciesUpdated
	c.DependenciesDeduplicated += other.DependenciesDeduplicated
	c.RecordsSkipped += other.RecordsSkipped
}

// IngestFile persists one parsed file: the file row, its symbols, their
// containment links, and its dependency edges, in that order. Re-ingesting
// the same file converges to the same state.
func (in *Ingestor) IngestFile(ctx context.Context, repoID int64, pf *parser.ParsedFile) (*FileCounts, error) {
	counts := &FileCounts{}

	// File row first; symbols and edges reference it
	file := &storage.File{
		RepositoryID: repoID,
		Path:         pf.Path,
		Language:     pf.Language,
		Size:         pf.Size,
		ContentHash:  pf.ContentHash,
		ModifiedAt:   pf.ModifiedAt,
		IsGenerated:  pf.IsGenerated,
		IsTest:       pf.IsTest,
	}
	fileID, err := in.db.UpsertFile(file)
	if err != nil {
		return nil, err
	}
	counts.FileID = fileID

	// Replace, not merge: symbols removed from the source must not linger.
	// Edges into the old rows revert to unresolved and re-bind at resolution.
	if _, err := in.db.DeleteSymbolsByFile(fileID); err != nil {
		return nil, err
	}

	symbols, keyByIndex, skipped := in.dedupSymbols(fileID, pf)
	counts.SymbolsDeduplicated = len(pf.Symbols) - len(symbols) - skipped
	counts.RecordsSkipped += skipped

	if err := in.db.InsertSymbols(symbols, in.symbolBatch); err != nil {
		return nil, err
	}
	counts.SymbolsCreated = len(symbols)

	links := ContainmentLinks(symbols)
	if err := in.db.SetSymbolParents(links); err != nil {
		return nil, err
	}
	counts.SymbolsLinked = len(links)

	deps, depSkipped := in.mapDependencies(pf, symbols, keyByIndex)
	counts.RecordsSkipped += depSkipped

	deduped := dedupDependencies(deps)
	counts.DependenciesDeduplicated = len(deps) - len(deduped)

	result, err := in.db.UpsertDependencies(deduped, in.depBatch)
	if err != nil {
		return nil, err
	}
	counts.DependenciesCreated = result.Created
	counts.DependenciesUpdated = result.Updated

	if len(result.Existing) > 0 {
		in.logger.Debug("Dependency batch hit concurrent writes, reused existing rows", map[string]interface{}{
			"file":  pf.Path,
			"count": len(result.Existing),
		})
	}

	return counts, nil
}

// dedupSymbols collapses parsed symbols sharing a physical key, keeping the
// most complete variant. keyByIndex maps every original symbol index to the
// physical key of the row that survived, so dependency records can still
// find their source symbol.
func (in *Ingestor) dedupSymbols(fileID int64, pf *parser.ParsedFile) ([]storage.Symbol, map[int]storage.PhysicalKey, int) {
	keyByIndex := make(map[int]storage.PhysicalKey, len(pf.Symbols))
	byKey := make(map[storage.PhysicalKey]int)
	var symbols []storage.Symbol
	skipped := 0

	for i, ps := range pf.Symbols {
		if ps.Name == "" || ps.Kind == "" || ps.StartLine <= 0 {
			in.logger.Warn("Skipping malformed symbol record", map[string]interface{}{
				"file": pf.Path,
				"name": ps.Name,
			})
			skipped++
			continue
		}

		candidate := storage.Symbol{
			FileID:        fileID,
			Name:          ps.Name,
			QualifiedName: ps.QualifiedName,
			Kind:          ps.Kind,
			StartLine:     ps.StartLine,
			EndLine:       ps.EndLine,
			IsExported:    ps.IsExported,
			Signature:     ps.Signature,
			Description:   ps.Description,
		}
		key := candidate.Key()
		keyByIndex[i] = key

		pos, seen := byKey[key]
		if !seen {
			byKey[key] = len(symbols)
			symbols = append(symbols, candidate)
			continue
		}

		if moreComplete(&candidate, &symbols[pos]) {
			symbols[pos] = candidate
		}
	}

	return symbols, keyByIndex, skipped
}

// moreComplete reports whether a should replace b under the completeness
// ordering: signature, then exported flag, then description, then qualified
// name.
func moreComplete(a, b *storage.Symbol) bool {
	if (a.Signature != "") != (b.Signature != "") {
		return a.Signature != ""
	}
	if a.IsExported != b.IsExported {
		return a.IsExported
	}
	if (a.Description != "") != (b.Description != "") {
		return a.Description != ""
	}
	if (a.QualifiedName != "") != (b.QualifiedName != "") {
		return a.QualifiedName != ""
	}
	return false
}

// mapDependencies converts parsed dependency records into store rows.
// Targets naming exactly one symbol in the same file bind immediately;
// everything else stays unresolved for the resolution pass.
func (in *Ingestor) mapDependencies(pf *parser.ParsedFile, symbols []storage.Symbol, keyByIndex map[int]storage.PhysicalKey) ([]storage.Dependency, int) {
	idByKey := make(map[storage.PhysicalKey]int64, len(symbols))
	localByName := make(map[string][]int64)
	for i := range symbols {
		idByKey[symbols[i].Key()] = symbols[i].ID
		localByName[symbols[i].Name] = append(localByName[symbols[i].Name], symbols[i].ID)
	}

	var deps []storage.Dependency
	skipped := 0
	for _, pd := range pf.Dependencies {
		key, ok := keyByIndex[pd.From]
		if !ok || pd.Target == "" || pd.Kind == "" {
			in.logger.Warn("Skipping malformed dependency record", map[string]interface{}{
				"file":   pf.Path,
				"target": pd.Target,
			})
			skipped++
			continue
		}
		fromID := idByKey[key]

		dep := storage.Dependency{
			FromSymbolID:     fromID,
			Kind:             pd.Kind,
			LineNumber:       pd.LineNumber,
			CallerObject:     pd.CallerObject,
			ParameterContext: pd.ParameterContext,
			ParameterTypes:   pd.ParameterTypes,
		}

		if ids := localByName[pd.Target]; len(ids) == 1 && pd.Kind != storage.DepKindImports && !strings.Contains(pd.Target, ".") {
			dep.ToSymbolID = ids[0]
		} else {
			dep.QualifiedTarget = pd.Target
		}

		if dep.ToSymbolID == fromID && dep.ToSymbolID != 0 {
			// Self-edges carry no information for impact queries
			continue
		}

		deps = append(deps, dep)
	}

	return deps, skipped
}

// dedupDependencies keeps the first occurrence of each uniqueness tuple.
// Unresolved edges are keyed on their qualified target in place of the
// missing target id.
func dedupDependencies(deps []storage.Dependency) []storage.Dependency {
	type unresolvedKey struct {
		from   int64
		target string
		kind   string
		line   int
	}

	seenResolved := make(map[storage.EdgeKey]bool)
	seenUnresolved := make(map[unresolvedKey]bool)
	var out []storage.Dependency

	for _, d := range deps {
		if d.Resolved() {
			key := d.Key()
			if seenResolved[key] {
				continue
			}
			seenResolved[key] = true
		} else {
			key := unresolvedKey{from: d.FromSymbolID, target: d.QualifiedTarget, kind: d.Kind, line: d.LineNumber}
			if seenUnresolved[key] {
				continue
			}
			seenUnresolved[key] = true
		}
		out = append(out, d)
	}
	return out
}

// String summarizes counts for logging
func (c *FileCounts) String() string {
	return fmt.Sprintf("symbols=%d deps=%d deduped=%d skipped=%d",
		c.SymbolsCreated, c.DependenciesCreated,
		c.SymbolsDeduplicated+c.DependenciesDeduplicated, c.RecordsSkipped)
}
