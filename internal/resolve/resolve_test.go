package resolve

import (
	"context"
	"testing"
	"time"

	"codegraph/internal/logging"
	"codegraph/internal/storage"
)

type fixture struct {
	db   *storage.DB
	repo *storage.Repository
	file *storage.File
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := storage.Open(t.TempDir(), logging.NewNop())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	repo, err := db.EnsureRepository("proj", "/tmp/proj")
	if err != nil {
		t.Fatalf("EnsureRepository failed: %v", err)
	}

	f := &storage.File{
		RepositoryID: repo.ID,
		Path:         "src/a.ts",
		Language:     "typescript",
		ModifiedAt:   time.Now(),
	}
	if _, err := db.UpsertFile(f); err != nil {
		t.Fatalf("UpsertFile failed: %v", err)
	}
	return &fixture{db: db, repo: repo, file: f}
}

func (fx *fixture) symbol(t *testing.T, name, qname string, start int) *storage.Symbol {
	t.Helper()
	syms := []storage.Symbol{{
		FileID:        fx.file.ID,
		Name:          name,
		QualifiedName: qname,
		Kind:          storage.SymbolKindFunction,
		StartLine:     start,
		EndLine:       start + 3,
	}}
	if err := fx.db.InsertSymbols(syms, 50); err != nil {
		t.Fatalf("InsertSymbols failed: %v", err)
	}
	return &syms[0]
}

func (fx *fixture) unresolvedEdge(t *testing.T, fromID int64, target string, line int) {
	t.Helper()
	deps := []storage.Dependency{{
		FromSymbolID:    fromID,
		Kind:            storage.DepKindCalls,
		LineNumber:      line,
		QualifiedTarget: target,
	}}
	if _, err := fx.db.UpsertDependencies(deps, 100); err != nil {
		t.Fatalf("UpsertDependencies failed: %v", err)
	}
}

func TestResolveBindsUnambiguousTargets(t *testing.T) {
	fx := newFixture(t)
	from := fx.symbol(t, "caller", "src/a.caller", 1)
	target := fx.symbol(t, "helper", "src/a.helper", 10)
	fx.unresolvedEdge(t, from.ID, "src/a.helper", 3)

	r := NewResolver(fx.db, logging.NewNop())
	result, err := r.Resolve(context.Background(), fx.repo.ID)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if result.Resolved != 1 {
		t.Errorf("resolved = %d, want 1", result.Resolved)
	}
	if result.Remaining != 0 {
		t.Errorf("remaining = %d, want 0", result.Remaining)
	}

	edges, err := fx.db.ListEdges(context.Background(), []int64{target.ID}, storage.DirectionCallers, nil)
	if err != nil {
		t.Fatalf("ListEdges failed: %v", err)
	}
	if len(edges) != 1 || edges[0].FromSymbolID != from.ID {
		t.Errorf("edges = %+v, want caller bound to target", edges)
	}
}

func TestResolveSkipsAmbiguousTargets(t *testing.T) {
	fx := newFixture(t)
	from := fx.symbol(t, "caller", "src/a.caller", 1)
	fx.symbol(t, "dup", "shared.name", 10)
	fx.symbol(t, "dup2", "shared.name", 20)
	fx.unresolvedEdge(t, from.ID, "shared.name", 3)

	r := NewResolver(fx.db, logging.NewNop())
	result, err := r.Resolve(context.Background(), fx.repo.ID)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if result.Resolved != 0 {
		t.Errorf("resolved = %d, want ambiguous target skipped", result.Resolved)
	}
	if result.Ambiguous != 1 {
		t.Errorf("ambiguous = %d, want 1", result.Ambiguous)
	}

	// The edge stays for a later pass; its target exists, so cleanup
	// leaves it alone.
	unresolved, err := fx.db.ListUnresolvedDependencies(context.Background(), fx.repo.ID)
	if err != nil {
		t.Fatalf("ListUnresolvedDependencies failed: %v", err)
	}
	if len(unresolved) != 1 {
		t.Errorf("unresolved = %d, want the ambiguous edge kept", len(unresolved))
	}
}

func TestResolveDeduplicatesBeforeBinding(t *testing.T) {
	fx := newFixture(t)
	from := fx.symbol(t, "caller", "src/a.caller", 1)
	fx.symbol(t, "helper", "src/a.helper", 10)

	// Identical unresolved edges; NULL targets let both rows in
	fx.unresolvedEdge(t, from.ID, "src/a.helper", 3)
	fx.unresolvedEdge(t, from.ID, "src/a.helper", 3)

	r := NewResolver(fx.db, logging.NewNop())
	result, err := r.Resolve(context.Background(), fx.repo.ID)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if result.Deduplicated != 1 {
		t.Errorf("deduplicated = %d, want 1", result.Deduplicated)
	}
	if result.Resolved != 1 {
		t.Errorf("resolved = %d, want exactly one bind", result.Resolved)
	}
}

func TestResolveCleansOrphansButKeepsImports(t *testing.T) {
	fx := newFixture(t)
	from := fx.symbol(t, "caller", "src/a.caller", 1)

	fx.unresolvedEdge(t, from.ID, "nowhere.missing", 3)
	deps := []storage.Dependency{{
		FromSymbolID:    from.ID,
		Kind:            storage.DepKindImports,
		LineNumber:      1,
		QualifiedTarget: "lodash",
	}}
	if _, err := fx.db.UpsertDependencies(deps, 100); err != nil {
		t.Fatalf("UpsertDependencies failed: %v", err)
	}

	r := NewResolver(fx.db, logging.NewNop())
	result, err := r.Resolve(context.Background(), fx.repo.ID)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if result.Orphaned != 1 {
		t.Errorf("orphaned = %d, want 1", result.Orphaned)
	}
	if result.Remaining != 1 {
		t.Errorf("remaining = %d, want the import edge", result.Remaining)
	}

	unresolved, err := fx.db.ListUnresolvedDependencies(context.Background(), fx.repo.ID)
	if err != nil {
		t.Fatalf("ListUnresolvedDependencies failed: %v", err)
	}
	if len(unresolved) != 1 || unresolved[0].Kind != storage.DepKindImports {
		t.Errorf("unresolved = %+v, want only the import edge", unresolved)
	}
}

func TestResolveConvergesOnSecondPass(t *testing.T) {
	fx := newFixture(t)
	from := fx.symbol(t, "caller", "src/a.caller", 1)
	fx.symbol(t, "helper", "src/a.helper", 10)
	fx.unresolvedEdge(t, from.ID, "src/a.helper", 3)

	r := NewResolver(fx.db, logging.NewNop())
	ctx := context.Background()
	if _, err := r.Resolve(ctx, fx.repo.ID); err != nil {
		t.Fatalf("first Resolve failed: %v", err)
	}

	second, err := r.Resolve(ctx, fx.repo.ID)
	if err != nil {
		t.Fatalf("second Resolve failed: %v", err)
	}
	if second.Resolved != 0 || second.Deduplicated != 0 || second.Orphaned != 0 {
		t.Errorf("second pass did work: %s", second)
	}
}
