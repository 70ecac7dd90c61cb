package ingest

import (
	"context"
	"testing"

	"codegraph/internal/parser"
	"codegraph/internal/storage"
)

func TestResolveImportPath(t *testing.T) {
	byPath := map[string]int64{
		"src/util/math.ts":  1,
		"src/api/index.ts":  2,
		"src/api/client.js": 3,
	}

	tests := []struct {
		name string
		spec string
		from string
		want int64
		ok   bool
	}{
		{"bare package never matches", "lodash", "src/a.ts", 0, false},
		{"sibling with extension inferred", "./client", "src/api/server.ts", 3, true},
		{"parent traversal", "../util/math", "src/api/server.ts", 1, true},
		{"directory index", "./api", "src/a.ts", 2, true},
		{"unknown relative path", "./missing", "src/a.ts", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := resolveImportPath(tt.spec, tt.from, byPath)
			if ok != tt.ok || got != tt.want {
				t.Errorf("resolveImportPath(%q) = %d, %v; want %d, %v", tt.spec, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestDeriveFileDependencies(t *testing.T) {
	in, db, repo := newTestIngestor(t)
	ctx := context.Background()

	// a.ts imports ./b and lodash, calls b.helper; b.ts defines helper
	a := parsedFixture("src/a.ts")
	a.Symbols = []parser.ParsedSymbol{
		{Name: "main", QualifiedName: "src/a.main", Kind: storage.SymbolKindFunction, StartLine: 3, EndLine: 10},
	}
	a.Dependencies = []parser.ParsedDependency{
		{From: 0, Target: "./b", Kind: storage.DepKindImports, LineNumber: 1},
		{From: 0, Target: "lodash", Kind: storage.DepKindImports, LineNumber: 2},
		{From: 0, Target: "src/b.helper", Kind: storage.DepKindCalls, LineNumber: 5},
	}

	b := parsedFixture("src/b.ts")
	b.Symbols = []parser.ParsedSymbol{
		{Name: "helper", QualifiedName: "src/b.helper", Kind: storage.SymbolKindFunction, StartLine: 1, EndLine: 4},
	}

	var fileIDs []int64
	for _, pf := range []*parser.ParsedFile{a, b} {
		counts, err := in.IngestFile(ctx, repo.ID, pf)
		if err != nil {
			t.Fatalf("IngestFile(%s) failed: %v", pf.Path, err)
		}
		fileIDs = append(fileIDs, counts.FileID)
	}

	// Bind the cross-file call so it derives as an internal edge
	unresolved, err := db.ListUnresolvedDependencies(ctx, repo.ID)
	if err != nil {
		t.Fatalf("ListUnresolvedDependencies failed: %v", err)
	}
	index, err := db.QualifiedNameIndex(repo.ID)
	if err != nil {
		t.Fatalf("QualifiedNameIndex failed: %v", err)
	}
	binds := make(map[int64]int64)
	for _, d := range unresolved {
		if ids := index[d.QualifiedTarget]; len(ids) == 1 {
			binds[d.ID] = ids[0]
		}
	}
	if _, err := db.BindDependencies(ctx, binds); err != nil {
		t.Fatalf("BindDependencies failed: %v", err)
	}

	created, err := in.DeriveFileDependencies(ctx, repo.ID, fileIDs)
	if err != nil {
		t.Fatalf("DeriveFileDependencies failed: %v", err)
	}
	if created != 3 {
		t.Errorf("created %d file edges, want 3", created)
	}

	fileDeps, err := db.ListFileDependencies(repo.ID)
	if err != nil {
		t.Fatalf("ListFileDependencies failed: %v", err)
	}

	var internal, external int
	for _, fd := range fileDeps {
		if fd.ToFileID != 0 {
			internal++
			if fd.FromFileID != fileIDs[0] || fd.ToFileID != fileIDs[1] {
				t.Errorf("internal edge %+v, want a.ts -> b.ts", fd)
			}
		} else {
			external++
			if fd.ExternalTarget != "lodash" {
				t.Errorf("external edge target = %q, want lodash", fd.ExternalTarget)
			}
		}
	}
	if internal != 2 {
		t.Errorf("internal file edges = %d, want 2 (import and call)", internal)
	}
	if external != 1 {
		t.Errorf("external file edges = %d, want 1", external)
	}

	// Idempotent: re-deriving rebuilds the same set, never accumulates
	if _, err = in.DeriveFileDependencies(ctx, repo.ID, fileIDs); err != nil {
		t.Fatalf("second DeriveFileDependencies failed: %v", err)
	}
	again, err := db.ListFileDependencies(repo.ID)
	if err != nil {
		t.Fatalf("ListFileDependencies failed: %v", err)
	}
	if len(again) != len(fileDeps) {
		t.Errorf("re-derivation changed edge count from %d to %d", len(fileDeps), len(again))
	}
}

func TestDeriveFileDependenciesDropsStaleEdges(t *testing.T) {
	in, db, repo := newTestIngestor(t)
	ctx := context.Background()

	a := parsedFixture("src/a.ts")
	a.Symbols = []parser.ParsedSymbol{
		{Name: "main", QualifiedName: "src/a.main", Kind: storage.SymbolKindFunction, StartLine: 3, EndLine: 10},
	}
	a.Dependencies = []parser.ParsedDependency{
		{From: 0, Target: "lodash", Kind: storage.DepKindImports, LineNumber: 1},
	}

	counts, err := in.IngestFile(ctx, repo.ID, a)
	if err != nil {
		t.Fatalf("IngestFile failed: %v", err)
	}
	fileIDs := []int64{counts.FileID}

	if _, err := in.DeriveFileDependencies(ctx, repo.ID, fileIDs); err != nil {
		t.Fatalf("DeriveFileDependencies failed: %v", err)
	}
	fileDeps, err := db.ListFileDependencies(repo.ID)
	if err != nil {
		t.Fatalf("ListFileDependencies failed: %v", err)
	}
	if len(fileDeps) != 1 {
		t.Fatalf("file deps = %+v, want the lodash import", fileDeps)
	}

	// Re-ingest without the import: the old file-level edge must go away
	a.Dependencies = nil
	if _, err := in.IngestFile(ctx, repo.ID, a); err != nil {
		t.Fatalf("re-IngestFile failed: %v", err)
	}
	if _, err := in.DeriveFileDependencies(ctx, repo.ID, fileIDs); err != nil {
		t.Fatalf("second DeriveFileDependencies failed: %v", err)
	}

	fileDeps, err = db.ListFileDependencies(repo.ID)
	if err != nil {
		t.Fatalf("ListFileDependencies failed: %v", err)
	}
	if len(fileDeps) != 0 {
		t.Errorf("stale file deps survived re-ingestion: %+v", fileDeps)
	}
}
