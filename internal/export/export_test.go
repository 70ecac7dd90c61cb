package export

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"gopkg.in/yaml.v3"

	"codegraph/internal/logging"
	"codegraph/internal/storage"
)

func seedGraph(t *testing.T) (*Exporter, *storage.Repository) {
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

	fa := &storage.File{RepositoryID: repo.ID, Path: "src/a.ts", Language: "typescript", ModifiedAt: time.Now()}
	fb := &storage.File{RepositoryID: repo.ID, Path: "src/b.ts", Language: "typescript", ModifiedAt: time.Now()}
	for _, f := range []*storage.File{fa, fb} {
		if _, err := db.UpsertFile(f); err != nil {
			t.Fatalf("UpsertFile failed: %v", err)
		}
	}

	syms := []storage.Symbol{
		{FileID: fa.ID, Name: "main", QualifiedName: "src/a.main", Kind: storage.SymbolKindFunction, StartLine: 1, EndLine: 5},
		{FileID: fb.ID, Name: "helper", QualifiedName: "src/b.helper", Kind: storage.SymbolKindFunction, StartLine: 1, EndLine: 4},
	}
	if err := db.InsertSymbols(syms, 50); err != nil {
		t.Fatalf("InsertSymbols failed: %v", err)
	}

	deps := []storage.Dependency{{
		FromSymbolID: syms[0].ID,
		ToSymbolID:   syms[1].ID,
		Kind:         storage.DepKindCalls,
		LineNumber:   3,
	}}
	if _, err := db.UpsertDependencies(deps, 100); err != nil {
		t.Fatalf("UpsertDependencies failed: %v", err)
	}

	fileDeps := []storage.FileDependency{{
		FromFileID: fa.ID,
		ToFileID:   fb.ID,
		Kind:       storage.DepKindCalls,
	}}
	if _, err := db.UpsertFileDependencies(fileDeps, 100); err != nil {
		t.Fatalf("UpsertFileDependencies failed: %v", err)
	}

	return NewExporter(db, logging.NewNop()), repo
}

func TestParseFormat(t *testing.T) {
	if _, err := ParseFormat("json"); err != nil {
		t.Errorf("json rejected: %v", err)
	}
	if _, err := ParseFormat("yaml"); err != nil {
		t.Errorf("yaml rejected: %v", err)
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("unknown format accepted")
	}
}

func TestBuildAssemblesWholeGraph(t *testing.T) {
	x, repo := seedGraph(t)

	g, err := x.Build(context.Background(), repo)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if g.Repository.Name != "proj" {
		t.Errorf("repository name = %q", g.Repository.Name)
	}
	if len(g.Files) != 2 {
		t.Errorf("files = %d, want 2", len(g.Files))
	}
	if len(g.Symbols) != 2 {
		t.Errorf("symbols = %d, want 2", len(g.Symbols))
	}
	if len(g.Dependencies) != 1 {
		t.Errorf("dependencies = %d, want 1", len(g.Dependencies))
	}
	if len(g.FileDependencies) != 1 {
		t.Errorf("file dependencies = %d, want 1", len(g.FileDependencies))
	}
	if g.GeneratedAt.IsZero() {
		t.Error("generatedAt not set")
	}
}

func TestWriteJSONRoundTrip(t *testing.T) {
	x, repo := seedGraph(t)
	g, err := x.Build(context.Background(), repo)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	var buf bytes.Buffer
	if err := x.Write(&buf, g, FormatJSON, false); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	var decoded Graph
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if len(decoded.Symbols) != len(g.Symbols) {
		t.Errorf("round-tripped symbols = %d, want %d", len(decoded.Symbols), len(g.Symbols))
	}
}

func TestWriteYAML(t *testing.T) {
	x, repo := seedGraph(t)
	g, err := x.Build(context.Background(), repo)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	var buf bytes.Buffer
	if err := x.Write(&buf, g, FormatYAML, false); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	var decoded Graph
	if err := yaml.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid YAML: %v", err)
	}
	if decoded.Repository.Name != "proj" {
		t.Errorf("round-tripped repository name = %q", decoded.Repository.Name)
	}
}

func TestWriteCompressed(t *testing.T) {
	x, repo := seedGraph(t)
	g, err := x.Build(context.Background(), repo)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	var buf bytes.Buffer
	if err := x.Write(&buf, g, FormatJSON, true); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	r, err := zstd.NewReader(&buf)
	if err != nil {
		t.Fatalf("zstd.NewReader failed: %v", err)
	}
	defer r.Close()

	var decoded Graph
	if err := json.NewDecoder(r).Decode(&decoded); err != nil {
		t.Fatalf("decompressed stream is not valid JSON: %v", err)
	}
	if len(decoded.Files) != 2 {
		t.Errorf("decompressed files = %d, want 2", len(decoded.Files))
	}
}
