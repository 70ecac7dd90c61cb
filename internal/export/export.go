// Package export serializes a repository's stored graph to JSON or YAML,
// optionally zstd-compressed, for consumption by external tooling.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zstd"
	"gopkg.in/yaml.v3"

	cgerrors "codegraph/internal/errors"
	"codegraph/internal/logging"
	"codegraph/internal/storage"
)

// Format selects the export serialization
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat validates a format string from the CLI
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatJSON, FormatYAML:
		return Format(s), nil
	}
	return "", cgerrors.New(cgerrors.Validation,
		fmt.Sprintf("unknown export format %q, expected json or yaml", s), nil)
}

// Graph is the exported document. Field tags pin the wire names for both
// serializations so the schema stays stable across refactors.
type Graph struct {
	Repository       RepositoryNode `json:"repository" yaml:"repository"`
	Files            []FileNode     `json:"files" yaml:"files"`
	Symbols          []SymbolNode   `json:"symbols" yaml:"symbols"`
	Dependencies     []EdgeNode     `json:"dependencies" yaml:"dependencies"`
	FileDependencies []FileEdgeNode `json:"fileDependencies" yaml:"fileDependencies"`
	GeneratedAt      time.Time      `json:"generatedAt" yaml:"generatedAt"`
}

type RepositoryNode struct {
	ID            int64  `json:"id" yaml:"id"`
	Name          string `json:"name" yaml:"name"`
	Path          string `json:"path" yaml:"path"`
	LastIndexedAt string `json:"lastIndexedAt,omitempty" yaml:"lastIndexedAt,omitempty"`
}

type FileNode struct {
	ID          int64  `json:"id" yaml:"id"`
	Path        string `json:"path" yaml:"path"`
	Language    string `json:"language,omitempty" yaml:"language,omitempty"`
	ContentHash string `json:"contentHash,omitempty" yaml:"contentHash,omitempty"`
	IsTest      bool   `json:"isTest,omitempty" yaml:"isTest,omitempty"`
	IsGenerated bool   `json:"isGenerated,omitempty" yaml:"isGenerated,omitempty"`
}

type SymbolNode struct {
	ID            int64  `json:"id" yaml:"id"`
	FileID        int64  `json:"fileId" yaml:"fileId"`
	Name          string `json:"name" yaml:"name"`
	QualifiedName string `json:"qualifiedName,omitempty" yaml:"qualifiedName,omitempty"`
	ParentID      int64  `json:"parentId,omitempty" yaml:"parentId,omitempty"`
	Kind          string `json:"kind" yaml:"kind"`
	StartLine     int    `json:"startLine" yaml:"startLine"`
	EndLine       int    `json:"endLine" yaml:"endLine"`
	IsExported    bool   `json:"isExported,omitempty" yaml:"isExported,omitempty"`
	Signature     string `json:"signature,omitempty" yaml:"signature,omitempty"`
}

type EdgeNode struct {
	ID               int64  `json:"id" yaml:"id"`
	FromSymbolID     int64  `json:"fromSymbolId" yaml:"fromSymbolId"`
	ToSymbolID       int64  `json:"toSymbolId,omitempty" yaml:"toSymbolId,omitempty"`
	Kind             string `json:"kind" yaml:"kind"`
	LineNumber       int    `json:"lineNumber" yaml:"lineNumber"`
	QualifiedTarget  string `json:"qualifiedTarget,omitempty" yaml:"qualifiedTarget,omitempty"`
	ParameterContext string `json:"parameterContext,omitempty" yaml:"parameterContext,omitempty"`
}

type FileEdgeNode struct {
	FromFileID     int64  `json:"fromFileId" yaml:"fromFileId"`
	ToFileID       int64  `json:"toFileId,omitempty" yaml:"toFileId,omitempty"`
	Kind           string `json:"kind" yaml:"kind"`
	ExternalTarget string `json:"externalTarget,omitempty" yaml:"externalTarget,omitempty"`
}

// Exporter reads a repository's graph out of the store
type Exporter struct {
	db     *storage.DB
	logger *logging.Logger
}

func NewExporter(db *storage.DB, logger *logging.Logger) *Exporter {
	return &Exporter{db: db, logger: logger.Named("export")}
}

// Build assembles the full export document for one repository
func (x *Exporter) Build(ctx context.Context, repo *storage.Repository) (*Graph, error) {
	g := &Graph{
		Repository: RepositoryNode{
			ID:   repo.ID,
			Name: repo.Name,
			Path: repo.Path,
		},
		GeneratedAt: time.Now().UTC(),
	}
	if !repo.LastIndexedAt.IsZero() {
		g.Repository.LastIndexedAt = repo.LastIndexedAt.UTC().Format(time.RFC3339)
	}

	files, err := x.db.ListFilesByRepository(repo.ID)
	if err != nil {
		return nil, err
	}
	g.Files = make([]FileNode, 0, len(files))
	for _, f := range files {
		g.Files = append(g.Files, FileNode{
			ID:          f.ID,
			Path:        f.Path,
			Language:    f.Language,
			ContentHash: f.ContentHash,
			IsTest:      f.IsTest,
			IsGenerated: f.IsGenerated,
		})
	}

	symbols, err := x.db.ListSymbolsByRepository(repo.ID)
	if err != nil {
		return nil, err
	}
	g.Symbols = make([]SymbolNode, 0, len(symbols))
	for _, s := range symbols {
		g.Symbols = append(g.Symbols, SymbolNode{
			ID:            s.ID,
			FileID:        s.FileID,
			Name:          s.Name,
			QualifiedName: s.QualifiedName,
			ParentID:      s.ParentSymbolID,
			Kind:          s.Kind,
			StartLine:     s.StartLine,
			EndLine:       s.EndLine,
			IsExported:    s.IsExported,
			Signature:     s.Signature,
		})
	}

	deps, err := x.db.ListDependenciesByRepository(ctx, repo.ID)
	if err != nil {
		return nil, err
	}
	g.Dependencies = make([]EdgeNode, 0, len(deps))
	for _, d := range deps {
		g.Dependencies = append(g.Dependencies, EdgeNode{
			ID:               d.ID,
			FromSymbolID:     d.FromSymbolID,
			ToSymbolID:       d.ToSymbolID,
			Kind:             d.Kind,
			LineNumber:       d.LineNumber,
			QualifiedTarget:  d.QualifiedTarget,
			ParameterContext: d.ParameterContext,
		})
	}

	fileDeps, err := x.db.ListFileDependencies(repo.ID)
	if err != nil {
		return nil, err
	}
	g.FileDependencies = make([]FileEdgeNode, 0, len(fileDeps))
	for _, fd := range fileDeps {
		g.FileDependencies = append(g.FileDependencies, FileEdgeNode{
			FromFileID:     fd.FromFileID,
			ToFileID:       fd.ToFileID,
			Kind:           fd.Kind,
			ExternalTarget: fd.ExternalTarget,
		})
	}

	x.logger.Debug("export document assembled", map[string]interface{}{
		"files":        len(g.Files),
		"symbols":      len(g.Symbols),
		"dependencies": len(g.Dependencies),
	})
	return g, nil
}

// Write serializes g to w. With compress set the stream is zstd-framed;
// readers can detect it by the standard frame magic.
func (x *Exporter) Write(w io.Writer, g *Graph, format Format, compress bool) error {
	if compress {
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return fmt.Errorf("failed to create zstd writer: %w", err)
		}
		if err := encode(zw, g, format); err != nil {
			zw.Close()
			return err
		}
		return zw.Close()
	}
	return encode(w, g, format)
}

func encode(w io.Writer, g *Graph, format Format) error {
	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(g); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(g); err != nil {
			return fmt.Errorf("failed to encode json: %w", err)
		}
		return nil
	}
}
