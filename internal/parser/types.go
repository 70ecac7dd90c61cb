// Package parser defines the boundary between per-language parsers and the
// graph engine: the record types parsers produce, and a reference
// tree-sitter implementation for JavaScript/TypeScript.
package parser

import (
	"context"
	"time"
)

// ParsedSymbol is a symbol record produced by a parser for one file
type ParsedSymbol struct {
	Name          string
	QualifiedName string
	Kind          string
	StartLine     int
	EndLine       int
	IsExported    bool
	Signature     string
	Description   string
}

// ParsedDependency is a dependency record produced by a parser. From indexes
// into the owning ParsedFile's Symbols slice; Target is a name or qualified
// name that stays unresolved until the resolution pass binds it.
type ParsedDependency struct {
	From             int
	Target           string
	Kind             string
	LineNumber       int
	CallerObject     string
	ParameterContext string
	ParameterTypes   string
}

// ParsedFile is everything a parser extracted from one source file
type ParsedFile struct {
	Path         string // repo-relative
	Language     string
	Size         int64
	ContentHash  string
	ModifiedAt   time.Time
	IsTest       bool
	IsGenerated  bool
	Symbols      []ParsedSymbol
	Dependencies []ParsedDependency
}

// Parser turns a source file into symbol and dependency records
type Parser interface {
	// Supports reports whether the parser handles the file at path
	Supports(path string) bool
	// ParseFile reads and parses the file at absPath, recording relPath as
	// the repo-relative path in the result
	ParseFile(ctx context.Context, absPath, relPath string) (*ParsedFile, error)
}
