package storage

import "time"

// Symbol kinds recognized by the store. Parsers may emit others; the store
// does not validate kinds beyond non-emptiness.
const (
	SymbolKindFunction  = "function"
	SymbolKindClass     = "class"
	SymbolKindMethod    = "method"
	SymbolKindProperty  = "property"
	SymbolKindInterface = "interface"
	SymbolKindTrait     = "trait"
	SymbolKindComponent = "component"
	SymbolKindVariable  = "variable"
)

// Dependency kinds
const (
	DepKindCalls      = "calls"
	DepKindReferences = "references"
	DepKindImports    = "imports"
)

// ParentKinds are the symbol kinds that can structurally contain children
var ParentKinds = []string{SymbolKindClass, SymbolKindInterface, SymbolKindTrait, SymbolKindComponent}

// ChildKinds are the symbol kinds assignable to a containing parent
var ChildKinds = []string{SymbolKindMethod, SymbolKindProperty}

// Repository is a tracked codebase root
type Repository struct {
	ID            int64
	Name          string
	Path          string
	LastIndexedAt time.Time // zero means never indexed
}

// File is a source file within a repository
type File struct {
	ID           int64
	RepositoryID int64
	Path         string // unique within the repository
	Language     string
	Size         int64
	ContentHash  string
	ModifiedAt   time.Time
	IsGenerated  bool
	IsTest       bool
}

// Symbol is a named code entity owned by exactly one file.
// Physical identity is (FileID, Name, Kind, StartLine).
type Symbol struct {
	ID             int64
	FileID         int64
	Name           string
	QualifiedName  string
	ParentSymbolID int64 // 0 means no parent
	Kind           string
	StartLine      int
	EndLine        int
	IsExported     bool
	Signature      string
	Description    string
}

// PhysicalKey identifies a symbol within its file
type PhysicalKey struct {
	Name      string
	Kind      string
	StartLine int
}

// Key returns the symbol's physical key
func (s *Symbol) Key() PhysicalKey {
	return PhysicalKey{Name: s.Name, Kind: s.Kind, StartLine: s.StartLine}
}

// Dependency is a directed edge between two symbols. ToSymbolID of 0 with a
// non-empty QualifiedTarget marks the edge as unresolved.
type Dependency struct {
	ID               int64
	FromSymbolID     int64
	ToSymbolID       int64 // 0 until resolved
	Kind             string
	LineNumber       int
	QualifiedTarget  string
	CallerObject     string
	ResolvedClass    string
	QualifiedContext string
	ParameterContext string
	ParameterTypes   string
	CallInstanceID   string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Resolved reports whether the edge is bound to a concrete target symbol
func (d *Dependency) Resolved() bool {
	return d.ToSymbolID != 0
}

// EdgeKey is the uniqueness tuple for resolved dependency edges
type EdgeKey struct {
	FromSymbolID int64
	ToSymbolID   int64
	Kind         string
	LineNumber   int
}

// Key returns the dependency's uniqueness tuple
func (d *Dependency) Key() EdgeKey {
	return EdgeKey{
		FromSymbolID: d.FromSymbolID,
		ToSymbolID:   d.ToSymbolID,
		Kind:         d.Kind,
		LineNumber:   d.LineNumber,
	}
}

// FileDependency is a file-level edge derived from symbol-level edges and
// imports. ToFileID of 0 marks an edge to an external target.
type FileDependency struct {
	ID             int64
	FromFileID     int64
	ToFileID       int64
	Kind           string
	ExternalTarget string
}

// GraphEdge is a dependency annotated with both endpoints, as returned by
// traversal queries.
type GraphEdge struct {
	Dependency
	FromSymbolName string
	FromFileID     int64
	FromFilePath   string
	ToSymbolName   string
	ToFileID       int64
	ToFilePath     string
}
