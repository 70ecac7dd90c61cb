package parser

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"codegraph/internal/storage"
)

// languageByExtension maps file extensions to language identifiers
var languageByExtension = map[string]string{
	".js":  "javascript",
	".jsx": "javascript",
	".mjs": "javascript",
	".ts":  "typescript",
	".tsx": "tsx",
}

// LanguageForPath returns the language identifier for a path, or ""
func LanguageForPath(path string) string {
	return languageByExtension[strings.ToLower(filepath.Ext(path))]
}

// TreeSitterParser extracts symbols and dependency records from
// JavaScript/TypeScript sources. Safe for concurrent use: each parse
// builds its own sitter.Parser, since one parser instance must never
// be shared across goroutines.
type TreeSitterParser struct{}

// NewTreeSitterParser creates a parser for JS/TS sources
func NewTreeSitterParser() *TreeSitterParser {
	return &TreeSitterParser{}
}

// Supports reports whether path has a supported extension
func (p *TreeSitterParser) Supports(path string) bool {
	return LanguageForPath(path) != ""
}

func grammarFor(language string) (*sitter.Language, error) {
	switch language {
	case "javascript":
		return javascript.GetLanguage(), nil
	case "typescript":
		return typescript.GetLanguage(), nil
	case "tsx":
		return tsx.GetLanguage(), nil
	default:
		return nil, fmt.Errorf("unsupported language: %s", language)
	}
}

// ParseFile reads and parses a single source file
func (p *TreeSitterParser) ParseFile(ctx context.Context, absPath, relPath string) (*ParsedFile, error) {
	source, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", relPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", relPath, err)
	}

	pf, err := p.ParseSource(ctx, relPath, source)
	if err != nil {
		return nil, err
	}

	pf.Size = info.Size()
	pf.ModifiedAt = info.ModTime()
	return pf, nil
}

// ParseSource parses source bytes for relPath
func (p *TreeSitterParser) ParseSource(ctx context.Context, relPath string, source []byte) (*ParsedFile, error) {
	language := LanguageForPath(relPath)
	grammar, err := grammarFor(language)
	if err != nil {
		return nil, err
	}

	ps := sitter.NewParser()
	ps.SetLanguage(grammar)
	tree, err := ps.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", relPath, err)
	}
	root := tree.RootNode()

	pf := &ParsedFile{
		Path:        relPath,
		Language:    language,
		ContentHash: fmt.Sprintf("%x", sha256.Sum256(source)),
		IsTest:      isTestPath(relPath),
		IsGenerated: isGeneratedSource(source),
	}

	ext := newExtraction(pf, relPath, source)
	ext.collectSymbols(root, "")
	ext.collectDependencies(root)
	return pf, nil
}

// isTestPath recognizes the common JS/TS test file conventions
func isTestPath(path string) bool {
	base := filepath.Base(path)
	return strings.Contains(base, ".test.") || strings.Contains(base, ".spec.") ||
		strings.Contains(filepath.ToSlash(path), "/__tests__/")
}

// isGeneratedSource checks the first bytes for a generated-code marker
func isGeneratedSource(source []byte) bool {
	head := source
	if len(head) > 512 {
		head = head[:512]
	}
	return strings.Contains(string(head), "@generated") ||
		strings.Contains(string(head), "Code generated")
}

// extraction holds per-file extraction state
type extraction struct {
	pf        *ParsedFile
	source    []byte
	qualifier string // path without extension, prefix of every qualified name

	// Import bindings seen so far in document order. named maps a local
	// identifier to its fully qualified target; namespaces maps a local
	// namespace alias to the imported module's qualifier.
	named      map[string]string
	namespaces map[string]string
}

func newExtraction(pf *ParsedFile, relPath string, source []byte) *extraction {
	qualifier := filepath.ToSlash(strings.TrimSuffix(relPath, filepath.Ext(relPath)))
	return &extraction{
		pf:         pf,
		source:     source,
		qualifier:  qualifier,
		named:      make(map[string]string),
		namespaces: make(map[string]string),
	}
}

// moduleQualifier maps an import specifier to the qualified-name prefix its
// exports carry. Relative specifiers resolve against the importing file's
// directory; bare package names stay as-is and resolve to nothing local.
func (e *extraction) moduleQualifier(spec string) string {
	if strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../") {
		return path.Join(path.Dir(e.qualifier), spec)
	}
	return spec
}

func (e *extraction) text(n *sitter.Node) string {
	return string(e.source[n.StartByte():n.EndByte()])
}

func (e *extraction) addSymbol(node *sitter.Node, name, kind, container string) int {
	qname := e.qualifier + "." + name
	if container != "" {
		qname = e.qualifier + "." + container + "." + name
	}

	e.pf.Symbols = append(e.pf.Symbols, ParsedSymbol{
		Name:          name,
		QualifiedName: qname,
		Kind:          kind,
		StartLine:     int(node.StartPoint().Row) + 1,
		EndLine:       int(node.EndPoint().Row) + 1,
		IsExported:    isExportedNode(node),
		Signature:     firstLine(e.text(node)),
	})
	return len(e.pf.Symbols) - 1
}

// collectSymbols walks the AST gathering declarations. container is the
// enclosing class name for methods and properties.
func (e *extraction) collectSymbols(node *sitter.Node, container string) {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}

		switch child.Type() {
		case "function_declaration", "generator_function_declaration":
			if name := fieldText(e, child, "name"); name != "" {
				e.addSymbol(child, name, storage.SymbolKindFunction, "")
			}

		case "class_declaration":
			if name := fieldText(e, child, "name"); name != "" {
				e.addSymbol(child, name, storage.SymbolKindClass, "")
				if body := child.ChildByFieldName("body"); body != nil {
					e.collectSymbols(body, name)
				}
				continue
			}

		case "interface_declaration":
			if name := fieldText(e, child, "name"); name != "" {
				e.addSymbol(child, name, storage.SymbolKindInterface, "")
			}

		case "method_definition":
			if name := fieldText(e, child, "name"); name != "" && container != "" {
				e.addSymbol(child, name, storage.SymbolKindMethod, container)
			}

		case "public_field_definition":
			if name := fieldText(e, child, "name"); name != "" && container != "" {
				e.addSymbol(child, name, storage.SymbolKindProperty, container)
			}

		case "lexical_declaration", "variable_declaration":
			e.collectArrowFunctions(child)

		case "export_statement", "program":
			e.collectSymbols(child, container)
		}
	}
}

// collectArrowFunctions extracts `const f = () => ...` style declarations
func (e *extraction) collectArrowFunctions(decl *sitter.Node) {
	for i := 0; i < int(decl.ChildCount()); i++ {
		child := decl.Child(i)
		if child == nil || child.Type() != "variable_declarator" {
			continue
		}

		value := child.ChildByFieldName("value")
		if value == nil {
			continue
		}
		if value.Type() != "arrow_function" && value.Type() != "function_expression" {
			continue
		}

		if name := fieldText(e, child, "name"); name != "" {
			e.addSymbol(child, name, storage.SymbolKindFunction, "")
		}
	}
}

// collectDependencies gathers call and import edges, attributing each to the
// innermost symbol whose line range contains it.
func (e *extraction) collectDependencies(root *sitter.Node) {
	var walk func(*sitter.Node)
	walk = func(node *sitter.Node) {
		switch node.Type() {
		case "call_expression":
			e.addCall(node)
		case "import_statement":
			e.addImport(node)
		case "new_expression":
			e.addNew(node)
		}

		for i := 0; i < int(node.ChildCount()); i++ {
			if child := node.Child(i); child != nil {
				walk(child)
			}
		}
	}
	walk(root)
}

func (e *extraction) addCall(node *sitter.Node) {
	fn := node.ChildByFieldName("function")
	if fn == nil {
		return
	}

	line := int(node.StartPoint().Row) + 1
	from := e.enclosingSymbol(line)
	if from < 0 {
		return
	}

	var target, caller string
	switch fn.Type() {
	case "identifier":
		target = e.text(fn)
		if qualified, ok := e.named[target]; ok {
			target = qualified
		}
	case "member_expression":
		obj := fn.ChildByFieldName("object")
		prop := fn.ChildByFieldName("property")
		if obj == nil || prop == nil {
			return
		}
		// Only simple receivers produce a usable qualified target
		if obj.Type() != "identifier" && obj.Type() != "this" {
			return
		}
		caller = e.text(obj)
		if prefix, ok := e.namespaces[caller]; ok {
			target = prefix + "." + e.text(prop)
		} else {
			target = caller + "." + e.text(prop)
		}
	default:
		return
	}

	if target == "" || e.pf.Symbols[from].Name == target {
		// Recursive self-calls carry no impact information
		return
	}

	e.pf.Dependencies = append(e.pf.Dependencies, ParsedDependency{
		From:             from,
		Target:           target,
		Kind:             storage.DepKindCalls,
		LineNumber:       line,
		CallerObject:     caller,
		ParameterContext: e.argumentPattern(node),
	})
}

func (e *extraction) addNew(node *sitter.Node) {
	ctor := node.ChildByFieldName("constructor")
	if ctor == nil || ctor.Type() != "identifier" {
		return
	}

	line := int(node.StartPoint().Row) + 1
	from := e.enclosingSymbol(line)
	if from < 0 {
		return
	}

	target := e.text(ctor)
	if qualified, ok := e.named[target]; ok {
		target = qualified
	}

	e.pf.Dependencies = append(e.pf.Dependencies, ParsedDependency{
		From:             from,
		Target:           target,
		Kind:             storage.DepKindReferences,
		LineNumber:       line,
		ParameterContext: e.argumentPattern(node),
	})
}

func (e *extraction) addImport(node *sitter.Node) {
	src := node.ChildByFieldName("source")
	if src == nil {
		return
	}

	target := strings.Trim(e.text(src), `"'`)
	if target == "" {
		return
	}
	e.recordImportBindings(node, e.moduleQualifier(target))

	line := int(node.StartPoint().Row) + 1
	from := e.enclosingSymbol(line)
	if from < 0 {
		// Imports usually precede every declaration; attribute them to the
		// first symbol so the edge has an owner.
		if len(e.pf.Symbols) == 0 {
			return
		}
		from = 0
	}

	e.pf.Dependencies = append(e.pf.Dependencies, ParsedDependency{
		From:       from,
		Target:     target,
		Kind:       storage.DepKindImports,
		LineNumber: line,
	})
}

// recordImportBindings registers the local names an import statement brings
// into scope, so later call sites can be qualified. Handles default imports,
// namespace imports, and named imports with aliases.
func (e *extraction) recordImportBindings(stmt *sitter.Node, qualifier string) {
	for i := 0; i < int(stmt.ChildCount()); i++ {
		clause := stmt.Child(i)
		if clause == nil || clause.Type() != "import_clause" {
			continue
		}

		for j := 0; j < int(clause.ChildCount()); j++ {
			child := clause.Child(j)
			if child == nil {
				continue
			}

			switch child.Type() {
			case "identifier":
				// Default import: the local name stands for the module's
				// default export
				e.named[e.text(child)] = qualifier + "." + e.text(child)

			case "namespace_import":
				for k := 0; k < int(child.ChildCount()); k++ {
					if alias := child.Child(k); alias != nil && alias.Type() == "identifier" {
						e.namespaces[e.text(alias)] = qualifier
					}
				}

			case "named_imports":
				for k := 0; k < int(child.ChildCount()); k++ {
					spec := child.Child(k)
					if spec == nil || spec.Type() != "import_specifier" {
						continue
					}
					name := fieldText(e, spec, "name")
					if name == "" {
						continue
					}
					local := fieldText(e, spec, "alias")
					if local == "" {
						local = name
					}
					e.named[local] = qualifier + "." + name
				}
			}
		}
	}
}

// enclosingSymbol returns the index of the innermost symbol containing line,
// or -1
func (e *extraction) enclosingSymbol(line int) int {
	best := -1
	bestSpan := 1 << 30
	for i, s := range e.pf.Symbols {
		if s.StartLine <= line && line <= s.EndLine {
			span := s.EndLine - s.StartLine
			if span < bestSpan {
				best = i
				bestSpan = span
			}
		}
	}
	return best
}

// argumentPattern returns the literal argument text of a call site,
// truncated; this is the grouping key for "group calls by how they're
// invoked" queries.
func (e *extraction) argumentPattern(node *sitter.Node) string {
	args := node.ChildByFieldName("arguments")
	if args == nil {
		return ""
	}
	pattern := strings.TrimSpace(e.text(args))
	if len(pattern) > 200 {
		pattern = pattern[:200]
	}
	return pattern
}

func fieldText(e *extraction, node *sitter.Node, field string) string {
	n := node.ChildByFieldName(field)
	if n == nil {
		return ""
	}
	return e.text(n)
}

// isExportedNode checks whether a declaration sits inside an export statement
func isExportedNode(node *sitter.Node) bool {
	for p := node.Parent(); p != nil; p = p.Parent() {
		switch p.Type() {
		case "export_statement":
			return true
		case "program":
			return false
		}
	}
	return false
}

// firstLine truncates a declaration to its signature line
func firstLine(text string) string {
	for i, r := range text {
		if r == '\n' || r == '{' {
			return strings.TrimSpace(text[:i])
		}
	}
	if len(text) > 200 {
		return strings.TrimSpace(text[:200])
	}
	return strings.TrimSpace(text)
}
