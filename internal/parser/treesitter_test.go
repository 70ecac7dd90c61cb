package parser

import (
	"context"
	"sync"
	"testing"

	"codegraph/internal/storage"
)

func parseTS(t *testing.T, path, source string) *ParsedFile {
	t.Helper()
	p := NewTreeSitterParser()
	pf, err := p.ParseSource(context.Background(), path, []byte(source))
	if err != nil {
		t.Fatalf("ParseSource failed: %v", err)
	}
	return pf
}

func symbolByName(pf *ParsedFile, name string) *ParsedSymbol {
	for i := range pf.Symbols {
		if pf.Symbols[i].Name == name {
			return &pf.Symbols[i]
		}
	}
	return nil
}

func TestSupports(t *testing.T) {
	p := NewTreeSitterParser()
	tests := []struct {
		path string
		want bool
	}{
		{"src/a.ts", true},
		{"src/a.tsx", true},
		{"src/a.js", true},
		{"src/a.mjs", true},
		{"src/A.TS", true},
		{"src/a.go", false},
		{"README.md", false},
	}
	for _, tt := range tests {
		if got := p.Supports(tt.path); got != tt.want {
			t.Errorf("Supports(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestParseFunctionDeclarations(t *testing.T) {
	pf := parseTS(t, "src/util.ts", `
export function visible(x: number): number {
  return x * 2
}

function hidden() {
  return 1
}

const arrow = () => 42
`)

	visible := symbolByName(pf, "visible")
	if visible == nil {
		t.Fatal("exported function not extracted")
	}
	if visible.Kind != storage.SymbolKindFunction {
		t.Errorf("kind = %q, want function", visible.Kind)
	}
	if visible.QualifiedName != "src/util.visible" {
		t.Errorf("qualified name = %q", visible.QualifiedName)
	}
	if !visible.IsExported {
		t.Error("export not detected")
	}

	hidden := symbolByName(pf, "hidden")
	if hidden == nil {
		t.Fatal("unexported function not extracted")
	}
	if hidden.IsExported {
		t.Error("unexported function marked exported")
	}

	if symbolByName(pf, "arrow") == nil {
		t.Error("arrow function not extracted")
	}
}

func TestParseClassWithMembers(t *testing.T) {
	pf := parseTS(t, "src/widget.ts", `
export class Widget {
  render() {
    return null
  }
}
`)

	widget := symbolByName(pf, "Widget")
	if widget == nil {
		t.Fatal("class not extracted")
	}
	if widget.Kind != storage.SymbolKindClass {
		t.Errorf("kind = %q, want class", widget.Kind)
	}

	render := symbolByName(pf, "render")
	if render == nil {
		t.Fatal("method not extracted")
	}
	if render.Kind != storage.SymbolKindMethod {
		t.Errorf("kind = %q, want method", render.Kind)
	}
	if render.QualifiedName != "src/widget.Widget.render" {
		t.Errorf("qualified name = %q, want container in it", render.QualifiedName)
	}
	if render.StartLine <= widget.StartLine {
		t.Errorf("method starts at %d, before class at %d", render.StartLine, widget.StartLine)
	}
}

func TestParseCallsAndArguments(t *testing.T) {
	pf := parseTS(t, "src/m.ts", `
function helper(x) {
  return x
}

function main() {
  return helper(41)
}
`)

	var call *ParsedDependency
	for i := range pf.Dependencies {
		if pf.Dependencies[i].Kind == storage.DepKindCalls {
			call = &pf.Dependencies[i]
		}
	}
	if call == nil {
		t.Fatal("call edge not extracted")
	}
	if call.Target != "helper" {
		t.Errorf("target = %q, want bare local name", call.Target)
	}
	if pf.Symbols[call.From].Name != "main" {
		t.Errorf("call attributed to %q, want main", pf.Symbols[call.From].Name)
	}
	if call.ParameterContext != "(41)" {
		t.Errorf("parameter context = %q, want (41)", call.ParameterContext)
	}
}

func TestParseQualifiesImportedCalls(t *testing.T) {
	pf := parseTS(t, "src/app/main.ts", `
import { helper as h } from '../util/math'
import * as api from './client'
import dflt from 'express'

export function run() {
  h(1)
  api.send('x')
  dflt()
}
`)

	targets := make(map[string]string)
	for _, d := range pf.Dependencies {
		if d.Kind == storage.DepKindCalls {
			targets[d.Target] = d.Kind
		}
	}

	for _, want := range []string{
		"src/util/math.helper",
		"src/app/client.send",
		"express.dflt",
	} {
		if _, ok := targets[want]; !ok {
			t.Errorf("missing qualified call target %q (got %v)", want, targets)
		}
	}
}

func TestParseImportEdges(t *testing.T) {
	pf := parseTS(t, "src/a.ts", `
import { helper } from './b'
import lodash from 'lodash'

export function main() {
  return helper(1)
}
`)

	var imports []ParsedDependency
	for _, d := range pf.Dependencies {
		if d.Kind == storage.DepKindImports {
			imports = append(imports, d)
		}
	}
	if len(imports) != 2 {
		t.Fatalf("import edges = %d, want 2", len(imports))
	}
	if imports[0].Target != "./b" {
		t.Errorf("import target = %q, want raw specifier", imports[0].Target)
	}

	// Imports precede all declarations; they attach to the first symbol
	for _, imp := range imports {
		if pf.Symbols[imp.From].Name != "main" {
			t.Errorf("import attributed to %q", pf.Symbols[imp.From].Name)
		}
	}
}

func TestParseSkipsRecursiveSelfCalls(t *testing.T) {
	pf := parseTS(t, "src/r.ts", `
function recurse(n) {
  if (n <= 0) return 0
  return recurse(n - 1)
}
`)

	for _, d := range pf.Dependencies {
		if d.Kind == storage.DepKindCalls && d.Target == "recurse" {
			t.Errorf("self-call emitted: %+v", d)
		}
	}
}

func TestParseDetectsTestAndGeneratedFiles(t *testing.T) {
	pf := parseTS(t, "src/a.test.ts", `function t() {}`)
	if !pf.IsTest {
		t.Error("test path not flagged")
	}

	pf = parseTS(t, "src/gen.ts", "// Code generated by protoc. DO NOT EDIT.\nfunction g() {}")
	if !pf.IsGenerated {
		t.Error("generated marker not flagged")
	}

	pf = parseTS(t, "src/plain.ts", `function p() {}`)
	if pf.IsTest || pf.IsGenerated {
		t.Error("plain file misflagged")
	}
	if pf.ContentHash == "" {
		t.Error("content hash missing")
	}
	if pf.Language != "typescript" {
		t.Errorf("language = %q", pf.Language)
	}
}

func TestParseSourceConcurrent(t *testing.T) {
	p := NewTreeSitterParser()
	sources := []struct {
		path   string
		source string
	}{
		{"src/a.ts", "export function fa(x: number) { return x + 1 }"},
		{"src/b.js", "function fb(x) { return fa(x) }"},
		{"src/c.tsx", "export function Fc() { return null }"},
	}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				s := sources[i%len(sources)]
				if _, err := p.ParseSource(context.Background(), s.path, []byte(s.source)); err != nil {
					errs <- err
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent ParseSource failed: %v", err)
	}
}

func TestParseNewExpressionEmitsReference(t *testing.T) {
	pf := parseTS(t, "src/n.ts", `
class Thing {}

function build() {
  return new Thing()
}
`)

	found := false
	for _, d := range pf.Dependencies {
		if d.Kind == storage.DepKindReferences && d.Target == "Thing" {
			found = true
		}
	}
	if !found {
		t.Error("constructor reference not extracted")
	}
}
