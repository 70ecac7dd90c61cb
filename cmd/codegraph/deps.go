package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"codegraph/internal/engine"
	"codegraph/internal/storage"
	"codegraph/internal/traverse"
)

var (
	depsDepth int
	depsLimit int
	depsKinds []string
	depsJSON  bool
)

var depsCmd = &cobra.Command{
	Use:   "deps <symbol>",
	Short: "Find what a symbol depends on, transitively",
	Long: `Deps walks dependency edges forwards from a symbol: everything it
calls, references, or imports, up to the depth bound.

Examples:
  codegraph deps handleRequest
  codegraph deps src/api/server.handleRequest --depth 2 --kind calls`,
	Args: cobra.ExactArgs(1),
	Run:  runDeps,
}

func init() {
	depsCmd.Flags().IntVar(&depsDepth, "depth", 0, "Maximum traversal depth (default: configured limit)")
	depsCmd.Flags().IntVar(&depsLimit, "limit", 0, "Maximum number of edges returned")
	depsCmd.Flags().StringSliceVar(&depsKinds, "kind", nil, "Edge kinds to follow (calls, references, imports)")
	depsCmd.Flags().BoolVar(&depsJSON, "json", false, "Emit results as JSON")
	rootCmd.AddCommand(depsCmd)
}

func runDeps(cmd *cobra.Command, args []string) {
	repoRoot := mustRepoRoot()
	cfg := mustConfig(repoRoot)
	logger := newLogger(cfg)

	eng := mustEngine(cfg, logger)
	defer eng.Close()

	repo, seed := mustSeed(eng, args[0])

	result, err := eng.Dependencies(newContext(), traverse.Request{
		RepoID:   repo.ID,
		SymbolID: seed.ID,
		Kinds:    depsKinds,
		MaxDepth: depsDepth,
		Limit:    depsLimit,
	})
	if err != nil {
		fail("Error traversing dependencies: %v", err)
	}

	if depsJSON {
		printJSON(result)
		return
	}
	printTraversal(result, "dependencies")
}

// mustSeed resolves the repository and the symbol argument, failing with a
// usable message when the repository was never analyzed or the symbol is
// unknown or ambiguous.
func mustSeed(eng *engine.Engine, symbolArg string) (*storage.Repository, *storage.Symbol) {
	repo, err := eng.Repository()
	if err != nil {
		fail("Error loading repository: %v", err)
	}
	if repo == nil {
		fail("Repository has not been analyzed yet, run `codegraph analyze` first.")
	}

	seed, err := eng.LookupSymbol(repo.ID, symbolArg)
	if err != nil {
		fail("Error: %v", err)
	}
	return repo, seed
}

func printTraversal(result *traverse.Result, direction string) {
	if len(result.Edges) == 0 {
		fmt.Printf("No %s found for %s\n", direction, result.Seed.QualifiedName)
		return
	}

	fmt.Printf("%d %s of %s", len(result.Edges), direction, result.Seed.QualifiedName)
	if result.Truncated {
		fmt.Print(" (truncated)")
	}
	fmt.Println()

	for _, e := range result.Edges {
		fmt.Printf("  [%d] %s (%s:%d) --%s--> %s (%s)\n",
			e.Depth, e.FromSymbolName, e.FromFilePath, e.LineNumber,
			e.Kind, e.ToSymbolName, e.ToFilePath)
	}
}
