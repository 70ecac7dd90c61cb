package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"codegraph/internal/traverse"
)

var (
	callersDepth int
	callersLimit int
	callersKinds []string
	callersGroup bool
	callersJSON  bool
)

var callersCmd = &cobra.Command{
	Use:   "callers <symbol>",
	Short: "Find the transitive callers of a symbol",
	Long: `Callers walks dependency edges backwards from a symbol: who calls or
references it, directly and transitively up to the depth bound. The symbol
argument is a name or a qualified name (file path without extension, a dot,
then the symbol name).

Examples:
  codegraph callers handleRequest
  codegraph callers src/api/server.handleRequest --depth 3
  codegraph callers handleRequest --group`,
	Args: cobra.ExactArgs(1),
	Run:  runCallers,
}

func init() {
	callersCmd.Flags().IntVar(&callersDepth, "depth", 0, "Maximum traversal depth (default: configured limit)")
	callersCmd.Flags().IntVar(&callersLimit, "limit", 0, "Maximum number of edges returned")
	callersCmd.Flags().StringSliceVar(&callersKinds, "kind", nil, "Edge kinds to follow (calls, references, imports)")
	callersCmd.Flags().BoolVar(&callersGroup, "group", false, "Group direct callers by argument shape")
	callersCmd.Flags().BoolVar(&callersJSON, "json", false, "Emit results as JSON")
	rootCmd.AddCommand(callersCmd)
}

func runCallers(cmd *cobra.Command, args []string) {
	repoRoot := mustRepoRoot()
	cfg := mustConfig(repoRoot)
	logger := newLogger(cfg)

	eng := mustEngine(cfg, logger)
	defer eng.Close()

	repo, seed := mustSeed(eng, args[0])

	ctx := newContext()
	if callersGroup {
		groups, err := eng.GroupCallers(ctx, repo.ID, seed.ID)
		if err != nil {
			fail("Error grouping callers: %v", err)
		}
		if callersJSON {
			printJSON(groups)
			return
		}
		for _, g := range groups {
			ctxLabel := g.ParameterContext
			if ctxLabel == "" {
				ctxLabel = "(no arguments recorded)"
			}
			fmt.Printf("%d caller(s) with %s\n", g.Count, ctxLabel)
			for _, e := range g.Callers {
				fmt.Printf("  %s (%s:%d)\n", e.FromSymbolName, e.FromFilePath, e.LineNumber)
			}
		}
		return
	}

	result, err := eng.Callers(ctx, traverse.Request{
		RepoID:   repo.ID,
		SymbolID: seed.ID,
		Kinds:    callersKinds,
		MaxDepth: callersDepth,
		Limit:    callersLimit,
	})
	if err != nil {
		fail("Error traversing callers: %v", err)
	}

	if callersJSON {
		printJSON(result)
		return
	}
	printTraversal(result, "callers")
}
