package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var analyzeJSON bool

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Scan the repository and update the dependency graph",
	Long: `Analyze detects new, changed, and deleted files since the last run,
parses the changed set, and updates symbols, edges, and file dependencies
incrementally. The first run indexes the whole repository.

Examples:
  codegraph analyze
  codegraph analyze --repo /path/to/project --json`,
	Args: cobra.NoArgs,
	Run:  runAnalyze,
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "Emit the run summary as JSON")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) {
	repoRoot := mustRepoRoot()
	cfg := mustConfig(repoRoot)
	logger := newLogger(cfg)

	eng := mustEngine(cfg, logger)
	defer eng.Close()

	result, err := eng.Analyze(newContext())
	if err != nil {
		fail("Error analyzing repository: %v", err)
	}

	if analyzeJSON {
		printJSON(result)
		return
	}

	if result.Unchanged {
		fmt.Println("Up to date, nothing to analyze.")
		return
	}

	fmt.Printf("Analyzed %d file(s) in %s\n", result.FilesParsed, result.Duration.Round(time.Millisecond))
	if result.FilesFailed > 0 {
		fmt.Printf("  failed to parse: %d\n", result.FilesFailed)
	}
	if result.FilesDeleted > 0 {
		fmt.Printf("  removed files:   %d\n", result.FilesDeleted)
	}
	fmt.Printf("  symbols:         %d created, %d duplicates merged\n",
		result.Counts.SymbolsCreated, result.Counts.SymbolsDeduplicated)
	fmt.Printf("  edges:           %d created, %d updated\n",
		result.Counts.DependenciesCreated, result.Counts.DependenciesUpdated)
	fmt.Printf("  file edges:      %d\n", result.FileDependencies)
	if result.Resolution != nil {
		fmt.Printf("  resolution:      %s\n", result.Resolution)
	}
}
