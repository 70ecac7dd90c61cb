package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store contents and cache effectiveness",
	Args:  cobra.NoArgs,
	Run:   runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Emit the report as JSON")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	repoRoot := mustRepoRoot()
	cfg := mustConfig(repoRoot)
	logger := newLogger(cfg)

	eng := mustEngine(cfg, logger)
	defer eng.Close()

	report, err := eng.Status()
	if err != nil {
		fail("Error collecting status: %v", err)
	}

	if statusJSON {
		printJSON(report)
		return
	}

	if report.Repository == nil {
		fmt.Println("Repository has not been analyzed yet, run `codegraph analyze` first.")
		return
	}

	fmt.Printf("Repository: %s (%s)\n", report.Repository.Name, report.Repository.Path)
	if report.Repository.LastIndexedAt.IsZero() {
		fmt.Println("Last indexed: never")
	} else {
		fmt.Printf("Last indexed: %s\n", report.Repository.LastIndexedAt.Format(time.RFC3339))
	}

	if s := report.Stats; s != nil {
		fmt.Printf("Files:        %d\n", s.Files)
		fmt.Printf("Symbols:      %d\n", s.Symbols)
		fmt.Printf("Edges:        %d (%d unresolved)\n", s.Dependencies, s.Unresolved)
		fmt.Printf("File edges:   %d\n", s.FileDependencies)
	}

	c := report.Cache
	fmt.Printf("Cache:        %d entries, %d bytes, %d hits / %d misses, %d evictions\n",
		c.Entries, c.SizeBytes, c.Hits, c.Misses, c.Evictions)
}
