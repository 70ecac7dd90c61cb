package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"codegraph/internal/export"
)

var (
	exportFormat   string
	exportOutput   string
	exportCompress bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the full dependency graph",
	Long: `Export serializes the stored graph (files, symbols, edges, and
file-level dependencies) for external tooling.

Examples:
  codegraph export > graph.json
  codegraph export --format yaml --output graph.yaml
  codegraph export --compress --output graph.json.zst`,
	Args: cobra.NoArgs,
	Run:  runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "json", "Export format (json, yaml)")
	exportCmd.Flags().StringVar(&exportOutput, "output", "", "Output file (default: stdout)")
	exportCmd.Flags().BoolVar(&exportCompress, "compress", false, "zstd-compress the output")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) {
	format, err := export.ParseFormat(exportFormat)
	if err != nil {
		fail("Error: %v", err)
	}

	repoRoot := mustRepoRoot()
	cfg := mustConfig(repoRoot)
	logger := newLogger(cfg)

	eng := mustEngine(cfg, logger)
	defer eng.Close()

	repo, err := eng.Repository()
	if err != nil {
		fail("Error loading repository: %v", err)
	}
	if repo == nil {
		fail("Repository has not been analyzed yet, run `codegraph analyze` first.")
	}

	exporter := export.NewExporter(eng.DB(), logger)
	graph, err := exporter.Build(newContext(), repo)
	if err != nil {
		fail("Error building export: %v", err)
	}

	out := os.Stdout
	if exportOutput != "" {
		f, err := os.Create(exportOutput)
		if err != nil {
			fail("Error creating output file: %v", err)
		}
		defer f.Close()
		out = f
	}

	if err := exporter.Write(out, graph, format, exportCompress); err != nil {
		fail("Error writing export: %v", err)
	}

	if exportOutput != "" {
		fmt.Fprintf(os.Stderr, "Exported %d symbols and %d edges to %s\n",
			len(graph.Symbols), len(graph.Dependencies), exportOutput)
	}
}
