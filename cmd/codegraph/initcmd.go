package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"codegraph/internal/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration to .codegraph/config.json",
	Args:  cobra.NoArgs,
	Run:   runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing configuration")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) {
	repoRoot := mustRepoRoot()
	path := filepath.Join(repoRoot, ".codegraph", "config.json")

	if !initForce {
		if _, err := os.Stat(path); err == nil {
			fail("Configuration already exists at %s (use --force to overwrite)", path)
		}
	}

	cfg := config.DefaultConfig()
	cfg.RepoRoot = repoRoot
	if err := cfg.Save(repoRoot); err != nil {
		fail("Error writing configuration: %v", err)
	}
	fmt.Printf("Wrote %s\n", path)
}
