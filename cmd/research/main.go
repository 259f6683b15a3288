// Package main provides the research command line tool. It runs the pipeline
// in-process against the configured artifact store, without Temporal.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/helixir/deep-research-service/internal/config"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "research",
	Short: "Plan, search and write deep research reports",
	Long: "research turns a topic into a research plan, runs the planned web searches,\n" +
		"writes a report per category and a final report. Sessions are persisted and\n" +
		"can be resumed by research ID.",
	SilenceUsage: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newShowCmd())
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// cliLogging moves stdout logging to stderr so that stdout carries only the
// command's output.
func cliLogging(cfg *config.Config) *config.Config {
	if cfg.Logging.Output == "" || cfg.Logging.Output == "stdout" {
		cfg.Logging.Output = "stderr"
	}
	return cfg
}
