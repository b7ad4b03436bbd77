package main

import (
	"os"

	"github.com/spf13/cobra"

	"archflow/internal/paths"
	"archflow/internal/version"
)

var (
	verbosity int
	quiet     bool
	configDir string
)

var rootCmd = &cobra.Command{
	Use:   "archflow",
	Short: "archflow - entry points and call flows for Go codebases",
	Long: `archflow detects the externally reachable entry points of a Go codebase
(HTTP routes, gRPC services, CLI commands, main) and traces the calls each
handler makes, one level deep. Results can be printed, rendered as Mermaid,
stored as builds and exported to Neo4j.`,
	Version: version.Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if configDir != "" {
			_ = os.Setenv(paths.DirEnvVar, configDir)
		}
	},
}

func init() {
	rootCmd.SetVersionTemplate("archflow version {{.Version}}\n")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase log verbosity (-v info, -vv debug)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress all log output")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "",
		"State directory holding config.json and archflow.db (default: <repo>/.archflow)")
}
