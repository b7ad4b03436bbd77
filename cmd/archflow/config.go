package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"archflow/internal/config"
	ferrors "archflow/internal/errors"
	"archflow/internal/paths"
)

var (
	configFormat string
	configForce  bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage archflow configuration",
	Long:  "View and manage archflow configuration stored in .archflow/config.json",
}

var configInitCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Write the default configuration",
	Args:  cobra.MaximumNArgs(1),
	Run:   runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show [dir]",
	Short: "Show current configuration",
	Long: `Display the effective configuration: defaults, then config.json, then
ARCHFLOW_* environment variables.

Examples:
  archflow config show
  archflow config show --format=json`,
	Args: cobra.MaximumNArgs(1),
	Run:  runConfigShow,
}

var configEnvCmd = &cobra.Command{
	Use:   "env",
	Short: "List supported environment variables",
	Run:   runConfigEnv,
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing config.json")
	configShowCmd.Flags().StringVar(&configFormat, "format", "human", "Output format (json, yaml, human)")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEnvCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) {
	root := dirArg(args)
	path := paths.ConfigPath(root)
	if _, err := os.Stat(path); err == nil && !configForce {
		fail(ferrors.Newf(ferrors.ConfigInvalid, "%s already exists (use --force to overwrite)", path))
	}
	if err := config.DefaultConfig().Save(root); err != nil {
		fail(err)
	}
	fmt.Printf("Wrote %s\n", path)
}

// ConfigShowResponse is the response format for config show
type ConfigShowResponse struct {
	ConfigPath   string               `json:"configPath,omitempty" yaml:"configPath,omitempty"`
	UsedDefaults bool                 `json:"usedDefaults" yaml:"usedDefaults"`
	EnvOverrides []config.EnvOverride `json:"envOverrides,omitempty" yaml:"envOverrides,omitempty"`
	Config       *config.Config       `json:"config" yaml:"config"`
}

func runConfigShow(cmd *cobra.Command, args []string) {
	result, err := config.LoadConfigWithDetails(paths.ConfigPath(dirArg(args)))
	if err != nil {
		fail(ferrors.New(ferrors.ConfigInvalid, "failed to load config", err))
	}

	resp := &ConfigShowResponse{
		ConfigPath:   result.ConfigPath,
		UsedDefaults: result.ConfigPath == "",
		EnvOverrides: result.EnvOverrides,
		Config:       redacted(result.Config),
	}
	if configFormat == string(FormatHuman) {
		fmt.Println(formatConfigHuman(resp))
		return
	}
	printResponse(resp, configFormat)
}

// redacted returns a copy of cfg with the Neo4j password masked.
func redacted(cfg *config.Config) *config.Config {
	c := *cfg
	if c.Neo4j.Password != "" {
		c.Neo4j.Password = "********"
	}
	return &c
}

func formatConfigHuman(resp *ConfigShowResponse) string {
	var b strings.Builder
	b.WriteString("archflow configuration\n")
	b.WriteString(strings.Repeat("─", 50) + "\n")
	if resp.UsedDefaults {
		b.WriteString("Source: defaults (no config file found)\n")
	} else {
		b.WriteString(fmt.Sprintf("Source: %s\n", resp.ConfigPath))
	}
	if len(resp.EnvOverrides) > 0 {
		b.WriteString("\nEnvironment overrides:\n")
		for _, ov := range resp.EnvOverrides {
			value := ov.Value
			if ov.Key == "neo4j.password" {
				value = "********"
			}
			b.WriteString(fmt.Sprintf("  %s=%s → %s\n", ov.EnvVar, value, ov.Key))
		}
	}

	cfg, defaults := resp.Config, config.DefaultConfig()
	b.WriteString("\n")
	writeSetting(&b, "version", cfg.Version, defaults.Version)
	writeSetting(&b, "frameworks", listOrAll(cfg.Frameworks), "all")
	writeSetting(&b, "protocols", listOrAll(cfg.Protocols), "all")
	writeSetting(&b, "patternsFile", cfg.PatternsFile, defaults.PatternsFile)

	b.WriteString("\nextract:\n")
	writeSetting(&b, "  ignoreDirs", strings.Join(cfg.Extract.IgnoreDirs, ","), strings.Join(defaults.Extract.IgnoreDirs, ","))
	writeSetting(&b, "  includeTests", cfg.Extract.IncludeTests, defaults.Extract.IncludeTests)

	b.WriteString("\nstorage:\n")
	writeSetting(&b, "  enabled", cfg.Storage.Enabled, defaults.Storage.Enabled)
	writeSetting(&b, "  path", cfg.Storage.Path, defaults.Storage.Path)

	b.WriteString("\nneo4j:\n")
	writeSetting(&b, "  uri", cfg.Neo4j.URI, defaults.Neo4j.URI)
	writeSetting(&b, "  user", cfg.Neo4j.User, defaults.Neo4j.User)
	writeSetting(&b, "  database", cfg.Neo4j.Database, defaults.Neo4j.Database)
	writeSetting(&b, "  batchSize", cfg.Neo4j.BatchSize, defaults.Neo4j.BatchSize)

	b.WriteString("\nlogging:\n")
	writeSetting(&b, "  level", cfg.Logging.Level, defaults.Logging.Level)
	writeSetting(&b, "  format", cfg.Logging.Format, defaults.Logging.Format)
	writeSetting(&b, "  file", cfg.Logging.File, defaults.Logging.File)
	return strings.TrimSuffix(b.String(), "\n")
}

func writeSetting(b *strings.Builder, name string, value, defaultValue interface{}) {
	modified := ""
	if fmt.Sprint(value) != fmt.Sprint(defaultValue) {
		modified = fmt.Sprintf(" (default: %v)", defaultValue)
	}
	b.WriteString(fmt.Sprintf("%s: %v%s\n", name, value, modified))
}

func listOrAll(values []string) string {
	if len(values) == 0 {
		return "all"
	}
	return strings.Join(values, ",")
}

func runConfigEnv(cmd *cobra.Command, args []string) {
	fmt.Println("Supported environment variables:")
	for _, env := range config.SupportedEnvVars() {
		marker := ""
		if _, ok := os.LookupEnv(env); ok {
			marker = " (set)"
		}
		fmt.Printf("  %s%s\n", env, marker)
	}
	fmt.Printf("  %s\n", paths.DirEnvVar)
}
