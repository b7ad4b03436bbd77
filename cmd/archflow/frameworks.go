package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"archflow/internal/flow"
)

var frameworksFormat string

var frameworksCmd = &cobra.Command{
	Use:   "frameworks [dir]",
	Short: "Show the framework pattern table",
	Long: `Show the callee patterns each framework tag detects, including custom
patterns from .archflow/patterns.toml or the configured patternsFile.
Frameworks marked active are used by 'archflow flow' by default.

Use --format=toml to print the table in pattern file format as a starting
point for custom patterns.`,
	Args: cobra.MaximumNArgs(1),
	Run:  runFrameworks,
}

func init() {
	frameworksCmd.Flags().StringVar(&frameworksFormat, "format", "human", "Output format (json, yaml, human, toml)")
	rootCmd.AddCommand(frameworksCmd)
}

// FrameworksResponse lists the pattern table.
type FrameworksResponse struct {
	Frameworks []FrameworkCLI `json:"frameworks" yaml:"frameworks"`
}

// FrameworkCLI is one framework tag and its patterns.
type FrameworkCLI struct {
	Tag      string         `json:"tag" yaml:"tag"`
	Active   bool           `json:"active" yaml:"active"`
	Patterns []flow.Pattern `json:"patterns" yaml:"patterns"`
}

func runFrameworks(cmd *cobra.Command, args []string) {
	s := mustSession(dirArg(args))
	defer s.Close()

	table, err := s.patterns()
	if err != nil {
		fail(err)
	}

	if frameworksFormat == "toml" {
		if err := table.WriteTOML(os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error formatting output: %v\n", err)
			os.Exit(1)
		}
		return
	}

	active := s.flowOptions(table, nil, nil).Frameworks
	printResponse(newFrameworksResponse(table, active), frameworksFormat)
}

func newFrameworksResponse(table *flow.PatternTable, active []string) *FrameworksResponse {
	on := make(map[string]bool, len(active))
	for _, tag := range active {
		on[tag] = true
	}
	resp := &FrameworksResponse{Frameworks: make([]FrameworkCLI, 0, len(table.Frameworks))}
	for _, fw := range table.Frameworks {
		patterns := fw.Patterns
		if patterns == nil {
			patterns = []flow.Pattern{}
		}
		resp.Frameworks = append(resp.Frameworks, FrameworkCLI{Tag: fw.Tag, Active: on[fw.Tag], Patterns: patterns})
	}
	return resp
}
