package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"archflow/internal/diagram"
	"archflow/internal/flow"
	"archflow/internal/storage"
	"archflow/internal/version"
)

var (
	flowModel          string
	flowFrameworks     []string
	flowProtocols      []string
	flowFormat         string
	flowSave           bool
	flowDirection      string
	flowShowConfidence bool
	flowSkipEmpty      bool
)

var flowCmd = &cobra.Command{
	Use:   "flow [dir]",
	Short: "Detect entry points and trace their handlers' calls",
	Long: `Build the flow graph of a Go codebase: every detected entry point and the
calls its handler makes, one level deep.

The structural model is extracted from source in dir (default: current
directory) unless --model names a model file (.json, .yaml, optionally .zst).

Examples:
  archflow flow
  archflow flow ./services/api --frameworks=net/http,main
  archflow flow --model=model.json.zst --protocols=http
  archflow flow --format=mermaid --show-confidence > flow.mmd
  archflow flow --save`,
	Args: cobra.MaximumNArgs(1),
	Run:  runFlow,
}

func init() {
	addGraphFlags(flowCmd)
	flowCmd.Flags().StringVar(&flowFormat, "format", "json", "Output format (json, yaml, human, mermaid)")
	flowCmd.Flags().BoolVar(&flowSave, "save", false, "Store the result in the build history")
	flowCmd.Flags().StringVar(&flowDirection, "direction", "LR", "Mermaid flowchart direction (LR, TB, RL, BT)")
	flowCmd.Flags().BoolVar(&flowShowConfidence, "show-confidence", false, "Label Mermaid edges with their confidence")
	flowCmd.Flags().BoolVar(&flowSkipEmpty, "skip-empty", false, "Leave entry points without calls out of Mermaid output")
	rootCmd.AddCommand(flowCmd)
}

// addGraphFlags registers the inputs shared by commands that build a graph.
func addGraphFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flowModel, "model", "", "Read the structural model from this file instead of extracting")
	cmd.Flags().StringSliceVar(&flowFrameworks, "frameworks", nil, "Active framework tags (default: config, else all)")
	cmd.Flags().StringSliceVar(&flowProtocols, "protocols", nil, "Keep only these protocols (http, grpc, cli)")
}

// FlowResponse is the output of `archflow flow`.
type FlowResponse struct {
	ArchflowVersion string     `json:"archflowVersion" yaml:"archflowVersion"`
	Source          string     `json:"source" yaml:"source"`
	BuildID         string     `json:"buildId,omitempty" yaml:"buildId,omitempty"`
	Frameworks      []string   `json:"frameworks" yaml:"frameworks"`
	Stats           flow.Stats `json:"stats" yaml:"stats"`
	flow.Graph      `yaml:",inline"`
}

func runFlow(cmd *cobra.Command, args []string) {
	start := time.Now()
	s := mustSession(dirArg(args))
	defer s.Close()

	resp, err := buildFlow(s)
	if err != nil {
		fail(err)
	}

	if flowSave {
		if !s.cfg.Storage.Enabled {
			s.logger.Warn("Build history is disabled in config, not saving")
		} else {
			db := s.mustOpenDB()
			meta, err := db.SaveBuild(newContext(), storage.BuildMeta{
				Source:     resp.Source,
				Root:       s.root,
				Frameworks: resp.Frameworks,
			}, &resp.Graph)
			_ = db.Close()
			if err != nil {
				fail(err)
			}
			resp.BuildID = meta.ID
		}
	}

	output, err := FormatResponse(resp, OutputFormat(flowFormat))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error formatting output: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(output)

	s.logger.Debug("Flow command completed",
		"entryPoints", resp.Stats.EntryPoints,
		"duration", time.Since(start).Milliseconds(),
	)
}

// buildFlow loads or extracts the model and runs the flow builder with the
// session's patterns and the command line selections.
func buildFlow(s *session) (*FlowResponse, error) {
	ctx := newContext()
	m, source, err := s.loadModel(ctx, flowModel)
	if err != nil {
		return nil, err
	}
	table, err := s.patterns()
	if err != nil {
		return nil, err
	}
	opts := s.flowOptions(table, flowFrameworks, flowProtocols)

	graph, err := flow.NewBuilder(s.logger, table).Build(ctx, m, opts)
	if err != nil {
		return nil, err
	}
	return newFlowResponse(source, opts.Frameworks, graph), nil
}

func newFlowResponse(source string, frameworks []string, graph *flow.Graph) *FlowResponse {
	return &FlowResponse{
		ArchflowVersion: version.Version,
		Source:          source,
		Frameworks:      frameworks,
		Stats:           graph.Stats(),
		Graph:           *graph,
	}
}

func flowResponseFromBuild(b *storage.Build) *FlowResponse {
	resp := newFlowResponse(b.Source, b.Frameworks, b.Graph)
	resp.BuildID = b.ID
	return resp
}

func mermaidOptions() diagram.Options {
	return diagram.Options{
		Direction:      flowDirection,
		ShowConfidence: flowShowConfidence,
		SkipEmpty:      flowSkipEmpty,
	}
}
