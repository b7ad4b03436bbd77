package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"archflow/internal/diagram"
	"archflow/internal/flow"
	"archflow/internal/storage"
)

var (
	entrypointsFormat   string
	entrypointsBuild    string
	entrypointsProtocol string
)

var entrypointsCmd = &cobra.Command{
	Use:   "entrypoints [dir]",
	Short: "List detected entry points",
	Long: `List the entry points of a codebase, or of a stored build.

Examples:
  archflow entrypoints
  archflow entrypoints --frameworks=gin --format=human
  archflow entrypoints --build=latest --protocol=grpc`,
	Args: cobra.MaximumNArgs(1),
	Run:  runEntrypoints,
}

func init() {
	addGraphFlags(entrypointsCmd)
	entrypointsCmd.Flags().StringVar(&entrypointsFormat, "format", "json", "Output format (json, yaml, human)")
	entrypointsCmd.Flags().StringVar(&entrypointsBuild, "build", "", "Read entry points from a stored build (id, prefix or latest)")
	entrypointsCmd.Flags().StringVar(&entrypointsProtocol, "protocol", "", "With --build, keep only this protocol")
	rootCmd.AddCommand(entrypointsCmd)
}

// EntrypointsResponse contains the entry point list for CLI output
type EntrypointsResponse struct {
	BuildID     string          `json:"buildId,omitempty" yaml:"buildId,omitempty"`
	EntryPoints []EntrypointCLI `json:"entryPoints" yaml:"entryPoints"`
	TotalCount  int             `json:"totalCount" yaml:"totalCount"`
}

// EntrypointCLI is one listed entry point.
type EntrypointCLI struct {
	ID        string `json:"id" yaml:"id"`
	Label     string `json:"label" yaml:"label"`
	Protocol  string `json:"protocol" yaml:"protocol"`
	Framework string `json:"framework" yaml:"framework"`
	Handler   string `json:"handler" yaml:"handler"`
	Package   string `json:"package" yaml:"package"`
	Location  string `json:"location,omitempty" yaml:"location,omitempty"`
	Edges     int    `json:"edges" yaml:"edges"`
}

func runEntrypoints(cmd *cobra.Command, args []string) {
	s := mustSession(dirArg(args))
	defer s.Close()

	var resp *EntrypointsResponse
	if entrypointsBuild != "" {
		db := s.mustOpenDB()
		rows, err := db.EntryPointsByProtocol(newContext(), entrypointsBuild, flow.Protocol(entrypointsProtocol))
		_ = db.Close()
		if err != nil {
			fail(err)
		}
		resp = entrypointsFromRows(rows)
	} else {
		flowResp, err := buildFlow(s)
		if err != nil {
			fail(err)
		}
		resp = entrypointsFromGraph(&flowResp.Graph)
	}

	output, err := FormatResponse(resp, OutputFormat(entrypointsFormat))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error formatting output: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(output)
}

func entrypointsFromGraph(g *flow.Graph) *EntrypointsResponse {
	resp := &EntrypointsResponse{EntryPoints: make([]EntrypointCLI, 0, len(g.EntryPoints))}
	for i, ep := range g.EntryPoints {
		entry := EntrypointCLI{
			ID:        ep.ID,
			Label:     diagram.EntryLabel(ep),
			Protocol:  string(ep.Protocol),
			Framework: ep.Framework,
			Handler:   ep.Handler,
			Package:   ep.Package,
			Location:  location(ep.Location.File, ep.Location.Line),
		}
		if i < len(g.CallChains) {
			entry.Edges = len(g.CallChains[i].Calls)
		}
		resp.EntryPoints = append(resp.EntryPoints, entry)
	}
	resp.TotalCount = len(resp.EntryPoints)
	return resp
}

func entrypointsFromRows(rows []storage.EntryRow) *EntrypointsResponse {
	resp := &EntrypointsResponse{EntryPoints: make([]EntrypointCLI, 0, len(rows))}
	for _, r := range rows {
		resp.BuildID = r.BuildID
		ep := flow.EntryPoint{Protocol: flow.Protocol(r.Protocol), Method: r.Method, Path: r.Path, Handler: r.Handler}
		resp.EntryPoints = append(resp.EntryPoints, EntrypointCLI{
			ID:        r.EntryID,
			Label:     diagram.EntryLabel(ep),
			Protocol:  r.Protocol,
			Framework: r.Framework,
			Handler:   r.Handler,
			Package:   r.Package,
			Location:  location(r.File, r.Line),
			Edges:     r.Edges,
		})
	}
	resp.TotalCount = len(resp.EntryPoints)
	return resp
}

func location(file string, line int) string {
	if file == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", file, line)
}
