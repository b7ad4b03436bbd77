package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"archflow/internal/diagram"
	"archflow/internal/flow"
	"archflow/internal/storage"
)

// OutputFormat represents the output format type
type OutputFormat string

const (
	FormatJSON    OutputFormat = "json"
	FormatYAML    OutputFormat = "yaml"
	FormatHuman   OutputFormat = "human"
	FormatMermaid OutputFormat = "mermaid"
)

// FormatResponse formats a response according to the specified format.
// Mermaid output is only defined for graph responses.
func FormatResponse(resp interface{}, format OutputFormat) (string, error) {
	switch format {
	case FormatJSON:
		return formatJSON(resp)
	case FormatYAML:
		return formatYAML(resp)
	case FormatHuman:
		return formatHuman(resp)
	case FormatMermaid:
		if g, ok := graphOf(resp); ok {
			return strings.TrimSuffix(diagram.Mermaid(g, mermaidOptions()), "\n"), nil
		}
		return "", fmt.Errorf("mermaid output is not available for this command")
	default:
		return "", fmt.Errorf("unsupported format: %s", format)
	}
}

func formatJSON(resp interface{}) (string, error) {
	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(data), nil
}

func formatYAML(resp interface{}) (string, error) {
	data, err := yaml.Marshal(resp)
	if err != nil {
		return "", fmt.Errorf("failed to marshal YAML: %w", err)
	}
	return strings.TrimSuffix(string(data), "\n"), nil
}

func formatHuman(resp interface{}) (string, error) {
	switch v := resp.(type) {
	case *FlowResponse:
		return formatFlowHuman(v), nil
	case *EntrypointsResponse:
		return formatEntrypointsHuman(v), nil
	case *BuildListResponse:
		return formatBuildListHuman(v), nil
	case *storage.Build:
		return formatFlowHuman(flowResponseFromBuild(v)), nil
	case *FrameworksResponse:
		return formatFrameworksHuman(v), nil
	case *ExtractResponse:
		return formatExtractHuman(v), nil
	default:
		// For unknown types, fall back to JSON
		return formatJSON(resp)
	}
}

func graphOf(resp interface{}) (*flow.Graph, bool) {
	switch v := resp.(type) {
	case *FlowResponse:
		return &v.Graph, true
	case *storage.Build:
		return v.Graph, true
	case *flow.Graph:
		return v, true
	default:
		return nil, false
	}
}

func formatFlowHuman(resp *FlowResponse) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("Flow graph for %s\n", resp.Source))
	b.WriteString(strings.Repeat("=", 60) + "\n")
	if resp.BuildID != "" {
		b.WriteString(fmt.Sprintf("Build: %s\n", resp.BuildID))
	}
	b.WriteString(fmt.Sprintf("Entry points: %d (%s)\n", resp.Stats.EntryPoints, protocolSummary(resp.Stats.ByProtocol)))
	b.WriteString(fmt.Sprintf("Edges: %d (%d interface), %d chains with calls\n\n",
		resp.Stats.Edges, resp.Stats.InterfaceEdges, resp.Stats.NonEmptyChains))

	for i, ep := range resp.Graph.EntryPoints {
		b.WriteString(fmt.Sprintf("%s  [%s]\n", diagram.EntryLabel(ep), ep.Framework))
		b.WriteString(fmt.Sprintf("  handler: %s", ep.Handler))
		if ep.Location.File != "" {
			b.WriteString(fmt.Sprintf("  (%s:%d)", ep.Location.File, ep.Location.Line))
		}
		b.WriteString("\n")
		if i < len(resp.Graph.CallChains) {
			for _, c := range resp.Graph.CallChains[i].Calls {
				arrow := "->"
				if c.Type == flow.DispatchInterface {
					arrow = "~>"
				}
				b.WriteString(fmt.Sprintf("    %s %s %s (%.1f)\n", c.From, arrow, c.To, c.Confidence))
			}
		}
	}
	if len(resp.Graph.EntryPoints) == 0 {
		b.WriteString("No entry points found.\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func formatEntrypointsHuman(resp *EntrypointsResponse) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Entry points: %d\n\n", resp.TotalCount))
	for _, ep := range resp.EntryPoints {
		loc := ""
		if ep.Location != "" {
			loc = "  " + ep.Location
		}
		b.WriteString(fmt.Sprintf("  %-40s %-12s %s (%d calls)%s\n", ep.Label, ep.Framework, ep.Handler, ep.Edges, loc))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func formatBuildListHuman(resp *BuildListResponse) string {
	if len(resp.Builds) == 0 {
		return "No builds stored."
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%-36s  %-20s  %7s  %6s  %s\n", "ID", "CREATED", "ENTRIES", "EDGES", "SOURCE"))
	for _, m := range resp.Builds {
		b.WriteString(fmt.Sprintf("%-36s  %-20s  %7d  %6d  %s\n",
			m.ID, m.CreatedAt.Local().Format("2006-01-02 15:04:05"), m.EntryPoints, m.Edges, m.Source))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func formatFrameworksHuman(resp *FrameworksResponse) string {
	var b strings.Builder
	for _, fw := range resp.Frameworks {
		active := " "
		if fw.Active {
			active = "*"
		}
		b.WriteString(fmt.Sprintf("%s %s\n", active, fw.Tag))
		if len(fw.Patterns) == 0 {
			b.WriteString("    (function named main)\n")
		}
		for _, p := range fw.Patterns {
			line := fmt.Sprintf("    %-16s -> %s", p.Callee, p.Protocol)
			if p.Method != "" {
				line += " " + p.Method
			}
			b.WriteString(line + "\n")
		}
	}
	b.WriteString("\n* active")
	return b.String()
}

func formatExtractHuman(resp *ExtractResponse) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Extracted %s\n", resp.Root))
	if resp.Output != "" {
		b.WriteString(fmt.Sprintf("  written to %s\n", resp.Output))
	}
	s := resp.Stats
	b.WriteString(fmt.Sprintf("  packages: %d, functions: %d, structs: %d, methods: %d, interfaces: %d, call sites: %d",
		s.Packages, s.Functions, s.Structs, s.Methods, s.Interfaces, s.CallSites))
	return b.String()
}

// protocolSummary renders protocol counts as "http 3, cli 1" in name order.
func protocolSummary(counts map[flow.Protocol]int) string {
	if len(counts) == 0 {
		return "none"
	}
	names := make([]string, 0, len(counts))
	for p := range counts {
		names = append(names, string(p))
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s %d", name, counts[flow.Protocol(name)]))
	}
	return strings.Join(parts, ", ")
}
