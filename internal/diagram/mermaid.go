// Package diagram renders flow graphs as Mermaid flowcharts.
package diagram

import (
	"fmt"
	"strings"

	"archflow/internal/flow"
)

// Options controls Mermaid output.
type Options struct {
	// Direction is the flowchart direction (LR, TB, RL, BT). Defaults to LR.
	Direction string
	// ShowConfidence labels call edges with their confidence.
	ShowConfidence bool
	// SkipEmpty leaves out entry points whose chain has no edges.
	SkipEmpty bool
}

// EntryLabel is the display label of an entry point: "GET /api/users" for
// method-bound routes, "/api/users" for generic handlers, "GRPC <path>" and
// "CLI <path>" otherwise. The handler stands in for a missing path.
func EntryLabel(ep flow.EntryPoint) string {
	target := ep.Path
	if target == "" {
		target = ep.Handler
	}
	switch ep.Protocol {
	case flow.ProtocolHTTP:
		if ep.Method != "" {
			return ep.Method + " " + target
		}
		return target
	case flow.ProtocolGRPC:
		return strings.TrimSpace("GRPC " + target)
	case flow.ProtocolCLI:
		return strings.TrimSpace("CLI " + target)
	default:
		return target
	}
}

// Mermaid renders g as a flowchart with one subgraph per package directory.
// Direct calls are solid arrows, interface calls dotted.
func Mermaid(g *flow.Graph, opts Options) string {
	direction := strings.ToUpper(opts.Direction)
	switch direction {
	case "LR", "TB", "TD", "RL", "BT":
	default:
		direction = "LR"
	}

	r := newRenderer()
	if g != nil {
		for i, ep := range g.EntryPoints {
			var chain flow.CallChain
			if i < len(g.CallChains) {
				chain = g.CallChains[i]
			}
			if opts.SkipEmpty && len(chain.Calls) == 0 {
				continue
			}
			r.addEntry(ep, chain, opts.ShowConfidence)
		}
	}

	var sb strings.Builder
	sb.WriteString("flowchart " + direction + "\n")
	for i, dir := range r.dirs {
		label := dir
		if label == "" {
			label = "."
		}
		sb.WriteString(fmt.Sprintf("  subgraph pkg%d[%s]\n", i, quote(label)))
		for _, node := range r.nodes[dir] {
			sb.WriteString("    " + node + "\n")
		}
		sb.WriteString("  end\n")
	}
	for _, edge := range r.edges {
		sb.WriteString("  " + edge + "\n")
	}
	return sb.String()
}

type renderer struct {
	dirs  []string
	nodes map[string][]string
	ids   map[string]string
	seen  map[string]bool
	edges []string
	next  int
}

func newRenderer() *renderer {
	return &renderer{
		nodes: make(map[string][]string),
		ids:   make(map[string]string),
		seen:  make(map[string]bool),
	}
}

func (r *renderer) addEntry(ep flow.EntryPoint, chain flow.CallChain, showConfidence bool) {
	entry := r.node(ep.PackageDir, "entry|"+ep.ID, EntryLabel(ep), "([%s])")

	handler := ep.Handler
	if len(chain.Calls) > 0 {
		handler = chain.Calls[0].From
	}
	if handler == "" {
		return
	}
	scope := ep.Package + "|"
	from := r.node(ep.PackageDir, scope+handler, handler, "[%s]")
	r.edge(entry + " --> " + from)

	for _, call := range chain.Calls {
		to := r.node(ep.PackageDir, scope+call.To, call.To, "[%s]")
		arrow := "-->"
		if call.Type == flow.DispatchInterface {
			arrow = "-.->"
		}
		if showConfidence {
			arrow += fmt.Sprintf("|%.1f|", call.Confidence)
		}
		r.edge(from + " " + arrow + " " + to)
	}
}

// node returns the id for key, declaring it in dir's subgraph on first use.
func (r *renderer) node(dir, key, label, shape string) string {
	if id, ok := r.ids[key]; ok {
		return id
	}
	id := fmt.Sprintf("n%d", r.next)
	r.next++
	r.ids[key] = id

	if _, ok := r.nodes[dir]; !ok {
		r.dirs = append(r.dirs, dir)
	}
	r.nodes[dir] = append(r.nodes[dir], id+fmt.Sprintf(shape, quote(label)))
	return id
}

func (r *renderer) edge(line string) {
	if r.seen[line] {
		return
	}
	r.seen[line] = true
	r.edges = append(r.edges, line)
}

// quote wraps a label in double quotes, escaping characters Mermaid treats
// specially.
func quote(label string) string {
	label = strings.ReplaceAll(label, `"`, "#quot;")
	return `"` + label + `"`
}
