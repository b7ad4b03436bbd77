// Package flow turns a structural model into entry points and the call
// chains reachable from their handlers.
package flow

import "fmt"

// Protocol classifies how an entry point is reached from outside the process.
type Protocol string

const (
	ProtocolHTTP Protocol = "http"
	ProtocolGRPC Protocol = "grpc"
	ProtocolCLI  Protocol = "cli"
)

// FrameworkMain is the tag for the process-entry convention. It has no call
// patterns; a function named main is enough.
const FrameworkMain = "main"

// DispatchKind classifies a call edge.
type DispatchKind string

const (
	// DispatchDirect is a call to a concrete function or method
	DispatchDirect DispatchKind = "direct"
	// DispatchInterface is a call through an interface-typed field or parameter
	DispatchInterface DispatchKind = "interface"
)

// Confidence returns the fixed weight attached to edges of this kind.
func (k DispatchKind) Confidence() float64 {
	switch k {
	case DispatchInterface:
		return 0.8
	default:
		return 0.7
	}
}

// Location identifies the call site an entry point was detected at.
type Location struct {
	File string `json:"file" yaml:"file"`
	Line int    `json:"line" yaml:"line"`
}

// EntryPoint is an externally reachable call into the program.
type EntryPoint struct {
	ID         string   `json:"id" yaml:"id"`
	Protocol   Protocol `json:"protocol" yaml:"protocol"`
	Method     string   `json:"method,omitempty" yaml:"method,omitempty"`
	Path       string   `json:"path" yaml:"path"`
	Handler    string   `json:"handler" yaml:"handler"`
	Framework  string   `json:"framework" yaml:"framework"`
	Package    string   `json:"package" yaml:"package"`
	PackageDir string   `json:"packageDir" yaml:"packageDir"`
	Location   Location `json:"location" yaml:"location"`
}

// CallEdge is one traced call out of a handler.
type CallEdge struct {
	From       string       `json:"from" yaml:"from"`
	To         string       `json:"to" yaml:"to"`
	Type       DispatchKind `json:"type" yaml:"type"`
	Confidence float64      `json:"confidence" yaml:"confidence"`
}

// CallChain holds the edges traced from one entry point's handler.
type CallChain struct {
	ID         string     `json:"id" yaml:"id"`
	EntryPoint string     `json:"entryPoint" yaml:"entryPoint"`
	Calls      []CallEdge `json:"calls" yaml:"calls"`
}

// Graph is the result of a build: entry points and one chain per entry
// point, in discovery order.
type Graph struct {
	EntryPoints []EntryPoint `json:"entryPoints" yaml:"entryPoints"`
	CallChains  []CallChain  `json:"callChains" yaml:"callChains"`
}

// Options selects which frameworks are detected and which protocols are kept.
type Options struct {
	Frameworks []string `json:"frameworks" yaml:"frameworks"`
	Protocols  []string `json:"protocols,omitempty" yaml:"protocols,omitempty"`
}

// EntryPointID formats the identifier of an entry point found in pkg at line.
func EntryPointID(pkgFullName string, line int) string {
	return fmt.Sprintf("entry-%s-%d", pkgFullName, line)
}

// ChainID formats the identifier of the chain owned by an entry point.
func ChainID(entryPointID string) string {
	return "chain-" + entryPointID
}

// Stats summarizes a graph.
type Stats struct {
	EntryPoints    int              `json:"entryPoints" yaml:"entryPoints"`
	NonEmptyChains int              `json:"nonEmptyChains" yaml:"nonEmptyChains"`
	Edges          int              `json:"edges" yaml:"edges"`
	InterfaceEdges int              `json:"interfaceEdges" yaml:"interfaceEdges"`
	ByProtocol     map[Protocol]int `json:"byProtocol" yaml:"byProtocol"`
}

// Stats counts entry points, edges and chains that carry at least one edge.
func (g *Graph) Stats() Stats {
	s := Stats{ByProtocol: make(map[Protocol]int)}
	if g == nil {
		return s
	}
	s.EntryPoints = len(g.EntryPoints)
	for _, ep := range g.EntryPoints {
		s.ByProtocol[ep.Protocol]++
	}
	for _, chain := range g.CallChains {
		if len(chain.Calls) > 0 {
			s.NonEmptyChains++
		}
		s.Edges += len(chain.Calls)
		for _, e := range chain.Calls {
			if e.Type == DispatchInterface {
				s.InterfaceEdges++
			}
		}
	}
	return s
}

// ChainFor returns the chain owned by the given entry point.
func (g *Graph) ChainFor(entryPointID string) (CallChain, bool) {
	for _, chain := range g.CallChains {
		if chain.EntryPoint == entryPointID {
			return chain, true
		}
	}
	return CallChain{}, false
}
