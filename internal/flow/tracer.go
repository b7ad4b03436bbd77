package flow

import (
	"archflow/internal/model"
)

// TraceChain walks the immediate call sites of the handler referenced by ref
// and returns the chain for ep. Only the handler's own body is visited;
// callees are not followed. An unresolved ref yields an empty chain.
func TraceChain(ep EntryPoint, pkg *model.Package, ref HandlerRef) CallChain {
	chain := CallChain{
		ID:         ChainID(ep.ID),
		EntryPoint: ep.ID,
		Calls:      make([]CallEdge, 0),
	}

	body := ref.Body()
	if !ref.Resolved() || body == nil {
		return chain
	}

	types := NewTypeContext(pkg, ref)
	from := ref.DisplayName()

	edges := make([]CallEdge, 0, len(body.Calls))
	for _, call := range body.Calls {
		if call.Callee == "" || isNoise(call.Callee, call.Qualifier) || types.IsRequest(call.Qualifier) {
			continue
		}
		kind := types.Classify(call.Qualifier)
		edges = append(edges, CallEdge{
			From:       from,
			To:         calleeName(call),
			Type:       kind,
			Confidence: kind.Confidence(),
		})
	}

	chain.Calls = Dedupe(edges)
	return chain
}

func calleeName(call model.CallSite) string {
	if call.Qualifier != "" {
		return call.Qualifier + "." + call.Callee
	}
	return call.Callee
}

// Dedupe keeps the first edge for every (from, to) pair, preserving order.
func Dedupe(edges []CallEdge) []CallEdge {
	type key struct{ from, to string }
	seen := make(map[key]bool, len(edges))
	out := make([]CallEdge, 0, len(edges))
	for _, e := range edges {
		k := key{e.From, e.To}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, e)
	}
	return out
}
