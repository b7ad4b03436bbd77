package graphdb

import "archflow/internal/flow"

type graphRows struct {
	entries   []map[string]any
	funcs     []map[string]any
	handledBy []map[string]any
	calls     []map[string]any
}

// funcKey scopes a textual function name to the package its chain was
// traced in. Edge endpoints are source text, not resolved symbols.
func funcKey(pkg, name string) string {
	return pkg + "#" + name
}

// buildRows flattens g into parameter rows. Functions and call edges are
// deduplicated across chains.
func buildRows(g *flow.Graph, buildID string) graphRows {
	rows := graphRows{
		entries:   []map[string]any{},
		funcs:     []map[string]any{},
		handledBy: []map[string]any{},
		calls:     []map[string]any{},
	}
	if g == nil {
		return rows
	}

	funcs := make(map[string]bool)
	addFunc := func(pkg, name string) string {
		key := funcKey(pkg, name)
		if !funcs[key] {
			funcs[key] = true
			rows.funcs = append(rows.funcs, map[string]any{
				"key":     key,
				"name":    name,
				"package": pkg,
			})
		}
		return key
	}
	calls := make(map[string]bool)

	for i, ep := range g.EntryPoints {
		rows.entries = append(rows.entries, map[string]any{
			"id":        ep.ID,
			"build":     buildID,
			"protocol":  string(ep.Protocol),
			"method":    ep.Method,
			"path":      ep.Path,
			"handler":   ep.Handler,
			"framework": ep.Framework,
			"package":   ep.Package,
			"file":      ep.Location.File,
			"line":      int64(ep.Location.Line),
		})

		var chain flow.CallChain
		if i < len(g.CallChains) {
			chain = g.CallChains[i]
		}
		handler := ep.Handler
		if len(chain.Calls) > 0 {
			handler = chain.Calls[0].From
		}
		if handler == "" {
			continue
		}
		rows.handledBy = append(rows.handledBy, map[string]any{
			"entry": ep.ID,
			"build": buildID,
			"func":  addFunc(ep.Package, handler),
		})

		for _, c := range chain.Calls {
			from := addFunc(ep.Package, c.From)
			to := addFunc(ep.Package, c.To)
			id := from + "->" + to
			if calls[id] {
				continue
			}
			calls[id] = true
			rows.calls = append(rows.calls, map[string]any{
				"from":       from,
				"to":         to,
				"dispatch":   string(c.Type),
				"confidence": c.Confidence,
			})
		}
	}
	return rows
}
