package flow

import (
	"context"
	"log/slog"

	"archflow/internal/model"
	"archflow/internal/slogutil"
)

// Builder runs entry point detection, handler resolution and chain tracing
// over a model. A Builder holds no state between builds and may be shared.
type Builder struct {
	logger   *slog.Logger
	patterns *PatternTable
}

// NewBuilder creates a builder. A nil logger discards output; a nil table
// uses DefaultPatterns.
func NewBuilder(logger *slog.Logger, patterns *PatternTable) *Builder {
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	if patterns == nil {
		patterns = DefaultPatterns()
	}
	return &Builder{logger: logger, patterns: patterns}
}

// Build produces the flow graph for m. It does no I/O and never fails on
// malformed input; degenerate models yield an empty graph. The context is
// accepted for pipeline uniformity and only used for logging.
func (b *Builder) Build(ctx context.Context, m *model.Model, opts Options) (*Graph, error) {
	found := detect(m, opts, b.patterns)
	graph := &Graph{
		EntryPoints: make([]EntryPoint, 0, len(found)),
		CallChains:  make([]CallChain, 0, len(found)),
	}

	unresolved := 0
	for _, d := range found {
		ref, ok := ResolveHandler(d.pkg, d.Handler)
		if !ok {
			unresolved++
		}
		graph.EntryPoints = append(graph.EntryPoints, d.EntryPoint)
		graph.CallChains = append(graph.CallChains, TraceChain(d.EntryPoint, d.pkg, ref))
	}

	stats := graph.Stats()
	b.logger.DebugContext(ctx, "Flow graph built",
		"entryPoints", stats.EntryPoints,
		"unresolvedHandlers", unresolved,
		"edges", stats.Edges,
		"interfaceEdges", stats.InterfaceEdges,
	)
	return graph, nil
}

// Build runs a default builder.
func Build(ctx context.Context, m *model.Model, opts Options) (*Graph, error) {
	return NewBuilder(nil, nil).Build(ctx, m, opts)
}
