package diagram

import (
	"context"
	"strings"
	"testing"

	"archflow/internal/flow"
	"archflow/internal/testutil"
)

func shopGraph(t *testing.T) (*testutil.FixtureContext, *flow.Graph) {
	t.Helper()
	fixture := testutil.LoadFixture(t, "shop")
	graph, err := flow.Build(context.Background(), fixture.Model(t), flow.Options{Frameworks: flow.Frameworks()})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return fixture, graph
}

func TestMermaid_GoldenShop(t *testing.T) {
	fixture, graph := shopGraph(t)
	testutil.CompareGolden(t, fixture, "flow.mmd", []byte(Mermaid(graph, Options{})))
}

func TestMermaid_ShopSkipEmpty(t *testing.T) {
	_, graph := shopGraph(t)

	out := Mermaid(graph, Options{SkipEmpty: true, Direction: "tb"})
	if !strings.HasPrefix(out, "flowchart TB\n") {
		t.Errorf("header = %q, want flowchart TB", strings.SplitN(out, "\n", 2)[0])
	}
	if strings.Contains(out, `"/health"`) {
		t.Errorf("empty /health chain should be skipped:\n%s", out)
	}
	if !strings.Contains(out, `"GET /items"`) {
		t.Errorf("GET /items missing:\n%s", out)
	}
}
