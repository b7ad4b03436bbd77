package flow

import (
	"context"
	"sync"
	"testing"

	"archflow/internal/model"
)

func call(callee, qualifier string, line int, args ...string) model.CallSite {
	return model.CallSite{
		Callee:    callee,
		Qualifier: qualifier,
		Args:      args,
		Location:  model.Location{File: "api.go", StartLine: line},
	}
}

// serverModel is a small HTTP service: a route table in a function, a struct
// with an interface-typed store, and a free handler.
func serverModel() *model.Model {
	return &model.Model{Packages: []model.Package{{
		ID:       "pkg/api",
		Name:     "api",
		FullName: "pkg/api",
		Dir:      "internal/api",
		Interfaces: []model.InterfaceDecl{
			{Name: "Store", Methods: []string{"Find", "Get"}},
		},
		Structs: []model.StructDecl{{
			Name: "Server",
			Fields: []model.Field{
				{Name: "store", Type: "Store"},
				{Name: "cache", Type: "*Cache"},
			},
			Methods: []model.MethodDecl{
				{
					Name:     "routes",
					Struct:   "Server",
					Receiver: &model.Param{Name: "s", Type: "*Server"},
					Body: &model.Body{Calls: []model.CallSite{
						call("HandleFunc", "mux", 20, "/v1/sessions", "s.handleSessions"),
						call("HandleFunc", "mux", 21, "GET /v1/items", "listItems"),
						call("HandleFunc", "mux", 22, "/inline", "func(w http.ResponseWriter, r *http.Request) {"),
						call("Use", "mux", 23, "logging"),
					}},
				},
				{
					Name:     "handleSessions",
					Struct:   "Server",
					Receiver: &model.Param{Name: "s", Type: "*Server"},
					Params: []model.Param{
						{Name: "w", Type: "http.ResponseWriter"},
						{Name: "r", Type: "*http.Request"},
					},
					Body: &model.Body{Calls: []model.CallSite{
						call("Context", "r", 30),
						call("Find", "s.store", 31),
						call("Lookup", "s.cache", 32),
						call("Marshal", "json", 33),
						call("Write", "w", 34),
						call("len", "", 35),
						call("validate", "", 36),
						call("Find", "s.store", 37),
					}},
				},
			},
		}},
		Functions: []model.FunctionDecl{
			{
				Name:   "listItems",
				Params: []model.Param{{Name: "repo", Type: "*Store"}},
				Body: &model.Body{Calls: []model.CallSite{
					call("All", "repo", 40),
					call("Get", "store", 41),
					call("Get", "store", 42),
					call("Get", "store", 43),
					call("Errorf", "fmt", 44),
					call("append", "", 45),
				}},
			},
		},
	}}}
}

func TestBuild_ScenarioA_HandleFunc(t *testing.T) {
	m := &model.Model{Packages: []model.Package{{
		Name:     "api",
		FullName: "pkg/api",
		Functions: []model.FunctionDecl{{
			Name: "register",
			Body: &model.Body{Calls: []model.CallSite{call("HandleFunc", "", 5)}},
		}},
	}}}

	graph, err := Build(context.Background(), m, Options{Frameworks: []string{"net/http"}})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if len(graph.EntryPoints) != 1 {
		t.Fatalf("len(EntryPoints) = %d, want 1", len(graph.EntryPoints))
	}
	ep := graph.EntryPoints[0]
	if ep.Protocol != ProtocolHTTP {
		t.Errorf("Protocol = %q, want http", ep.Protocol)
	}
	if ep.Framework != "net/http" {
		t.Errorf("Framework = %q, want net/http", ep.Framework)
	}
	if ep.ID != "entry-pkg/api-5" {
		t.Errorf("ID = %q, want entry-pkg/api-5", ep.ID)
	}
	if ep.Method != "" || ep.Path != "" || ep.Handler != "" {
		t.Errorf("got method=%q path=%q handler=%q, want all empty", ep.Method, ep.Path, ep.Handler)
	}
	if ep.Location.File != "api.go" || ep.Location.Line != 5 {
		t.Errorf("Location = %+v, want api.go:5", ep.Location)
	}
}

func TestBuild_ScenarioB_PathAndHandler(t *testing.T) {
	graph, _ := Build(context.Background(), serverModel(), Options{Frameworks: []string{"net/http"}})

	ep := graph.EntryPoints[0]
	if ep.Path != "/v1/sessions" {
		t.Errorf("Path = %q, want /v1/sessions", ep.Path)
	}
	if ep.Handler != "s.handleSessions" {
		t.Errorf("Handler = %q, want s.handleSessions", ep.Handler)
	}
	if ep.PackageDir != "internal/api" {
		t.Errorf("PackageDir = %q, want internal/api", ep.PackageDir)
	}
}

func TestBuild_ScenarioC_DuplicateCallsCollapse(t *testing.T) {
	graph, _ := Build(context.Background(), serverModel(), Options{Frameworks: []string{"net/http"}})

	chain := graph.CallChains[1] // GET /v1/items -> listItems
	count := 0
	for _, e := range chain.Calls {
		if e.To == "store.Get" {
			count++
			if e.Type != DispatchDirect || e.Confidence != 0.7 {
				t.Errorf("store.Get edge = %+v, want direct/0.7", e)
			}
		}
	}
	if count != 1 {
		t.Errorf("store.Get edges = %d, want 1", count)
	}
}

func TestBuild_ScenarioD_InterfaceField(t *testing.T) {
	m := &model.Model{Packages: []model.Package{{
		Name:       "api",
		FullName:   "pkg/api",
		Interfaces: []model.InterfaceDecl{{Name: "Store", Methods: []string{"Find"}}},
		Structs: []model.StructDecl{{
			Name:   "Server",
			Fields: []model.Field{{Name: "store", Type: "Store"}},
			Methods: []model.MethodDecl{{
				Name:   "handleRequest",
				Struct: "Server",
				Body:   &model.Body{Calls: []model.CallSite{call("Find", "s.store", 12)}},
			}},
		}},
		Functions: []model.FunctionDecl{{
			Name: "routes",
			Body: &model.Body{Calls: []model.CallSite{call("HandleFunc", "", 3, "/req", "s.handleRequest")}},
		}},
	}}}

	graph, _ := Build(context.Background(), m, Options{Frameworks: []string{"net/http"}})

	if len(graph.CallChains) != 1 || len(graph.CallChains[0].Calls) != 1 {
		t.Fatalf("chains = %+v, want one chain with one edge", graph.CallChains)
	}
	e := graph.CallChains[0].Calls[0]
	if e.To != "s.store.Find" {
		t.Errorf("To = %q, want s.store.Find", e.To)
	}
	if e.Type != DispatchInterface {
		t.Errorf("Type = %q, want interface", e.Type)
	}
	if e.Confidence != 0.8 {
		t.Errorf("Confidence = %v, want 0.8", e.Confidence)
	}
	if e.From != "Server.handleRequest" {
		t.Errorf("From = %q, want Server.handleRequest", e.From)
	}
}

func TestBuild_ScenarioE_Main(t *testing.T) {
	m := &model.Model{Packages: []model.Package{{
		Name:     "main",
		FullName: "example.com/cmd/tool",
		Functions: []model.FunctionDecl{{
			Name:     "main",
			Location: model.Location{File: "main.go", StartLine: 9},
		}},
	}}}

	graph, _ := Build(context.Background(), m, Options{Frameworks: []string{"main"}})

	if len(graph.EntryPoints) != 1 {
		t.Fatalf("len(EntryPoints) = %d, want 1", len(graph.EntryPoints))
	}
	ep := graph.EntryPoints[0]
	if ep.Protocol != ProtocolCLI || ep.Framework != FrameworkMain || ep.Handler != "main.main" {
		t.Errorf("entry = %+v, want cli/main/main.main", ep)
	}
	if ep.ID != "entry-example.com/cmd/tool-9" {
		t.Errorf("ID = %q, want entry-example.com/cmd/tool-9", ep.ID)
	}
	if len(graph.CallChains) != 1 || len(graph.CallChains[0].Calls) != 0 {
		t.Errorf("opaque main should yield one empty chain, got %+v", graph.CallChains)
	}
}

func TestBuild_MainChainTracesBody(t *testing.T) {
	m := &model.Model{Packages: []model.Package{{
		Name:     "main",
		FullName: "example.com/cmd/tool",
		Functions: []model.FunctionDecl{{
			Name: "main",
			Body: &model.Body{Calls: []model.CallSite{
				call("Execute", "rootCmd", 10),
				call("Exit", "os", 11),
			}},
		}},
	}}}

	graph, _ := Build(context.Background(), m, Options{Frameworks: []string{"main", "cobra"}})

	calls := graph.CallChains[0].Calls
	if len(calls) != 1 || calls[0].To != "rootCmd.Execute" || calls[0].From != "main" {
		t.Errorf("calls = %+v, want single main -> rootCmd.Execute", calls)
	}
}

func TestBuild_ChainInvariants(t *testing.T) {
	graph, _ := Build(context.Background(), serverModel(), Options{Frameworks: []string{"net/http"}})

	if len(graph.CallChains) != len(graph.EntryPoints) {
		t.Fatalf("len(CallChains) = %d, len(EntryPoints) = %d", len(graph.CallChains), len(graph.EntryPoints))
	}
	for i, ep := range graph.EntryPoints {
		if graph.CallChains[i].EntryPoint != ep.ID {
			t.Errorf("CallChains[%d].EntryPoint = %q, want %q", i, graph.CallChains[i].EntryPoint, ep.ID)
		}
		if graph.CallChains[i].ID != "chain-"+ep.ID {
			t.Errorf("CallChains[%d].ID = %q, want chain-%s", i, graph.CallChains[i].ID, ep.ID)
		}
	}

	for _, chain := range graph.CallChains {
		seen := make(map[[2]string]bool)
		for _, e := range chain.Calls {
			k := [2]string{e.From, e.To}
			if seen[k] {
				t.Errorf("duplicate edge %v in %s", k, chain.ID)
			}
			seen[k] = true

			switch e.Type {
			case DispatchInterface:
				if e.Confidence != 0.8 {
					t.Errorf("interface edge %s confidence = %v", e.To, e.Confidence)
				}
			case DispatchDirect:
				if e.Confidence != 0.7 {
					t.Errorf("direct edge %s confidence = %v", e.To, e.Confidence)
				}
			default:
				t.Errorf("unknown dispatch kind %q", e.Type)
			}
		}
		if again := Dedupe(chain.Calls); len(again) != len(chain.Calls) {
			t.Errorf("Dedupe is not idempotent on %s", chain.ID)
		}
	}
}

func TestBuild_HandleSessionsChain(t *testing.T) {
	graph, _ := Build(context.Background(), serverModel(), Options{Frameworks: []string{"net/http"}})

	got := graph.CallChains[0].Calls
	want := []CallEdge{
		{From: "Server.handleSessions", To: "s.store.Find", Type: DispatchInterface, Confidence: 0.8},
		{From: "Server.handleSessions", To: "s.cache.Lookup", Type: DispatchDirect, Confidence: 0.7},
		{From: "Server.handleSessions", To: "validate", Type: DispatchDirect, Confidence: 0.7},
	}
	if len(got) != len(want) {
		t.Fatalf("calls = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("calls[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestBuild_ReceiverNamedR(t *testing.T) {
	m := &model.Model{Packages: []model.Package{{
		Name:       "api",
		FullName:   "pkg/api",
		Interfaces: []model.InterfaceDecl{{Name: "Store", Methods: []string{"Find"}}},
		Structs: []model.StructDecl{{
			Name:   "Router",
			Fields: []model.Field{{Name: "store", Type: "Store"}},
			Methods: []model.MethodDecl{{
				Name:     "handle",
				Struct:   "Router",
				Receiver: &model.Param{Name: "r", Type: "*Router"},
				Params: []model.Param{
					{Name: "w", Type: "http.ResponseWriter"},
					{Name: "req", Type: "*http.Request"},
				},
				Body: &model.Body{Calls: []model.CallSite{
					call("Context", "req", 10),
					call("Find", "r.store", 11),
					call("Write", "w", 12),
				}},
			}},
		}},
		Functions: []model.FunctionDecl{{
			Name: "setup",
			Body: &model.Body{Calls: []model.CallSite{call("HandleFunc", "", 3, "/x", "r.handle")}},
		}},
	}}}

	graph, _ := Build(context.Background(), m, Options{Frameworks: []string{"net/http"}})

	if len(graph.CallChains) != 1 {
		t.Fatalf("len(CallChains) = %d, want 1", len(graph.CallChains))
	}
	got := graph.CallChains[0].Calls
	want := CallEdge{From: "Router.handle", To: "r.store.Find", Type: DispatchInterface, Confidence: 0.8}
	if len(got) != 1 || got[0] != want {
		t.Errorf("calls = %+v, want [%+v]", got, want)
	}
}

func TestBuild_ImportQualifiedHandler(t *testing.T) {
	m := &model.Model{Packages: []model.Package{{
		Name:     "api",
		FullName: "pkg/api",
		Imports:  []string{"net/http", "example.com/shop/users"},
		Functions: []model.FunctionDecl{
			{
				Name: "routes",
				Body: &model.Body{Calls: []model.CallSite{call("HandleFunc", "http", 3, "/u", "users.List")}},
			},
			{
				Name: "List",
				Body: &model.Body{Calls: []model.CallSite{call("Local", "", 8)}},
			},
		},
	}}}

	graph, _ := Build(context.Background(), m, Options{Frameworks: []string{"net/http"}})

	if len(graph.EntryPoints) != 1 {
		t.Fatalf("len(EntryPoints) = %d, want 1", len(graph.EntryPoints))
	}
	if graph.EntryPoints[0].Handler != "users.List" {
		t.Errorf("Handler = %q, want users.List", graph.EntryPoints[0].Handler)
	}
	if calls := graph.CallChains[0].Calls; len(calls) != 0 {
		t.Errorf("calls = %+v, want none for a handler in another package", calls)
	}
}

func TestBuild_DuplicatePackageNames(t *testing.T) {
	pkgWith := func(dir string, line int, callee string) model.Package {
		return model.Package{
			Name:     "handlers",
			FullName: "handlers",
			Dir:      dir,
			Functions: []model.FunctionDecl{
				{
					Name: "routes",
					Body: &model.Body{Calls: []model.CallSite{call("HandleFunc", "", line, "/"+dir, "serve")}},
				},
				{
					Name: "serve",
					Body: &model.Body{Calls: []model.CallSite{call(callee, "", line+1)}},
				},
			},
		}
	}
	m := &model.Model{Packages: []model.Package{
		pkgWith("a", 10, "fromA"),
		pkgWith("b", 20, "fromB"),
	}}

	graph, _ := Build(context.Background(), m, Options{Frameworks: []string{"net/http"}})

	if len(graph.CallChains) != 2 {
		t.Fatalf("len(CallChains) = %d, want 2", len(graph.CallChains))
	}
	tests := []struct {
		path string
		want string
	}{
		{"/a", "fromA"},
		{"/b", "fromB"},
	}
	for i, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if graph.EntryPoints[i].Path != tt.path {
				t.Fatalf("EntryPoints[%d].Path = %q, want %q", i, graph.EntryPoints[i].Path, tt.path)
			}
			calls := graph.CallChains[i].Calls
			if len(calls) != 1 || calls[0].To != tt.want {
				t.Errorf("calls = %+v, want one edge to %s", calls, tt.want)
			}
		})
	}
}

func TestBuild_UnresolvedHandlers(t *testing.T) {
	graph, _ := Build(context.Background(), serverModel(), Options{Frameworks: []string{"net/http"}})

	// "/inline" carries an anonymous handler.
	inline := graph.EntryPoints[2]
	if inline.Handler != "" {
		t.Errorf("inline Handler = %q, want empty", inline.Handler)
	}
	if calls := graph.CallChains[2].Calls; calls == nil || len(calls) != 0 {
		t.Errorf("inline chain calls = %#v, want empty non-nil slice", calls)
	}
}

func TestBuild_ProtocolFilter(t *testing.T) {
	m := serverModel()
	m.Packages[0].Functions = append(m.Packages[0].Functions, model.FunctionDecl{
		Name: "main",
		Body: &model.Body{Calls: []model.CallSite{call("AddCommand", "root", 50, "serveCmd")}},
	})

	all, _ := Build(context.Background(), m, Options{Frameworks: []string{"net/http", "cobra", "main"}})
	httpOnly, _ := Build(context.Background(), m, Options{
		Frameworks: []string{"net/http", "cobra", "main"},
		Protocols:  []string{"http"},
	})

	if len(all.EntryPoints) != 5 {
		t.Fatalf("unfiltered entry points = %d, want 5", len(all.EntryPoints))
	}
	if len(httpOnly.EntryPoints) != 3 {
		t.Fatalf("filtered entry points = %d, want 3", len(httpOnly.EntryPoints))
	}
	for _, ep := range httpOnly.EntryPoints {
		if ep.Protocol != ProtocolHTTP {
			t.Errorf("filtered output contains %s entry %s", ep.Protocol, ep.ID)
		}
	}
	if len(httpOnly.CallChains) != len(httpOnly.EntryPoints) {
		t.Errorf("chains = %d, want %d", len(httpOnly.CallChains), len(httpOnly.EntryPoints))
	}
	// Chains of kept entries are unaffected by the filter. The first http
	// entry comes after the two cli entries of main in the unfiltered run.
	if len(httpOnly.CallChains[0].Calls) != len(all.CallChains[2].Calls) {
		t.Error("protocol filter changed the chain of a kept entry point")
	}
}

func TestBuild_DegenerateInputs(t *testing.T) {
	tests := []struct {
		name string
		m    *model.Model
	}{
		{"nil model", nil},
		{"no packages", &model.Model{}},
		{"bodiless functions", &model.Model{Packages: []model.Package{{
			FullName:  "p",
			Functions: []model.FunctionDecl{{Name: "a"}, {Name: "b"}},
		}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			graph, err := Build(context.Background(), tt.m, Options{Frameworks: DefaultPatterns().Tags()})
			if err != nil {
				t.Fatalf("Build error = %v, want nil", err)
			}
			if len(graph.EntryPoints) != 0 || len(graph.CallChains) != 0 {
				t.Errorf("graph = %+v, want empty", graph)
			}
			if graph.EntryPoints == nil || graph.CallChains == nil {
				t.Error("empty graph should carry non-nil slices")
			}
		})
	}
}

func TestBuild_NoActiveFrameworks(t *testing.T) {
	graph, _ := Build(context.Background(), serverModel(), Options{})
	if len(graph.EntryPoints) != 0 {
		t.Errorf("len(EntryPoints) = %d, want 0", len(graph.EntryPoints))
	}
}

func TestBuild_ConcurrentInvocations(t *testing.T) {
	builder := NewBuilder(nil, nil)
	m := serverModel()
	opts := Options{Frameworks: []string{"net/http"}}

	want, _ := builder.Build(context.Background(), m, opts)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, _ := builder.Build(context.Background(), m, opts)
			if got.Stats().Edges != want.Stats().Edges {
				t.Errorf("concurrent build edges = %d, want %d", got.Stats().Edges, want.Stats().Edges)
			}
		}()
	}
	wg.Wait()
}

func TestGraph_Stats(t *testing.T) {
	graph, _ := Build(context.Background(), serverModel(), Options{Frameworks: []string{"net/http"}})
	stats := graph.Stats()

	if stats.EntryPoints != 3 {
		t.Errorf("EntryPoints = %d, want 3", stats.EntryPoints)
	}
	if stats.ByProtocol[ProtocolHTTP] != 3 {
		t.Errorf("ByProtocol[http] = %d, want 3", stats.ByProtocol[ProtocolHTTP])
	}
	if stats.NonEmptyChains != 2 {
		t.Errorf("NonEmptyChains = %d, want 2", stats.NonEmptyChains)
	}
	if stats.InterfaceEdges != 2 {
		t.Errorf("InterfaceEdges = %d, want 2", stats.InterfaceEdges)
	}

	if _, ok := graph.ChainFor(graph.EntryPoints[1].ID); !ok {
		t.Error("ChainFor should find the chain of an existing entry point")
	}
	if _, ok := graph.ChainFor("entry-missing-1"); ok {
		t.Error("ChainFor should not find unknown ids")
	}
}
