//go:build cgo

package extract

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"archflow/internal/flow"
	"archflow/internal/model"
)

const serverSource = `package api

import (
	"fmt"
	"net/http"
)

type Store interface {
	Find(id string) (*Session, error)
	Save(s *Session) error
}

type Server struct {
	store Store
	cache *Cache
	*http.Server
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("/sessions", s.handleSessions)
	mux.HandleFunc(` + "`/health`" + `, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	sess, err := s.store.Find(r.URL.Query().Get("id"))
	if err != nil {
		http.Error(w, fmt.Sprintf("lookup: %v", err), http.StatusNotFound)
		return
	}
	done := make(chan bool)
	go s.cache.Warm(sess)
	done <- true
	<-done
}

func New(store Store, opts ...Option) *Server {
	return &Server{store: store}
}

type Option func(*Server)

func (o Option) apply(s *Server) { o(s) }
`

func extractServer(t *testing.T) *model.Package {
	t.Helper()
	pkg, err := New(nil, Options{}).ExtractSource(context.Background(), "example.com/app/internal/api", "internal/api/server.go", []byte(serverSource))
	if err != nil {
		t.Fatalf("ExtractSource failed: %v", err)
	}
	return pkg
}

func TestExtractSource_Declarations(t *testing.T) {
	pkg := extractServer(t)

	if pkg.Name != "api" || pkg.FullName != "example.com/app/internal/api" || pkg.Dir != "internal/api" {
		t.Errorf("package = (%s, %s, %s)", pkg.Name, pkg.FullName, pkg.Dir)
	}
	if len(pkg.Imports) != 2 || pkg.Imports[0] != "fmt" || pkg.Imports[1] != "net/http" {
		t.Errorf("Imports = %v, want [fmt net/http]", pkg.Imports)
	}

	if len(pkg.Interfaces) != 1 || pkg.Interfaces[0].Name != "Store" {
		t.Fatalf("Interfaces = %+v, want Store", pkg.Interfaces)
	}
	if got := pkg.Interfaces[0].Methods; len(got) != 2 || got[0] != "Find" || got[1] != "Save" {
		t.Errorf("Store methods = %v, want [Find Save]", got)
	}

	if len(pkg.Structs) != 1 {
		t.Fatalf("Structs = %d, want 1", len(pkg.Structs))
	}
	server := pkg.Structs[0]
	if f, ok := server.Field("store"); !ok || f.Type != "Store" {
		t.Errorf("store field = %+v, %v", f, ok)
	}
	if f, ok := server.Field("cache"); !ok || f.Type != "*Cache" {
		t.Errorf("cache field = %+v, %v", f, ok)
	}
	if len(server.Embedded) != 1 || server.Embedded[0] != "http.Server" {
		t.Errorf("Embedded = %v, want [http.Server]", server.Embedded)
	}

	// Methods on the Option func type are dropped.
	if len(server.Methods) != 2 {
		t.Fatalf("Server methods = %d, want 2", len(server.Methods))
	}
	handler := server.Methods[1]
	if handler.Name != "handleSessions" || handler.Struct != "Server" || handler.Package != pkg.FullName {
		t.Errorf("handler = %s/%s/%s", handler.Name, handler.Struct, handler.Package)
	}
	if handler.Receiver == nil || handler.Receiver.Name != "s" || handler.Receiver.Type != "*Server" {
		t.Errorf("Receiver = %+v, want s *Server", handler.Receiver)
	}
	if handler.Exported {
		t.Error("handleSessions should not be exported")
	}
	if handler.Location.File != "internal/api/server.go" || handler.Location.StartLine != 26 {
		t.Errorf("Location = %+v, want internal/api/server.go:26", handler.Location)
	}

	if len(pkg.Functions) != 1 {
		t.Fatalf("Functions = %d, want 1", len(pkg.Functions))
	}
	ctor := pkg.Functions[0]
	if !ctor.Exported || len(ctor.Params) != 2 || ctor.Params[1].Type != "...Option" {
		t.Errorf("New = %+v", ctor)
	}
	if len(ctor.Returns) != 1 || ctor.Returns[0] != "*Server" {
		t.Errorf("New returns = %v", ctor.Returns)
	}
}

func TestExtractSource_CallSites(t *testing.T) {
	pkg := extractServer(t)
	routes := pkg.Structs[0].Methods[0]

	calls := routes.Body.Calls
	if len(calls) != 3 {
		t.Fatalf("routes calls = %+v, want 3", calls)
	}
	first := calls[0]
	if first.Callee != "HandleFunc" || first.Qualifier != "mux" {
		t.Errorf("first call = %s.%s", first.Qualifier, first.Callee)
	}
	if len(first.Args) != 2 || first.Args[0] != "/sessions" || first.Args[1] != "s.handleSessions" {
		t.Errorf("first args = %q", first.Args)
	}
	second := calls[1]
	if len(second.Args) != 2 || second.Args[0] != "/health" || second.Args[1] != "func(...)" {
		t.Errorf("raw string and closure args = %q", second.Args)
	}
	if calls[2].Callee != "WriteHeader" || calls[2].Qualifier != "w" {
		t.Errorf("closure call = %s.%s", calls[2].Qualifier, calls[2].Callee)
	}
}

func TestExtractSource_SpawnsAndChannels(t *testing.T) {
	pkg := extractServer(t)
	body := pkg.Structs[0].Methods[1].Body

	if len(body.Spawns) != 1 || body.Spawns[0].Callee != "Warm" || body.Spawns[0].Qualifier != "s.cache" {
		t.Errorf("Spawns = %+v, want s.cache.Warm", body.Spawns)
	}
	for _, c := range body.Calls {
		if c.Callee == "Warm" {
			t.Error("spawned call should not be recorded as a call site")
		}
	}
	if len(body.ChannelOps) != 2 {
		t.Fatalf("ChannelOps = %+v, want 2", body.ChannelOps)
	}
	if body.ChannelOps[0].Kind != model.ChannelSend || body.ChannelOps[1].Kind != model.ChannelReceive {
		t.Errorf("kinds = %s, %s", body.ChannelOps[0].Kind, body.ChannelOps[1].Kind)
	}
	if body.ChannelOps[0].Channel != "done" {
		t.Errorf("channel = %q, want done", body.ChannelOps[0].Channel)
	}
}

func TestExtractSource_FeedsFlowBuilder(t *testing.T) {
	pkg := extractServer(t)
	m := &model.Model{Packages: []model.Package{*pkg}}

	graph, err := flow.Build(context.Background(), m, flow.Options{Frameworks: []string{"net/http"}})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(graph.EntryPoints) != 2 {
		t.Fatalf("entry points = %+v, want 2", graph.EntryPoints)
	}
	chain := graph.CallChains[0]
	var find *flow.CallEdge
	for i := range chain.Calls {
		if chain.Calls[i].To == "s.store.Find" {
			find = &chain.Calls[i]
		}
	}
	if find == nil || find.Type != flow.DispatchInterface {
		t.Errorf("s.store.Find edge = %+v, want interface dispatch", find)
	}
}

func TestExtractDir(t *testing.T) {
	root := t.TempDir()
	write := func(rel, content string) {
		t.Helper()
		p := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	write("go.mod", "module example.com/app\n\ngo 1.22\n")
	write("main.go", "package main\n\nfunc main() {\n\trun()\n}\n\nfunc run() {}\n")
	write("internal/api/api.go", "package api\n\ntype Server struct{}\n")
	write("internal/api/routes.go", "package api\n\nfunc (s *Server) Routes() {}\n")
	write("internal/api/api_test.go", "package api_test\n\nfunc helper() {}\n")
	write("vendor/x/x.go", "package x\n")

	m, err := New(nil, Options{IgnoreDirs: []string{"vendor"}}).ExtractDir(context.Background(), root)
	if err != nil {
		t.Fatalf("ExtractDir failed: %v", err)
	}

	if len(m.Packages) != 2 {
		t.Fatalf("packages = %d, want 2", len(m.Packages))
	}
	mainPkg, api := m.Packages[0], m.Packages[1]
	if mainPkg.FullName != "example.com/app" || mainPkg.Name != "main" || mainPkg.Dir != "." {
		t.Errorf("main package = (%s, %s, %s)", mainPkg.FullName, mainPkg.Name, mainPkg.Dir)
	}
	if api.FullName != "example.com/app/internal/api" || api.Dir != "internal/api" {
		t.Errorf("api package = (%s, %s)", api.FullName, api.Dir)
	}
	if len(api.Structs) != 1 || len(api.Structs[0].Methods) != 1 {
		t.Errorf("method in another file was not attached: %+v", api.Structs)
	}
	if len(api.Files) != 2 || api.Files[0] != "internal/api/api.go" {
		t.Errorf("Files = %v", api.Files)
	}

	withTests, err := New(nil, Options{IncludeTests: true}).ExtractDir(context.Background(), root)
	if err != nil {
		t.Fatalf("ExtractDir with tests failed: %v", err)
	}
	var external bool
	for _, pkg := range withTests.Packages {
		if pkg.FullName == "example.com/app/internal/api_test" && pkg.Name == "api_test" {
			external = true
		}
	}
	if !external {
		t.Error("external test package not extracted")
	}
}
