package graphdb

import (
	"context"
	"errors"
	"strings"
	"testing"

	ferrors "archflow/internal/errors"
	"archflow/internal/flow"
	"archflow/internal/slogutil"
)

type recorder struct {
	queries []string
	batches []int
	failOn  string
}

func (r *recorder) run(_ context.Context, cypher string, params map[string]any) error {
	if r.failOn != "" && strings.Contains(cypher, r.failOn) {
		return errors.New("connection reset")
	}
	r.queries = append(r.queries, cypher)
	if batch, ok := params["batch"].([]map[string]any); ok {
		r.batches = append(r.batches, len(batch))
	}
	return nil
}

func testGraph() *flow.Graph {
	return &flow.Graph{
		EntryPoints: []flow.EntryPoint{
			{ID: "e1", Protocol: flow.ProtocolHTTP, Method: "GET", Path: "/a", Handler: "h.a", Package: "app/api",
				Location: flow.Location{File: "api/r.go", Line: 7}},
			{ID: "e2", Protocol: flow.ProtocolHTTP, Path: "/b", Handler: "h.a", Package: "app/api"},
			{ID: "e3", Protocol: flow.ProtocolCLI, Handler: "", Package: "app"},
		},
		CallChains: []flow.CallChain{
			{ID: "c1", EntryPoint: "e1", Calls: []flow.CallEdge{
				{From: "Handler.a", To: "h.store.Get", Type: flow.DispatchInterface, Confidence: 0.8},
				{From: "Handler.a", To: "render", Type: flow.DispatchDirect, Confidence: 0.7},
			}},
			{ID: "c2", EntryPoint: "e2", Calls: []flow.CallEdge{
				{From: "Handler.a", To: "render", Type: flow.DispatchDirect, Confidence: 0.7},
			}},
			{ID: "c3", EntryPoint: "e3", Calls: []flow.CallEdge{}},
		},
	}
}

func TestBuildRows(t *testing.T) {
	rows := buildRows(testGraph(), "b1")

	if len(rows.entries) != 3 {
		t.Errorf("entries = %d, want 3", len(rows.entries))
	}
	if got := rows.entries[0]["line"]; got != int64(7) {
		t.Errorf("line = %v, want 7", got)
	}
	if got := rows.entries[0]["build"]; got != "b1" {
		t.Errorf("build = %v, want b1", got)
	}

	// Handler.a, h.store.Get, render
	if len(rows.funcs) != 3 {
		t.Errorf("funcs = %v, want 3", rows.funcs)
	}
	// e3 has neither handler nor edges
	if len(rows.handledBy) != 2 {
		t.Errorf("handledBy = %v, want 2", rows.handledBy)
	}
	if got := rows.handledBy[0]["func"]; got != funcKey("app/api", "Handler.a") {
		t.Errorf("handled by = %v", got)
	}
	if len(rows.calls) != 2 {
		t.Errorf("calls = %v, want 2", rows.calls)
	}
	if got := rows.calls[0]["dispatch"]; got != "interface" {
		t.Errorf("dispatch = %v, want interface", got)
	}
}

func TestBuildRows_Nil(t *testing.T) {
	rows := buildRows(nil, "b")
	if len(rows.entries)+len(rows.funcs)+len(rows.handledBy)+len(rows.calls) != 0 {
		t.Errorf("rows = %+v, want empty", rows)
	}
}

func TestExport_Batches(t *testing.T) {
	rec := &recorder{}
	e := newExporter(rec.run, 2, slogutil.NewDiscardLogger(), nil)

	res, err := e.Export(context.Background(), testGraph(), "b1")
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if res.EntryPoints != 3 || res.Funcs != 3 || res.HandledBy != 2 || res.Calls != 2 {
		t.Errorf("result = %+v", res)
	}
	// entries 2+1, funcs 2+1, handledBy 2, calls 2
	want := []int{2, 1, 2, 1, 2, 2}
	if len(rec.batches) != len(want) {
		t.Fatalf("batches = %v, want %v", rec.batches, want)
	}
	for i := range want {
		if rec.batches[i] != want[i] {
			t.Errorf("batch[%d] = %d, want %d", i, rec.batches[i], want[i])
		}
	}
	if res.Batches != len(want) {
		t.Errorf("Batches = %d, want %d", res.Batches, len(want))
	}
}

func TestExport_Failure(t *testing.T) {
	rec := &recorder{failOn: "CALLS"}
	e := newExporter(rec.run, 0, slogutil.NewDiscardLogger(), nil)

	_, err := e.Export(context.Background(), testGraph(), "b1")
	if !ferrors.Is(err, ferrors.ExportFailed) {
		t.Fatalf("err = %v, want %s", err, ferrors.ExportFailed)
	}
	if !strings.Contains(err.Error(), "call edges") {
		t.Errorf("err = %v, want mention of call edges", err)
	}
}

func TestCleanAndIndexes(t *testing.T) {
	rec := &recorder{}
	e := newExporter(rec.run, 0, slogutil.NewDiscardLogger(), nil)
	ctx := context.Background()

	if err := e.Clean(ctx); err != nil {
		t.Fatalf("Clean failed: %v", err)
	}
	if err := e.CreateIndexes(ctx); err != nil {
		t.Fatalf("CreateIndexes failed: %v", err)
	}
	if len(rec.queries) != 6 {
		t.Errorf("queries = %d, want 6", len(rec.queries))
	}
	if e.batchSize != DefaultBatchSize {
		t.Errorf("batchSize = %d, want %d", e.batchSize, DefaultBatchSize)
	}
	if err := e.Verify(ctx); err != nil {
		t.Errorf("Verify without driver: %v", err)
	}
	if err := e.Close(ctx); err != nil {
		t.Errorf("Close without driver: %v", err)
	}
}

func TestNew_InvalidURI(t *testing.T) {
	_, err := New(Config{URI: "ftp://nowhere"}, nil)
	if !ferrors.Is(err, ferrors.ExportFailed) {
		t.Errorf("err = %v, want %s", err, ferrors.ExportFailed)
	}
}
