// Package graphdb writes flow graphs into Neo4j.
package graphdb

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	ferrors "archflow/internal/errors"
	"archflow/internal/flow"
	"archflow/internal/slogutil"
)

// DefaultBatchSize is the number of rows sent per UNWIND statement.
const DefaultBatchSize = 500

// Config holds the connection settings.
type Config struct {
	URI       string
	User      string
	Password  string
	Database  string
	BatchSize int
}

type runFunc func(ctx context.Context, cypher string, params map[string]any) error

// Exporter loads flow graphs into Neo4j with batched UNWIND queries.
//
// Graph shape:
//
//	(:EntryPoint {id, build, protocol, method, path, handler, framework, package, file, line})
//	(:Func {key, name, package})
//	(:EntryPoint)-[:HANDLED_BY]->(:Func)
//	(:Func)-[:CALLS {dispatch, confidence}]->(:Func)
type Exporter struct {
	driver    neo4j.DriverWithContext
	run       runFunc
	batchSize int
	logger    *slog.Logger
}

// New creates an exporter. It does not contact the server; call Verify for that.
func New(cfg Config, logger *slog.Logger) (*Exporter, error) {
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.User, cfg.Password, ""))
	if err != nil {
		return nil, ferrors.New(ferrors.ExportFailed, "failed to create neo4j driver", err)
	}

	var opts []neo4j.ExecuteQueryConfigurationOption
	if cfg.Database != "" {
		opts = append(opts, neo4j.ExecuteQueryWithDatabase(cfg.Database))
	}
	run := func(ctx context.Context, cypher string, params map[string]any) error {
		_, err := neo4j.ExecuteQuery(ctx, driver, cypher, params, neo4j.EagerResultTransformer, opts...)
		return err
	}
	return newExporter(run, cfg.BatchSize, logger, driver), nil
}

func newExporter(run runFunc, batchSize int, logger *slog.Logger, driver neo4j.DriverWithContext) *Exporter {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Exporter{driver: driver, run: run, batchSize: batchSize, logger: logger}
}

// Verify checks that the server is reachable with the configured credentials.
func (e *Exporter) Verify(ctx context.Context) error {
	if e.driver == nil {
		return nil
	}
	if err := e.driver.VerifyConnectivity(ctx); err != nil {
		return ferrors.New(ferrors.ExportFailed, "neo4j is not reachable", err)
	}
	return nil
}

// Close releases the driver.
func (e *Exporter) Close(ctx context.Context) error {
	if e.driver == nil {
		return nil
	}
	return e.driver.Close(ctx)
}

// Clean removes every node and relationship previously written by Export.
func (e *Exporter) Clean(ctx context.Context) error {
	e.logger.Info("Cleaning existing flow graph")
	queries := []string{
		"MATCH ()-[r:CALLS]->() DELETE r",
		"MATCH ()-[r:HANDLED_BY]->() DELETE r",
		"MATCH (n:EntryPoint) DETACH DELETE n",
		"MATCH (n:Func) DETACH DELETE n",
	}
	for _, q := range queries {
		if err := e.run(ctx, q, nil); err != nil {
			return ferrors.New(ferrors.ExportFailed, "failed to clean graph", err)
		}
	}
	return nil
}

// CreateIndexes ensures the lookup indexes used by Export exist.
func (e *Exporter) CreateIndexes(ctx context.Context) error {
	indexes := []string{
		"CREATE INDEX archflow_entry_id IF NOT EXISTS FOR (n:EntryPoint) ON (n.id)",
		"CREATE INDEX archflow_func_key IF NOT EXISTS FOR (n:Func) ON (n.key)",
	}
	for _, q := range indexes {
		if err := e.run(ctx, q, nil); err != nil {
			return ferrors.New(ferrors.ExportFailed, "failed to create indexes", err)
		}
	}
	return nil
}

// Result counts what Export wrote.
type Result struct {
	EntryPoints int `json:"entryPoints"`
	Funcs       int `json:"funcs"`
	HandledBy   int `json:"handledBy"`
	Calls       int `json:"calls"`
	Batches     int `json:"batches"`
}

const (
	entryCypher = `UNWIND $batch AS row
		MERGE (n:EntryPoint {id: row.id, build: row.build})
		SET n.protocol = row.protocol, n.method = row.method, n.path = row.path,
		    n.handler = row.handler, n.framework = row.framework, n.package = row.package,
		    n.file = row.file, n.line = row.line`
	funcCypher = `UNWIND $batch AS row
		MERGE (n:Func {key: row.key})
		SET n.name = row.name, n.package = row.package`
	handledByCypher = `UNWIND $batch AS row
		MATCH (e:EntryPoint {id: row.entry, build: row.build}), (f:Func {key: row.func})
		MERGE (e)-[:HANDLED_BY]->(f)`
	callCypher = `UNWIND $batch AS row
		MATCH (a:Func {key: row.from}), (b:Func {key: row.to})
		MERGE (a)-[r:CALLS]->(b)
		SET r.dispatch = row.dispatch, r.confidence = row.confidence`
)

// Export writes g, tagging entry points with buildID.
func (e *Exporter) Export(ctx context.Context, g *flow.Graph, buildID string) (Result, error) {
	rows := buildRows(g, buildID)
	res := Result{
		EntryPoints: len(rows.entries),
		Funcs:       len(rows.funcs),
		HandledBy:   len(rows.handledBy),
		Calls:       len(rows.calls),
	}

	steps := []struct {
		what   string
		cypher string
		rows   []map[string]any
	}{
		{"entry points", entryCypher, rows.entries},
		{"functions", funcCypher, rows.funcs},
		{"handler links", handledByCypher, rows.handledBy},
		{"call edges", callCypher, rows.calls},
	}
	for _, step := range steps {
		e.logger.Debug("Loading rows", "kind", step.what, "count", len(step.rows))
		n, err := e.load(ctx, step.cypher, step.rows)
		res.Batches += n
		if err != nil {
			return res, ferrors.New(ferrors.ExportFailed, fmt.Sprintf("failed to load %s", step.what), err)
		}
	}

	e.logger.Info("Exported flow graph",
		"build", buildID,
		"entry_points", res.EntryPoints,
		"funcs", res.Funcs,
		"calls", res.Calls,
	)
	return res, nil
}

// load sends rows in batches and returns the number of statements run.
func (e *Exporter) load(ctx context.Context, cypher string, rows []map[string]any) (int, error) {
	batches := 0
	for start := 0; start < len(rows); start += e.batchSize {
		end := min(start+e.batchSize, len(rows))
		if err := e.run(ctx, cypher, map[string]any{"batch": rows[start:end]}); err != nil {
			return batches, err
		}
		batches++
	}
	return batches, nil
}
