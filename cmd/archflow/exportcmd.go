package main

import (
	"github.com/spf13/cobra"

	"archflow/internal/graphdb"
)

var (
	exportURI       string
	exportUser      string
	exportPassword  string
	exportDatabase  string
	exportBatchSize int
	exportClean     bool
	exportFormat    string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored builds to external systems",
}

var exportNeo4jCmd = &cobra.Command{
	Use:   "neo4j <build-id>",
	Short: "Load a stored build into Neo4j",
	Long: `Load a stored build into Neo4j as (:EntryPoint)-[:HANDLED_BY]->(:Func)
and (:Func)-[:CALLS]->(:Func). Connection settings come from the neo4j
section of the config, ARCHFLOW_NEO4J_* variables, or the flags below.

Examples:
  archflow export neo4j latest
  archflow export neo4j 3f2a9c --clean --uri=neo4j://db:7687`,
	Args: cobra.ExactArgs(1),
	Run:  runExportNeo4j,
}

func init() {
	exportNeo4jCmd.Flags().StringVar(&exportURI, "uri", "", "Neo4j URI (default from config)")
	exportNeo4jCmd.Flags().StringVar(&exportUser, "user", "", "Neo4j user (default from config)")
	exportNeo4jCmd.Flags().StringVar(&exportPassword, "password", "", "Neo4j password (default from config or ARCHFLOW_NEO4J_PASSWORD)")
	exportNeo4jCmd.Flags().StringVar(&exportDatabase, "database", "", "Neo4j database (default from config)")
	exportNeo4jCmd.Flags().IntVar(&exportBatchSize, "batch-size", 0, "Rows per UNWIND statement (default from config)")
	exportNeo4jCmd.Flags().BoolVar(&exportClean, "clean", false, "Remove previously exported nodes first")
	exportNeo4jCmd.Flags().StringVar(&exportFormat, "format", "human", "Output format (json, yaml, human)")

	exportCmd.AddCommand(exportNeo4jCmd)
	rootCmd.AddCommand(exportCmd)
}

// ExportResponse is the output of `archflow export neo4j`.
type ExportResponse struct {
	BuildID string         `json:"buildId" yaml:"buildId"`
	URI     string         `json:"uri" yaml:"uri"`
	Result  graphdb.Result `json:"result" yaml:"result"`
}

// neo4jConfig applies non-empty flags over the configured connection.
func neo4jConfig(s *session) graphdb.Config {
	cfg := graphdb.Config{
		URI:       s.cfg.Neo4j.URI,
		User:      s.cfg.Neo4j.User,
		Password:  s.cfg.Neo4j.Password,
		Database:  s.cfg.Neo4j.Database,
		BatchSize: s.cfg.Neo4j.BatchSize,
	}
	if exportURI != "" {
		cfg.URI = exportURI
	}
	if exportUser != "" {
		cfg.User = exportUser
	}
	if exportPassword != "" {
		cfg.Password = exportPassword
	}
	if exportDatabase != "" {
		cfg.Database = exportDatabase
	}
	if exportBatchSize > 0 {
		cfg.BatchSize = exportBatchSize
	}
	return cfg
}

func runExportNeo4j(cmd *cobra.Command, args []string) {
	s := mustSession(".")
	defer s.Close()
	ctx := newContext()

	db := s.mustOpenDB()
	b, err := db.LoadBuild(ctx, args[0])
	_ = db.Close()
	if err != nil {
		fail(err)
	}

	cfg := neo4jConfig(s)
	exporter, err := graphdb.New(cfg, s.logger)
	if err != nil {
		fail(err)
	}
	defer func() { _ = exporter.Close(ctx) }()

	if err := exporter.Verify(ctx); err != nil {
		fail(err)
	}
	if exportClean {
		if err := exporter.Clean(ctx); err != nil {
			fail(err)
		}
	}
	if err := exporter.CreateIndexes(ctx); err != nil {
		fail(err)
	}
	result, err := exporter.Export(ctx, b.Graph, b.ID)
	if err != nil {
		fail(err)
	}

	printResponse(&ExportResponse{BuildID: b.ID, URI: cfg.URI, Result: result}, exportFormat)
}
