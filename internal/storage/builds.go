package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	ferrors "archflow/internal/errors"
	"archflow/internal/flow"
)

// LatestBuild selects the most recent build in LoadBuild and DeleteBuild.
const LatestBuild = "latest"

// timeLayout is fixed width so created_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// BuildMeta describes a stored build.
type BuildMeta struct {
	ID             string    `json:"id" yaml:"id"`
	CreatedAt      time.Time `json:"createdAt" yaml:"createdAt"`
	Source         string    `json:"source" yaml:"source"`
	Root           string    `json:"root,omitempty" yaml:"root,omitempty"`
	Frameworks     []string  `json:"frameworks" yaml:"frameworks"`
	EntryPoints    int       `json:"entryPoints" yaml:"entryPoints"`
	Edges          int       `json:"edges" yaml:"edges"`
	InterfaceEdges int       `json:"interfaceEdges" yaml:"interfaceEdges"`
}

// Build is a stored build with its graph.
type Build struct {
	BuildMeta `yaml:",inline"`
	Graph     *flow.Graph `json:"graph" yaml:"graph"`
}

// EntryRow is one indexed entry point of a stored build.
type EntryRow struct {
	BuildID   string `json:"buildId"`
	EntryID   string `json:"entryId"`
	Protocol  string `json:"protocol"`
	Method    string `json:"method,omitempty"`
	Path      string `json:"path"`
	Handler   string `json:"handler"`
	Framework string `json:"framework"`
	Package   string `json:"package"`
	File      string `json:"file,omitempty"`
	Line      int    `json:"line,omitempty"`
	Edges     int    `json:"edges"`
}

// SaveBuild stores graph under a new id. Source names where the model came
// from (a model file or a directory). ID, CreatedAt and the counts in meta
// are filled in; the completed metadata is returned.
func (db *DB) SaveBuild(ctx context.Context, meta BuildMeta, graph *flow.Graph) (BuildMeta, error) {
	if graph == nil {
		graph = &flow.Graph{}
	}
	stats := graph.Stats()
	meta.ID = uuid.NewString()
	meta.CreatedAt = time.Now().UTC()
	meta.EntryPoints = stats.EntryPoints
	meta.Edges = stats.Edges
	meta.InterfaceEdges = stats.InterfaceEdges
	if meta.Frameworks == nil {
		meta.Frameworks = []string{}
	}

	blob, err := encodeGraph(graph)
	if err != nil {
		return BuildMeta{}, ferrors.New(ferrors.StorageFailure, "failed to encode graph", err)
	}
	frameworks, err := json.Marshal(meta.Frameworks)
	if err != nil {
		return BuildMeta{}, ferrors.New(ferrors.StorageFailure, "failed to encode frameworks", err)
	}

	err = db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO builds (id, created_at, source, root, frameworks, entry_points, edges, interface_edges, graph)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, meta.ID, meta.CreatedAt.Format(timeLayout), meta.Source, meta.Root, string(frameworks),
			meta.EntryPoints, meta.Edges, meta.InterfaceEdges, blob)
		if err != nil {
			return fmt.Errorf("failed to insert build: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO entry_points (build_id, ordinal, entry_id, protocol, method, path, handler,
				framework, package, package_dir, file, line, edges)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare entry insert: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for i, ep := range graph.EntryPoints {
			edges := 0
			if i < len(graph.CallChains) {
				edges = len(graph.CallChains[i].Calls)
			}
			if _, err := stmt.ExecContext(ctx, meta.ID, i, ep.ID, string(ep.Protocol), ep.Method, ep.Path,
				ep.Handler, ep.Framework, ep.Package, ep.PackageDir, ep.Location.File, ep.Location.Line, edges); err != nil {
				return fmt.Errorf("failed to insert entry point %s: %w", ep.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return BuildMeta{}, ferrors.New(ferrors.StorageFailure, "failed to save build", err)
	}

	db.logger.Info("Saved build",
		"id", meta.ID,
		"entry_points", meta.EntryPoints,
		"edges", meta.Edges,
		"bytes", len(blob),
	)
	return meta, nil
}

// ListBuilds returns build metadata, newest first. A limit of zero or less
// returns every build.
func (db *DB) ListBuilds(ctx context.Context, limit int) ([]BuildMeta, error) {
	query := `
		SELECT id, created_at, source, root, frameworks, entry_points, edges, interface_edges
		FROM builds
		ORDER BY created_at DESC, rowid DESC
	`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, ferrors.New(ferrors.StorageFailure, "failed to list builds", err)
	}
	defer func() { _ = rows.Close() }()

	builds := []BuildMeta{}
	for rows.Next() {
		meta, err := scanMeta(rows)
		if err != nil {
			return nil, ferrors.New(ferrors.StorageFailure, "failed to read build", err)
		}
		builds = append(builds, meta)
	}
	if err := rows.Err(); err != nil {
		return nil, ferrors.New(ferrors.StorageFailure, "failed to list builds", err)
	}
	return builds, nil
}

// LoadBuild returns the build identified by ref: a full id, a unique id
// prefix, or LatestBuild.
func (db *DB) LoadBuild(ctx context.Context, ref string) (*Build, error) {
	id, err := db.resolveID(ctx, ref)
	if err != nil {
		return nil, err
	}

	row := db.conn.QueryRowContext(ctx, `
		SELECT id, created_at, source, root, frameworks, entry_points, edges, interface_edges, graph
		FROM builds WHERE id = ?
	`, id)

	var (
		b          Build
		created    string
		frameworks string
		blob       []byte
	)
	err = row.Scan(&b.ID, &created, &b.Source, &b.Root, &frameworks,
		&b.EntryPoints, &b.Edges, &b.InterfaceEdges, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, buildNotFound(ref)
	}
	if err != nil {
		return nil, ferrors.New(ferrors.StorageFailure, "failed to load build", err)
	}
	if err := fillMeta(&b.BuildMeta, created, frameworks); err != nil {
		return nil, ferrors.New(ferrors.StorageFailure, "failed to read build", err)
	}

	b.Graph, err = decodeGraph(blob)
	if err != nil {
		return nil, ferrors.New(ferrors.StorageFailure, "failed to decode graph", err)
	}
	return &b, nil
}

// DeleteBuild removes a build and its entry rows, returning the deleted id.
func (db *DB) DeleteBuild(ctx context.Context, ref string) (string, error) {
	id, err := db.resolveID(ctx, ref)
	if err != nil {
		return "", err
	}
	res, err := db.conn.ExecContext(ctx, "DELETE FROM builds WHERE id = ?", id)
	if err != nil {
		return "", ferrors.New(ferrors.StorageFailure, "failed to delete build", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return "", buildNotFound(ref)
	}
	db.logger.Info("Deleted build", "id", id)
	return id, nil
}

// EntryPointsByProtocol lists the entry rows of a build, in discovery order.
// An empty protocol matches every row.
func (db *DB) EntryPointsByProtocol(ctx context.Context, ref string, protocol flow.Protocol) ([]EntryRow, error) {
	id, err := db.resolveID(ctx, ref)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT build_id, entry_id, protocol, method, path, handler, framework, package, file, line, edges
		FROM entry_points WHERE build_id = ?
	`
	args := []interface{}{id}
	if protocol != "" {
		query += " AND protocol = ?"
		args = append(args, string(protocol))
	}
	query += " ORDER BY ordinal"

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, ferrors.New(ferrors.StorageFailure, "failed to query entry points", err)
	}
	defer func() { _ = rows.Close() }()

	result := []EntryRow{}
	for rows.Next() {
		var r EntryRow
		if err := rows.Scan(&r.BuildID, &r.EntryID, &r.Protocol, &r.Method, &r.Path, &r.Handler,
			&r.Framework, &r.Package, &r.File, &r.Line, &r.Edges); err != nil {
			return nil, ferrors.New(ferrors.StorageFailure, "failed to read entry point", err)
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, ferrors.New(ferrors.StorageFailure, "failed to query entry points", err)
	}
	return result, nil
}

// resolveID maps a build reference to a stored id.
func (db *DB) resolveID(ctx context.Context, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", ferrors.New(ferrors.BuildNotFound, "build id is empty", nil)
	}

	if ref == LatestBuild {
		var id string
		err := db.conn.QueryRowContext(ctx,
			"SELECT id FROM builds ORDER BY created_at DESC, rowid DESC LIMIT 1").Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return "", ferrors.New(ferrors.BuildNotFound, "no builds stored", nil)
		}
		if err != nil {
			return "", ferrors.New(ferrors.StorageFailure, "failed to find latest build", err)
		}
		return id, nil
	}

	// Prefixes match literally; LIKE would treat % and _ as wildcards.
	rows, err := db.conn.QueryContext(ctx,
		"SELECT id FROM builds WHERE substr(id, 1, length(?)) = ? LIMIT 2", ref, ref)
	if err != nil {
		return "", ferrors.New(ferrors.StorageFailure, "failed to resolve build id", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", ferrors.New(ferrors.StorageFailure, "failed to resolve build id", err)
		}
		if id == ref {
			return id, nil
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return "", ferrors.New(ferrors.StorageFailure, "failed to resolve build id", err)
	}

	switch len(ids) {
	case 0:
		return "", buildNotFound(ref)
	case 1:
		return ids[0], nil
	default:
		return "", ferrors.Newf(ferrors.BuildNotFound, "build id prefix %q is ambiguous", ref)
	}
}

func buildNotFound(ref string) error {
	return ferrors.Newf(ferrors.BuildNotFound, "build %q not found", ref)
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanMeta(s scanner) (BuildMeta, error) {
	var (
		meta       BuildMeta
		created    string
		frameworks string
	)
	if err := s.Scan(&meta.ID, &created, &meta.Source, &meta.Root, &frameworks,
		&meta.EntryPoints, &meta.Edges, &meta.InterfaceEdges); err != nil {
		return BuildMeta{}, err
	}
	if err := fillMeta(&meta, created, frameworks); err != nil {
		return BuildMeta{}, err
	}
	return meta, nil
}

func fillMeta(meta *BuildMeta, created, frameworks string) error {
	t, err := time.Parse(timeLayout, created)
	if err != nil {
		return fmt.Errorf("invalid created_at %q: %w", created, err)
	}
	meta.CreatedAt = t
	if err := json.Unmarshal([]byte(frameworks), &meta.Frameworks); err != nil {
		return fmt.Errorf("invalid frameworks: %w", err)
	}
	return nil
}

func encodeGraph(g *flow.Graph) ([]byte, error) {
	data, err := json.Marshal(g)
	if err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, err
	}
	defer func() { _ = enc.Close() }()
	return enc.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
}

func decodeGraph(blob []byte) (*flow.Graph, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	data, err := dec.DecodeAll(blob, nil)
	if err != nil {
		return nil, err
	}
	var g flow.Graph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, err
	}
	return &g, nil
}
