package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"archflow/internal/config"
	ferrors "archflow/internal/errors"
	"archflow/internal/extract"
	"archflow/internal/flow"
	"archflow/internal/model"
	"archflow/internal/paths"
	"archflow/internal/slogutil"
	"archflow/internal/storage"
)

// session is the per-command state: repository root, config and logger.
type session struct {
	root    string
	cfg     *config.Config
	logger  *slog.Logger
	logFile *os.File
}

func newSession(dir string) (*session, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadConfig(root)
	if err != nil {
		return nil, ferrors.New(ferrors.ConfigInvalid, "failed to load config", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, ferrors.New(ferrors.ConfigInvalid, err.Error(), err)
	}

	s := &session{root: root, cfg: cfg}
	level := logLevel(cfg.Logging.Level, verbosity, quiet)
	format := slogutil.Format(cfg.Logging.Format)
	if cfg.Logging.File != "" {
		logger, f, err := slogutil.NewFileLogger(paths.ResolveIn(root, cfg.Logging.File), level, format)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		s.logger, s.logFile = logger, f
	} else {
		s.logger = slogutil.NewFormatLogger(os.Stderr, level, format)
	}
	return s, nil
}

// logLevel lets -v and --quiet override the configured level.
func logLevel(configured string, verbosity int, quiet bool) slog.Level {
	if quiet || verbosity > 0 {
		return slogutil.LevelFromVerbosity(verbosity, quiet)
	}
	return slogutil.LevelFromString(configured)
}

func mustSession(dir string) *session {
	s, err := newSession(dir)
	if err != nil {
		fail(err)
	}
	return s
}

func (s *session) Close() {
	if s.logFile != nil {
		_ = s.logFile.Close()
	}
}

// patterns returns the built-in table merged with the configured pattern
// file, or .archflow/patterns.toml when present.
func (s *session) patterns() (*flow.PatternTable, error) {
	table := flow.DefaultPatterns()
	file := s.cfg.PatternsFile
	if file != "" {
		file = paths.ResolveIn(s.root, file)
	} else if _, err := os.Stat(paths.PatternsPath(s.root)); err == nil {
		file = paths.PatternsPath(s.root)
	}
	if file == "" {
		return table, nil
	}

	custom, err := flow.LoadPatternFile(file)
	if err != nil {
		return nil, ferrors.New(ferrors.ConfigInvalid, "failed to load framework patterns", err)
	}
	s.logger.Debug("Loaded custom framework patterns", "file", file, "frameworks", len(custom.Frameworks))
	return table.Merge(custom), nil
}

// flowOptions combines config and flags. Flags win when given.
func (s *session) flowOptions(table *flow.PatternTable, frameworks, protocols []string) flow.Options {
	if len(frameworks) == 0 {
		frameworks = s.cfg.ActiveFrameworks(table.Tags())
	}
	if len(protocols) == 0 {
		protocols = s.cfg.Protocols
	}
	return flow.Options{Frameworks: frameworks, Protocols: protocols}
}

// loadModel reads modelFile when set, otherwise extracts the session root.
// It returns the model and a description of where it came from.
func (s *session) loadModel(ctx context.Context, modelFile string) (*model.Model, string, error) {
	if modelFile != "" {
		m, err := model.Load(modelFile)
		if err != nil {
			return nil, "", err
		}
		s.logger.Info("Loaded model", "file", modelFile, "packages", len(m.Packages))
		return m, modelFile, nil
	}

	m, err := s.extractor().ExtractDir(ctx, s.root)
	if err != nil {
		return nil, "", err
	}
	return m, s.root, nil
}

func (s *session) extractor() *extract.Extractor {
	return extract.New(s.logger, extract.Options{
		IgnoreDirs:   s.cfg.Extract.IgnoreDirs,
		IncludeTests: s.cfg.Extract.IncludeTests,
	})
}

func (s *session) openDB() (*storage.DB, error) {
	db, err := storage.Open(s.cfg.DatabasePath(s.root), s.logger)
	if err != nil {
		return nil, ferrors.New(ferrors.StorageFailure, "failed to open build history", err)
	}
	return db, nil
}

func (s *session) mustOpenDB() *storage.DB {
	db, err := s.openDB()
	if err != nil {
		fail(err)
	}
	return db
}

// fail prints err with any suggested fixes and exits.
func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	for _, fix := range ferrors.GetSuggestedFixes(ferrors.CodeOf(err)) {
		fmt.Fprintf(os.Stderr, "  %s\n", fix.Description)
		if fix.Command != "" {
			fmt.Fprintf(os.Stderr, "    $ %s\n", fix.Command)
		}
	}
	os.Exit(1)
}

func dirArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return "."
}

func newContext() context.Context {
	return context.Background()
}
