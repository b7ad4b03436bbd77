// Package testutil provides fixtures and golden file helpers for tests.
package testutil

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"archflow/internal/model"
)

// FixtureContext holds information about a loaded fixture.
type FixtureContext struct {
	// Name is the fixture directory name under testdata/fixtures.
	Name string

	// Root is the absolute path to the fixture directory
	Root string

	// ModelPath is the hand-written model snapshot, empty when absent.
	ModelPath string

	// ExpectedDir is the path to the expected/ directory
	ExpectedDir string
}

// LoadFixture locates testdata/fixtures/<name>, failing the test when it is
// missing.
func LoadFixture(t *testing.T, name string) *FixtureContext {
	t.Helper()

	fixtureDir := filepath.Join(getFixturesRoot(t), name)
	if _, err := os.Stat(fixtureDir); os.IsNotExist(err) {
		t.Fatalf("Fixture directory not found: %s", fixtureDir)
	}

	modelPath := filepath.Join(fixtureDir, "model.json")
	if _, err := os.Stat(modelPath); err != nil {
		modelPath = ""
	}

	return &FixtureContext{
		Name:        name,
		Root:        fixtureDir,
		ModelPath:   modelPath,
		ExpectedDir: filepath.Join(fixtureDir, "expected"),
	}
}

// Model loads the fixture's model snapshot.
func (f *FixtureContext) Model(t *testing.T) *model.Model {
	t.Helper()

	if f.ModelPath == "" {
		t.Fatalf("Fixture %s has no model.json", f.Name)
	}
	m, err := model.Load(f.ModelPath)
	if err != nil {
		t.Fatalf("Failed to load fixture model: %v", err)
	}
	return m
}

// ExpectedPath returns the path to a golden file within the fixture. The
// name includes its extension.
func (f *FixtureContext) ExpectedPath(name string) string {
	return filepath.Join(f.ExpectedDir, name)
}

// getFixturesRoot returns the absolute path to testdata/fixtures/.
func getFixturesRoot(t *testing.T) string {
	t.Helper()

	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("Failed to get caller information")
	}

	// internal/testutil -> project root
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(thisFile)))
	fixturesRoot := filepath.Join(projectRoot, "testdata", "fixtures")

	if _, err := os.Stat(fixturesRoot); os.IsNotExist(err) {
		t.Fatalf("Fixtures root not found: %s", fixturesRoot)
	}
	return fixturesRoot
}
