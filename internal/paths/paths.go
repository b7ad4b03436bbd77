// Package paths locates archflow's per-repository state directory and
// normalizes source paths against a repository root.
package paths

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	// DirName is the state directory kept at the repository root.
	DirName = ".archflow"

	// DirEnvVar overrides the state directory location.
	DirEnvVar = "ARCHFLOW_DIR"

	configFile   = "config.json"
	databaseFile = "archflow.db"
	patternsFile = "patterns.toml"
)

// StateDir returns the state directory for repoRoot. ARCHFLOW_DIR wins when set.
func StateDir(repoRoot string) string {
	if dir := os.Getenv(DirEnvVar); dir != "" {
		return dir
	}
	return filepath.Join(repoRoot, DirName)
}

// EnsureStateDir creates the state directory if needed and returns it.
func EnsureStateDir(repoRoot string) (string, error) {
	dir := StateDir(repoRoot)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}

func ConfigPath(repoRoot string) string {
	return filepath.Join(StateDir(repoRoot), configFile)
}

func DatabasePath(repoRoot string) string {
	return filepath.Join(StateDir(repoRoot), databaseFile)
}

func PatternsPath(repoRoot string) string {
	return filepath.Join(StateDir(repoRoot), patternsFile)
}

// ResolveIn makes a relative path relative to base. Absolute and empty paths
// are returned unchanged.
func ResolveIn(base, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

// CanonicalizePath converts an absolute path to a repo-relative path with
// forward slashes. Symlinks are resolved when the path exists.
func CanonicalizePath(absolutePath string, repoRoot string) (string, error) {
	resolved, err := evalIfExists(absolutePath)
	if err != nil {
		return "", err
	}
	root, err := evalIfExists(repoRoot)
	if err != nil {
		return "", err
	}

	rel, err := filepath.Rel(root, resolved)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

func evalIfExists(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if os.IsNotExist(err) {
		return path, nil
	}
	return resolved, err
}

// IsWithinRepo reports whether path lies under repoRoot.
func IsWithinRepo(path string, repoRoot string) bool {
	canonical, err := CanonicalizePath(path, repoRoot)
	if err != nil {
		return false
	}
	return canonical != ".." && !strings.HasPrefix(canonical, "../")
}

// NormalizePath converts backslashes to forward slashes.
func NormalizePath(path string) string {
	return strings.ReplaceAll(path, "\\", "/")
}
