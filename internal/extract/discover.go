package extract

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/mod/modfile"
	"golang.org/x/tools/go/packages"

	ferrors "archflow/internal/errors"
	"archflow/internal/paths"
)

// packageSource is one directory's worth of files to parse.
type packageSource struct {
	id       string
	name     string // empty when discovery could not tell
	fullName string
	dir      string // absolute
	relDir   string // relative to the extraction root, "." for the root
	files    []string
}

const loadMode = packages.NeedName | packages.NeedFiles

// discover lists the packages under root. go/packages is asked first; when
// the go command is missing or the tree is not a module, the directory
// tree is walked instead.
func (e *Extractor) discover(ctx context.Context, root string) ([]packageSource, error) {
	sources, err := e.loadPackages(ctx, root)
	if err != nil {
		e.logger.Warn("go/packages discovery failed; walking directories", "root", root, "error", err)
		sources, err = e.walkPackages(root)
		if err != nil {
			return nil, ferrors.New(ferrors.ExtractionFailed, "failed to discover packages under "+root, err)
		}
	}
	if e.opts.IncludeTests {
		for i := range sources {
			sources[i].files = append(sources[i].files, e.testFiles(sources[i].dir)...)
		}
	}
	e.logger.Debug("Discovered packages", "root", root, "count", len(sources))
	return sources, nil
}

func (e *Extractor) loadPackages(ctx context.Context, root string) ([]packageSource, error) {
	cfg := &packages.Config{
		Context: ctx,
		Dir:     root,
		Mode:    loadMode,
		Logf: func(format string, args ...interface{}) {
			e.logger.Debug("go/packages", "detail", strings.TrimSpace(fmt.Sprintf(format, args...)))
		},
	}
	pkgs, err := packages.Load(cfg, "./...")
	if err != nil {
		return nil, err
	}
	if len(pkgs) == 0 {
		return nil, ferrors.Newf(ferrors.ExtractionFailed, "no packages found")
	}

	sources := make([]packageSource, 0, len(pkgs))
	for _, pkg := range pkgs {
		for _, perr := range pkg.Errors {
			e.logger.Debug("Package load error", "package", pkg.PkgPath, "error", perr.Msg)
		}
		if len(pkg.GoFiles) == 0 {
			continue
		}
		dir := filepath.Dir(pkg.GoFiles[0])
		if !paths.IsWithinRepo(dir, root) {
			e.logger.Debug("Skipping package outside root", "package", pkg.PkgPath, "dir", dir)
			continue
		}
		rel, err := paths.CanonicalizePath(dir, root)
		if err != nil || e.ignored(rel) {
			continue
		}
		files := append([]string(nil), pkg.GoFiles...)
		sort.Strings(files)
		sources = append(sources, packageSource{
			id:       pkg.ID,
			name:     pkg.Name,
			fullName: pkg.PkgPath,
			dir:      dir,
			relDir:   rel,
			files:    files,
		})
	}
	sortSources(sources)
	return sources, nil
}

// walkPackages groups non-test .go files by directory. Package names are
// left to the parser; import paths come from go.mod when there is one.
func (e *Extractor) walkPackages(root string) ([]packageSource, error) {
	modulePath := readModulePath(root)
	byDir := make(map[string]*packageSource)

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if p != root && e.skipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(p, ".go") || strings.HasSuffix(p, "_test.go") {
			return nil
		}
		dir := filepath.Dir(p)
		src, ok := byDir[dir]
		if !ok {
			rel, err := paths.CanonicalizePath(dir, root)
			if err != nil {
				return nil
			}
			full := path.Join(modulePath, rel)
			if modulePath == "" {
				full = rel
			}
			src = &packageSource{id: full, fullName: full, dir: dir, relDir: rel}
			byDir[dir] = src
		}
		src.files = append(src.files, p)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sources := make([]packageSource, 0, len(byDir))
	for _, src := range byDir {
		sort.Strings(src.files)
		sources = append(sources, *src)
	}
	sortSources(sources)
	return sources, nil
}

func (e *Extractor) testFiles(dir string) []string {
	matches, err := filepath.Glob(filepath.Join(dir, "*_test.go"))
	if err != nil {
		return nil
	}
	sort.Strings(matches)
	return matches
}

// skipDir mirrors the go command's rules plus the configured ignore list.
func (e *Extractor) skipDir(name string) bool {
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") || name == "testdata" {
		return true
	}
	for _, ignore := range e.opts.IgnoreDirs {
		if name == ignore {
			return true
		}
	}
	return false
}

// ignored reports whether any segment of a relative directory is skipped.
func (e *Extractor) ignored(relDir string) bool {
	if relDir == "." {
		return false
	}
	for _, segment := range strings.Split(relDir, "/") {
		if e.skipDir(segment) {
			return true
		}
	}
	return false
}

func readModulePath(root string) string {
	data, err := os.ReadFile(filepath.Join(root, "go.mod"))
	if err != nil {
		return ""
	}
	return modfile.ModulePath(data)
}

func sortSources(sources []packageSource) {
	sort.Slice(sources, func(i, j int) bool {
		return sources[i].fullName < sources[j].fullName
	})
}
