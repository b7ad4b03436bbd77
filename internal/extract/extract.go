// Package extract builds a structural model from Go source. Packages are
// discovered with go/packages and each file is parsed with tree-sitter.
package extract

import (
	"context"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	ferrors "archflow/internal/errors"
	"archflow/internal/model"
	"archflow/internal/paths"
	"archflow/internal/slogutil"
)

// Options controls which files are extracted.
type Options struct {
	// IgnoreDirs are directory base names skipped during discovery.
	IgnoreDirs []string
	// IncludeTests adds _test.go files. External test packages become their
	// own package with a "_test" suffix.
	IncludeTests bool
	// Parallelism bounds concurrent package parsing. Zero means GOMAXPROCS.
	Parallelism int
}

// Extractor produces models from source trees.
type Extractor struct {
	logger *slog.Logger
	opts   Options
}

// New creates an extractor. A nil logger discards output.
func New(logger *slog.Logger, opts Options) *Extractor {
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = runtime.GOMAXPROCS(0)
	}
	return &Extractor{logger: logger, opts: opts}
}

// fileDecls is what one parsed file contributes to its package.
type fileDecls struct {
	file        string
	packageName string
	imports     []string
	structs     []model.StructDecl
	interfaces  []model.InterfaceDecl
	functions   []model.FunctionDecl
	methods     []receiverMethod
	syntaxError bool
}

// receiverMethod is a method whose owning struct is not known until every
// file of the package has been parsed.
type receiverMethod struct {
	receiverType string
	decl         model.MethodDecl
}

// fileParser turns one source file into declarations. Implementations are
// not safe for concurrent use.
type fileParser interface {
	parse(ctx context.Context, file string, src []byte) (*fileDecls, error)
}

// ExtractDir extracts every package under root.
func (e *Extractor) ExtractDir(ctx context.Context, root string) (*model.Model, error) {
	if !Available() {
		return nil, unavailable()
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, ferrors.New(ferrors.ExtractionFailed, "invalid root "+root, err)
	}
	if info, err := os.Stat(absRoot); err != nil || !info.IsDir() {
		return nil, ferrors.New(ferrors.ExtractionFailed, absRoot+" is not a directory", err)
	}

	sources, err := e.discover(ctx, absRoot)
	if err != nil {
		return nil, err
	}

	results := make([][]model.Package, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Parallelism)
	for i, src := range sources {
		g.Go(func() error {
			parser, err := newFileParser()
			if err != nil {
				return err
			}
			decls := make([]*fileDecls, 0, len(src.files))
			for _, file := range src.files {
				d, err := e.parseFile(gctx, parser, absRoot, file)
				if err != nil {
					return err
				}
				decls = append(decls, d)
			}
			results[i] = assemble(src, decls)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	m := &model.Model{Root: absRoot, Packages: make([]model.Package, 0, len(sources))}
	for _, pkgs := range results {
		m.Packages = append(m.Packages, pkgs...)
	}

	stats := m.Stats()
	e.logger.Info("Extracted model",
		"root", absRoot,
		"packages", stats.Packages,
		"functions", stats.Functions,
		"methods", stats.Methods,
		"callSites", stats.CallSites,
	)
	return m, nil
}

// ExtractSource extracts a single file as the package pkgPath. file is the
// path recorded in locations.
func (e *Extractor) ExtractSource(ctx context.Context, pkgPath, file string, src []byte) (*model.Package, error) {
	parser, err := newFileParser()
	if err != nil {
		return nil, err
	}
	d, err := parser.parse(ctx, paths.NormalizePath(file), src)
	if err != nil {
		return nil, ferrors.New(ferrors.ExtractionFailed, "failed to parse "+file, err)
	}
	pkgs := assemble(packageSource{
		id:       pkgPath,
		fullName: pkgPath,
		relDir:   path.Dir(paths.NormalizePath(file)),
	}, []*fileDecls{d})
	return &pkgs[0], nil
}

func (e *Extractor) parseFile(ctx context.Context, parser fileParser, root, file string) (*fileDecls, error) {
	src, err := os.ReadFile(file)
	if err != nil {
		return nil, ferrors.New(ferrors.ExtractionFailed, "failed to read "+file, err)
	}
	rel, err := paths.CanonicalizePath(file, root)
	if err != nil {
		rel = paths.NormalizePath(file)
	}
	d, err := parser.parse(ctx, rel, src)
	if err != nil {
		return nil, ferrors.New(ferrors.ExtractionFailed, "failed to parse "+rel, err)
	}
	if d.syntaxError {
		e.logger.Debug("Source has syntax errors; extracted what parsed", "file", rel)
	}
	return d, nil
}

// assemble merges the files of one directory into packages. Methods are
// attached to structs declared anywhere in the same package; methods on
// non-struct types are dropped. Files whose package clause differs from the
// primary name (external tests) form a second package.
func assemble(src packageSource, files []*fileDecls) []model.Package {
	name := src.name
	if name == "" {
		name = primaryName(files)
	}

	primary := newPackage(src, name, src.fullName, src.id)
	var external *packageBuilder
	for _, f := range files {
		target := primary
		if f.packageName != "" && f.packageName != name {
			if external == nil {
				external = newPackage(src, f.packageName, src.fullName+"_test", src.id+"_test")
			}
			target = external
		}
		target.add(f)
	}

	out := []model.Package{primary.build()}
	if external != nil {
		out = append(out, external.build())
	}
	return out
}

type packageBuilder struct {
	pkg     model.Package
	imports map[string]bool
	methods []receiverMethod
}

func newPackage(src packageSource, name, fullName, id string) *packageBuilder {
	return &packageBuilder{
		pkg: model.Package{
			ID:       id,
			Name:     name,
			FullName: fullName,
			Dir:      src.relDir,
		},
		imports: make(map[string]bool),
	}
}

func (b *packageBuilder) add(f *fileDecls) {
	for _, imp := range f.imports {
		b.imports[imp] = true
	}
	full := b.pkg.FullName
	for _, s := range f.structs {
		s.Package = full
		b.pkg.Structs = append(b.pkg.Structs, s)
	}
	for _, i := range f.interfaces {
		i.Package = full
		b.pkg.Interfaces = append(b.pkg.Interfaces, i)
	}
	for _, fn := range f.functions {
		fn.Package = full
		b.pkg.Functions = append(b.pkg.Functions, fn)
	}
	b.methods = append(b.methods, f.methods...)
	if f.file != "" {
		b.pkg.Files = append(b.pkg.Files, f.file)
	}
}

// primaryName picks the package clause of the first non-test package file.
func primaryName(files []*fileDecls) string {
	for _, f := range files {
		if !strings.HasSuffix(f.packageName, "_test") {
			return f.packageName
		}
	}
	if len(files) > 0 {
		return files[0].packageName
	}
	return ""
}

func (b *packageBuilder) build() model.Package {
	structs := make(map[string]int, len(b.pkg.Structs))
	for i, s := range b.pkg.Structs {
		structs[s.Name] = i
	}
	for _, m := range b.methods {
		i, ok := structs[m.receiverType]
		if !ok {
			continue
		}
		decl := m.decl
		decl.Package = b.pkg.FullName
		decl.Struct = m.receiverType
		b.pkg.Structs[i].Methods = append(b.pkg.Structs[i].Methods, decl)
	}

	b.pkg.Imports = make([]string, 0, len(b.imports))
	for imp := range b.imports {
		b.pkg.Imports = append(b.pkg.Imports, imp)
	}
	sort.Strings(b.pkg.Imports)
	return b.pkg
}

func unavailable() error {
	return ferrors.New(ferrors.ExtractorUnavailable,
		"source extraction requires a cgo build (tree-sitter)", nil)
}

func isExported(name string) bool {
	r, _ := utf8.DecodeRuneInString(name)
	return unicode.IsUpper(r)
}

// receiverTypeName reduces "*Server", "Server[T]" or "*pkg.Server" to "Server".
func receiverTypeName(typ string) string {
	typ = strings.TrimLeft(strings.TrimSpace(typ), "*")
	if i := strings.IndexByte(typ, '['); i >= 0 {
		typ = typ[:i]
	}
	if i := strings.LastIndexByte(typ, '.'); i >= 0 {
		typ = typ[i+1:]
	}
	return typ
}
