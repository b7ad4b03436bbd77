package flow

import (
	"strings"

	"archflow/internal/model"
)

// HandlerRef points at the declaration an entry point's handler names. For
// methods it carries the owning struct so field types can be inspected.
type HandlerRef struct {
	Function *model.FunctionDecl
	Method   *model.MethodDecl
	Struct   *model.StructDecl
}

// Resolved reports whether the reference points at a declaration.
func (r HandlerRef) Resolved() bool {
	return r.Function != nil || r.Method != nil
}

// DisplayName is the caller name used on edges: "Struct.method" for methods,
// the bare name for functions.
func (r HandlerRef) DisplayName() string {
	switch {
	case r.Method != nil && r.Struct != nil:
		return r.Struct.Name + "." + r.Method.Name
	case r.Method != nil:
		return r.Method.Name
	case r.Function != nil:
		return r.Function.Name
	default:
		return ""
	}
}

// Body returns the handler body, nil for opaque declarations.
func (r HandlerRef) Body() *model.Body {
	switch {
	case r.Method != nil:
		return r.Method.Body
	case r.Function != nil:
		return r.Function.Body
	default:
		return nil
	}
}

// Params returns the handler's parameter list.
func (r HandlerRef) Params() []model.Param {
	switch {
	case r.Method != nil:
		return r.Method.Params
	case r.Function != nil:
		return r.Function.Params
	default:
		return nil
	}
}

// ResolveHandler finds the function or struct method named by handler within
// pkg. Free functions are searched before struct methods; other packages are
// never searched, so a handler qualified by an imported package name stays
// unresolved.
func ResolveHandler(pkg *model.Package, handler string) (HandlerRef, bool) {
	if pkg == nil {
		return HandlerRef{}, false
	}
	for _, name := range handlerNames(pkg, handler) {
		if fn, ok := pkg.FindFunction(name); ok {
			return HandlerRef{Function: fn}, true
		}
		if method, st, ok := pkg.FindMethod(name); ok {
			return HandlerRef{Method: method, Struct: st}, true
		}
	}
	return HandlerRef{}, false
}

// handlerNames yields the lookup keys for a handler string: the string as
// written, then its selector-free symbol ("s.handleSessions" -> "handleSessions",
// "main.main" -> "main"). Expressions such as "NewHandler(db)" have no symbol,
// and neither does a selector on an imported package ("users.List").
func handlerNames(pkg *model.Package, handler string) []string {
	handler = strings.TrimSpace(handler)
	if handler == "" {
		return nil
	}
	names := []string{handler}

	symbol := strings.TrimLeft(handler, "&*")
	if strings.ContainsAny(symbol, "(){}[] ") {
		return names
	}
	if i := strings.LastIndex(symbol, "."); i >= 0 {
		if importsName(pkg, symbol[:strings.Index(symbol, ".")]) {
			return names
		}
		symbol = symbol[i+1:]
	}
	if symbol != "" && symbol != handler {
		names = append(names, symbol)
	}
	return names
}

// importsName reports whether ident is the name of a package pkg imports.
// The package's own name never counts.
func importsName(pkg *model.Package, ident string) bool {
	if ident == packageName(pkg) {
		return false
	}
	for _, imp := range pkg.Imports {
		if importName(imp) == ident {
			return true
		}
	}
	return false
}

// importName guesses the package name of an import path: the last segment,
// skipping a major version suffix ("x/v5") and dropping a gopkg.in style
// version ("yaml.v3").
func importName(importPath string) string {
	segments := strings.Split(importPath, "/")
	name := segments[len(segments)-1]
	if len(segments) > 1 && isMajorVersion(name) {
		name = segments[len(segments)-2]
	}
	if i := strings.Index(name, ".v"); i > 0 && isMajorVersion(name[i+1:]) {
		name = name[:i]
	}
	return name
}

func isMajorVersion(s string) bool {
	if len(s) < 2 || s[0] != 'v' {
		return false
	}
	for _, r := range s[1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
