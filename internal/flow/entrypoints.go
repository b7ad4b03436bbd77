package flow

import (
	"strings"

	"archflow/internal/model"
)

// inlineHandlerPrefix marks an anonymous function literal passed as handler.
const inlineHandlerPrefix = "func("

// detection is an entry point together with the package it was found in.
type detection struct {
	EntryPoint
	pkg *model.Package
}

// DetectEntryPoints scans every function and struct method body of the model
// for call sites registered by an active framework. Entry points come out in
// package, function, struct method, call site order.
func DetectEntryPoints(m *model.Model, opts Options, table *PatternTable) []EntryPoint {
	found := detect(m, opts, table)
	entryPoints := make([]EntryPoint, 0, len(found))
	for _, d := range found {
		entryPoints = append(entryPoints, d.EntryPoint)
	}
	return entryPoints
}

func detect(m *model.Model, opts Options, table *PatternTable) []detection {
	if m == nil {
		return nil
	}
	if table == nil {
		table = DefaultPatterns()
	}

	var found []detection
	add := func(pkg *model.Package, eps ...EntryPoint) {
		for _, ep := range eps {
			found = append(found, detection{EntryPoint: ep, pkg: pkg})
		}
	}

	active := toSet(opts.Frameworks)
	for i := range m.Packages {
		pkg := &m.Packages[i]

		for j := range pkg.Functions {
			fn := &pkg.Functions[j]
			if active[FrameworkMain] && fn.Name == "main" {
				add(pkg, mainEntryPoint(pkg, fn))
			}
			if fn.Body != nil {
				add(pkg, scanCalls(pkg, fn.Body.Calls, table, active)...)
			}
		}

		for j := range pkg.Structs {
			for k := range pkg.Structs[j].Methods {
				method := &pkg.Structs[j].Methods[k]
				if method.Body != nil {
					add(pkg, scanCalls(pkg, method.Body.Calls, table, active)...)
				}
			}
		}
	}

	return filterProtocols(found, opts.Protocols)
}

// scanCalls produces one entry point per call site matching the table.
func scanCalls(pkg *model.Package, calls []model.CallSite, table *PatternTable, active map[string]bool) []EntryPoint {
	var found []EntryPoint
	for _, call := range calls {
		framework, pattern, ok := table.Match(call.Callee, active)
		if !ok {
			continue
		}
		path, handler := routeArgs(call.Args)
		found = append(found, EntryPoint{
			ID:         EntryPointID(pkg.FullName, call.Location.StartLine),
			Protocol:   pattern.Protocol,
			Method:     pattern.Method,
			Path:       path,
			Handler:    handler,
			Framework:  framework,
			Package:    pkg.FullName,
			PackageDir: pkg.Dir,
			Location: Location{
				File: call.Location.File,
				Line: call.Location.StartLine,
			},
		})
	}
	return found
}

// routeArgs extracts path and handler from registration arguments. A
// "METHOD /path" first argument is kept intact.
func routeArgs(args []string) (path, handler string) {
	if len(args) > 0 {
		path = args[0]
	}
	if len(args) > 1 {
		handler = args[1]
		if strings.HasPrefix(handler, inlineHandlerPrefix) {
			handler = ""
		}
	}
	return path, handler
}

func mainEntryPoint(pkg *model.Package, fn *model.FunctionDecl) EntryPoint {
	return EntryPoint{
		ID:         EntryPointID(pkg.FullName, fn.Location.StartLine),
		Protocol:   ProtocolCLI,
		Handler:    packageName(pkg) + "." + fn.Name,
		Framework:  FrameworkMain,
		Package:    pkg.FullName,
		PackageDir: pkg.Dir,
		Location: Location{
			File: fn.Location.File,
			Line: fn.Location.StartLine,
		},
	}
}

// packageName falls back to the last path segment when the declared name is
// missing.
func packageName(pkg *model.Package) string {
	if pkg.Name != "" {
		return pkg.Name
	}
	if i := strings.LastIndex(pkg.FullName, "/"); i >= 0 {
		return pkg.FullName[i+1:]
	}
	return pkg.FullName
}

func filterProtocols(found []detection, protocols []string) []detection {
	if len(protocols) == 0 {
		return found
	}
	keep := toSet(protocols)
	filtered := make([]detection, 0, len(found))
	for _, d := range found {
		if keep[string(d.Protocol)] {
			filtered = append(filtered, d)
		}
	}
	return filtered
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}
