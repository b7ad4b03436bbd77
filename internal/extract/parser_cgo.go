//go:build cgo

package extract

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"

	"archflow/internal/model"
)

// Available reports whether this build can parse source.
func Available() bool {
	return true
}

type treeSitterParser struct {
	parser *sitter.Parser
}

func newFileParser() (fileParser, error) {
	p := sitter.NewParser()
	p.SetLanguage(golang.GetLanguage())
	return &treeSitterParser{parser: p}, nil
}

func (p *treeSitterParser) parse(ctx context.Context, file string, src []byte) (*fileDecls, error) {
	tree, err := p.parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	w := &fileWalker{file: file, src: src}
	d := &fileDecls{file: file, syntaxError: root.HasError()}

	for i := 0; i < int(root.NamedChildCount()); i++ {
		node := root.NamedChild(i)
		switch node.Type() {
		case "package_clause":
			if name := firstNamed(node, "package_identifier"); name != nil {
				d.packageName = w.text(name)
			}
		case "import_declaration":
			for _, spec := range findNodes(node, "import_spec") {
				if pathNode := spec.ChildByFieldName("path"); pathNode != nil {
					d.imports = append(d.imports, unquote(w.text(pathNode)))
				}
			}
		case "function_declaration":
			d.functions = append(d.functions, w.function(node))
		case "method_declaration":
			if m, ok := w.method(node); ok {
				d.methods = append(d.methods, m)
			}
		case "type_declaration":
			w.typeDeclaration(node, d)
		}
	}
	return d, nil
}

// fileWalker converts the nodes of one file into model declarations.
type fileWalker struct {
	file string
	src  []byte
}

func (w *fileWalker) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(w.src)
}

func (w *fileWalker) location(n *sitter.Node) model.Location {
	return model.Location{
		File:      w.file,
		StartLine: int(n.StartPoint().Row) + 1,
		EndLine:   int(n.EndPoint().Row) + 1,
	}
}

func (w *fileWalker) function(n *sitter.Node) model.FunctionDecl {
	name := w.text(n.ChildByFieldName("name"))
	return model.FunctionDecl{
		Name:     name,
		Params:   w.params(n.ChildByFieldName("parameters")),
		Returns:  w.results(n.ChildByFieldName("result")),
		Exported: isExported(name),
		Location: w.location(n),
		Body:     w.body(n.ChildByFieldName("body")),
	}
}

func (w *fileWalker) method(n *sitter.Node) (receiverMethod, bool) {
	receivers := w.params(n.ChildByFieldName("receiver"))
	if len(receivers) == 0 {
		return receiverMethod{}, false
	}
	recv := receivers[0]
	name := w.text(n.ChildByFieldName("name"))

	decl := model.MethodDecl{
		Name:     name,
		Params:   w.params(n.ChildByFieldName("parameters")),
		Returns:  w.results(n.ChildByFieldName("result")),
		Exported: isExported(name),
		Location: w.location(n),
		Body:     w.body(n.ChildByFieldName("body")),
	}
	if recv.Name != "" && recv.Name != "_" {
		decl.Receiver = &model.Param{Name: recv.Name, Type: recv.Type}
	}
	return receiverMethod{receiverType: receiverTypeName(recv.Type), decl: decl}, true
}

func (w *fileWalker) typeDeclaration(n *sitter.Node, d *fileDecls) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		spec := n.NamedChild(i)
		if spec.Type() != "type_spec" {
			continue
		}
		name := w.text(spec.ChildByFieldName("name"))
		typ := spec.ChildByFieldName("type")
		if typ == nil {
			continue
		}
		switch typ.Type() {
		case "struct_type":
			d.structs = append(d.structs, w.structDecl(name, spec, typ))
		case "interface_type":
			d.interfaces = append(d.interfaces, w.interfaceDecl(name, spec, typ))
		}
	}
}

func (w *fileWalker) structDecl(name string, spec, typ *sitter.Node) model.StructDecl {
	s := model.StructDecl{Name: name, Location: w.location(spec)}
	list := firstNamed(typ, "field_declaration_list")
	if list == nil {
		return s
	}
	for _, field := range namedChildrenOf(list, "field_declaration") {
		fieldType := w.text(field.ChildByFieldName("type"))
		names := namedChildrenOf(field, "field_identifier")
		if len(names) == 0 {
			s.Embedded = append(s.Embedded, strings.TrimLeft(fieldType, "*"))
			continue
		}
		for _, n := range names {
			s.Fields = append(s.Fields, model.Field{Name: w.text(n), Type: fieldType, Location: w.location(field)})
		}
	}
	return s
}

func (w *fileWalker) interfaceDecl(name string, spec, typ *sitter.Node) model.InterfaceDecl {
	iface := model.InterfaceDecl{Name: name, Location: w.location(spec)}
	for i := 0; i < int(typ.NamedChildCount()); i++ {
		elem := typ.NamedChild(i)
		// Older grammars call these method_spec.
		if elem.Type() != "method_elem" && elem.Type() != "method_spec" {
			continue
		}
		if n := elem.ChildByFieldName("name"); n != nil {
			iface.Methods = append(iface.Methods, w.text(n))
		}
	}
	return iface
}

// params flattens a parameter_list. "a, b int" yields two params; unnamed
// parameters keep an empty name.
func (w *fileWalker) params(list *sitter.Node) []model.Param {
	if list == nil {
		return nil
	}
	var out []model.Param
	for i := 0; i < int(list.NamedChildCount()); i++ {
		decl := list.NamedChild(i)
		var typ string
		switch decl.Type() {
		case "parameter_declaration":
			typ = w.text(decl.ChildByFieldName("type"))
		case "variadic_parameter_declaration":
			typ = "..." + w.text(decl.ChildByFieldName("type"))
		default:
			continue
		}
		names := namedChildrenOf(decl, "identifier")
		if len(names) == 0 {
			out = append(out, model.Param{Type: typ})
			continue
		}
		for _, n := range names {
			out = append(out, model.Param{Name: w.text(n), Type: typ})
		}
	}
	return out
}

func (w *fileWalker) results(n *sitter.Node) []string {
	if n == nil {
		return nil
	}
	if n.Type() != "parameter_list" {
		return []string{w.text(n)}
	}
	var out []string
	for _, p := range w.params(n) {
		out = append(out, p.Type)
	}
	return out
}

// body records calls, goroutine spawns and channel operations in source
// order, including those inside closures. A nil block gives a nil body.
func (w *fileWalker) body(block *sitter.Node) *model.Body {
	if block == nil {
		return nil
	}
	b := &model.Body{}
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		switch n.Type() {
		case "go_statement":
			if call := firstNamed(n, "call_expression"); call != nil {
				callee, qualifier, ok := w.callTarget(call)
				if !ok {
					callee = "func"
				}
				b.Spawns = append(b.Spawns, model.SpawnSite{Callee: callee, Qualifier: qualifier, Location: w.location(n)})
				walkChildren(call, walk)
				return
			}
		case "call_expression":
			if site, ok := w.callSite(n); ok {
				b.Calls = append(b.Calls, site)
			}
		case "send_statement":
			b.ChannelOps = append(b.ChannelOps, model.ChannelOp{
				Kind:     model.ChannelSend,
				Channel:  w.text(n.ChildByFieldName("channel")),
				Location: w.location(n),
			})
		case "unary_expression":
			if op := n.ChildByFieldName("operator"); op != nil && op.Type() == "<-" {
				b.ChannelOps = append(b.ChannelOps, model.ChannelOp{
					Kind:     model.ChannelReceive,
					Channel:  w.text(n.ChildByFieldName("operand")),
					Location: w.location(n),
				})
			}
		}
		walkChildren(n, walk)
	}
	walkChildren(block, walk)
	return b
}

func (w *fileWalker) callSite(call *sitter.Node) (model.CallSite, bool) {
	callee, qualifier, ok := w.callTarget(call)
	if !ok {
		return model.CallSite{}, false
	}
	site := model.CallSite{Callee: callee, Qualifier: qualifier, Location: w.location(call)}
	if args := call.ChildByFieldName("arguments"); args != nil {
		for i := 0; i < int(args.NamedChildCount()); i++ {
			arg := args.NamedChild(i)
			if arg.Type() == "comment" {
				continue
			}
			site.Args = append(site.Args, w.argText(arg))
		}
	}
	return site, true
}

// callTarget splits the called expression. Calls through closures, index
// expressions other than generic instantiation, or type conversions to
// composite types have no target.
func (w *fileWalker) callTarget(call *sitter.Node) (callee, qualifier string, ok bool) {
	fn := call.ChildByFieldName("function")
	if fn == nil {
		return "", "", false
	}
	switch fn.Type() {
	case "identifier":
		return w.text(fn), "", true
	case "selector_expression":
		return w.text(fn.ChildByFieldName("field")), compact(w.text(fn.ChildByFieldName("operand"))), true
	default:
		return "", "", false
	}
}

// argText unquotes string literals and shortens closures to "func(...)".
func (w *fileWalker) argText(arg *sitter.Node) string {
	switch arg.Type() {
	case "interpreted_string_literal", "raw_string_literal":
		return unquote(w.text(arg))
	case "func_literal":
		return "func(...)"
	default:
		return compact(w.text(arg))
	}
}

func unquote(lit string) string {
	if s, err := strconv.Unquote(lit); err == nil {
		return s
	}
	return strings.Trim(lit, "\"`")
}

// compact joins multi-line expressions onto one line.
func compact(s string) string {
	if !strings.ContainsAny(s, "\n\t") {
		return s
	}
	return strings.Join(strings.Fields(s), " ")
}

func walkChildren(n *sitter.Node, fn func(*sitter.Node)) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		fn(n.NamedChild(i))
	}
}

func firstNamed(n *sitter.Node, typ string) *sitter.Node {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if c := n.NamedChild(i); c.Type() == typ {
			return c
		}
	}
	return nil
}

func namedChildrenOf(n *sitter.Node, typ string) []*sitter.Node {
	var out []*sitter.Node
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if c := n.NamedChild(i); c.Type() == typ {
			out = append(out, c)
		}
	}
	return out
}

// findNodes collects every descendant of the given type in pre-order.
func findNodes(root *sitter.Node, typ string) []*sitter.Node {
	var result []*sitter.Node
	var walk func(*sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil {
			return
		}
		if n.Type() == typ {
			result = append(result, n)
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(root)
	return result
}
