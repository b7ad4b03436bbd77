package flow

import (
	"strings"

	"archflow/internal/model"
)

// TypeContext carries what is known about names visible inside one handler:
// the owning struct's fields, the receiver, the parameters and the interfaces
// declared in the package.
type TypeContext struct {
	owner      *model.StructDecl
	receiver   string
	params     []model.Param
	interfaces map[string]bool
}

// NewTypeContext builds the context for a resolved handler in pkg.
func NewTypeContext(pkg *model.Package, ref HandlerRef) TypeContext {
	ctx := TypeContext{
		owner:  ref.Struct,
		params: ref.Params(),
	}
	if pkg != nil {
		ctx.interfaces = pkg.InterfaceNames()
	}
	if ref.Method != nil && ref.Method.Receiver != nil {
		ctx.receiver = ref.Method.Receiver.Name
	}
	return ctx
}

// Classify decides the dispatch kind of a call made through qualifier.
// Unqualified calls and qualifiers that do not name an interface-typed field
// or parameter are direct.
func (c TypeContext) Classify(qualifier string) DispatchKind {
	if qualifier == "" {
		return DispatchDirect
	}
	typ, ok := c.declaredType(qualifier)
	if !ok {
		return DispatchDirect
	}
	if c.interfaces[strings.TrimPrefix(typ, "*")] {
		return DispatchInterface
	}
	return DispatchDirect
}

// declaredType looks the qualifier's identifier up in the owning struct's
// fields first, then in the parameters. "s.store" is read as field "store"
// when "s" is the receiver.
func (c TypeContext) declaredType(qualifier string) (string, bool) {
	segments := strings.Split(qualifier, ".")
	ident := segments[0]

	if c.owner != nil {
		if f, ok := c.owner.Field(ident); ok {
			return f.Type, true
		}
		if len(segments) > 1 && c.isReceiver(ident) {
			if f, ok := c.owner.Field(segments[1]); ok {
				return f.Type, true
			}
		}
	}

	for _, p := range c.params {
		if p.Name == ident {
			return p.Type, true
		}
	}
	return "", false
}

// isReceiver reports whether ident names the method receiver. When the model
// does not record the receiver, only a non-parameter identifier that is a
// single letter or a prefix of the struct name ("s", "serv" for Server) is
// taken to be it.
func (c TypeContext) isReceiver(ident string) bool {
	if c.receiver != "" {
		return ident == c.receiver
	}
	for _, p := range c.params {
		if p.Name == ident {
			return false
		}
	}
	if len(ident) == 1 {
		return true
	}
	return c.owner != nil && strings.HasPrefix(strings.ToLower(c.owner.Name), strings.ToLower(ident))
}

// IsRequest reports whether the qualifier starts with a parameter declared
// as *http.Request. The receiver never counts, whatever its name.
func (c TypeContext) IsRequest(qualifier string) bool {
	if qualifier == "" {
		return false
	}
	ident := qualifier
	if i := strings.IndexAny(ident, ".("); i >= 0 {
		ident = ident[:i]
	}
	if c.receiver != "" && ident == c.receiver {
		return false
	}
	for _, p := range c.params {
		if p.Name == ident {
			return p.Type == requestType
		}
	}
	return false
}
