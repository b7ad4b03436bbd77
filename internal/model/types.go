// Package model defines the structural snapshot of a codebase that the flow
// engine consumes: packages, their declarations and the call sites found in
// function and method bodies.
package model

// Location points at a span of source.
type Location struct {
	File      string `json:"file" yaml:"file"`
	StartLine int    `json:"startLine" yaml:"startLine"`
	EndLine   int    `json:"endLine,omitempty" yaml:"endLine,omitempty"`
}

// Param is a named, typed parameter or field.
type Param struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

// CallSite is a single call expression inside a body.
type CallSite struct {
	Callee    string   `json:"callee" yaml:"callee"`
	Qualifier string   `json:"qualifier,omitempty" yaml:"qualifier,omitempty"` // receiver or package token, e.g. "s.store"
	Args      []string `json:"args,omitempty" yaml:"args,omitempty"`           // string literals unquoted, other args as source text
	Location  Location `json:"location" yaml:"location"`
}

// SpawnSite is a `go` statement.
type SpawnSite struct {
	Callee    string   `json:"callee" yaml:"callee"`
	Qualifier string   `json:"qualifier,omitempty" yaml:"qualifier,omitempty"`
	Location  Location `json:"location" yaml:"location"`
}

// ChannelOpKind distinguishes sends from receives.
type ChannelOpKind string

const (
	ChannelSend    ChannelOpKind = "send"
	ChannelReceive ChannelOpKind = "receive"
)

// ChannelOp is a channel send or receive.
type ChannelOp struct {
	Kind     ChannelOpKind `json:"kind" yaml:"kind"`
	Channel  string        `json:"channel" yaml:"channel"`
	Location Location      `json:"location" yaml:"location"`
}

// Body holds the ordered records of a function or method body.
type Body struct {
	Calls      []CallSite  `json:"calls,omitempty" yaml:"calls,omitempty"`
	Spawns     []SpawnSite `json:"spawns,omitempty" yaml:"spawns,omitempty"`
	ChannelOps []ChannelOp `json:"channelOps,omitempty" yaml:"channelOps,omitempty"`
}

// FunctionDecl is a free function. A nil Body means the function is opaque.
type FunctionDecl struct {
	Name     string   `json:"name" yaml:"name"`
	Package  string   `json:"package" yaml:"package"`
	Params   []Param  `json:"params,omitempty" yaml:"params,omitempty"`
	Returns  []string `json:"returns,omitempty" yaml:"returns,omitempty"`
	Exported bool     `json:"exported" yaml:"exported"`
	Location Location `json:"location" yaml:"location"`
	Body     *Body    `json:"body,omitempty" yaml:"body,omitempty"`
}

// MethodDecl is a method declared on a struct.
type MethodDecl struct {
	Name     string   `json:"name" yaml:"name"`
	Package  string   `json:"package" yaml:"package"`
	Struct   string   `json:"struct" yaml:"struct"`
	Receiver *Param   `json:"receiver,omitempty" yaml:"receiver,omitempty"`
	Params   []Param  `json:"params,omitempty" yaml:"params,omitempty"`
	Returns  []string `json:"returns,omitempty" yaml:"returns,omitempty"`
	Exported bool     `json:"exported" yaml:"exported"`
	Location Location `json:"location" yaml:"location"`
	Body     *Body    `json:"body,omitempty" yaml:"body,omitempty"`
}

// Field is a struct field.
type Field struct {
	Name     string   `json:"name" yaml:"name"`
	Type     string   `json:"type" yaml:"type"`
	Location Location `json:"location" yaml:"location"`
}

// StructDecl is a struct type with its fields and methods.
type StructDecl struct {
	Name     string       `json:"name" yaml:"name"`
	Package  string       `json:"package" yaml:"package"`
	Fields   []Field      `json:"fields,omitempty" yaml:"fields,omitempty"`
	Embedded []string     `json:"embedded,omitempty" yaml:"embedded,omitempty"`
	Methods  []MethodDecl `json:"methods,omitempty" yaml:"methods,omitempty"`
	Location Location     `json:"location" yaml:"location"`
}

// InterfaceDecl is an interface type and its method set.
type InterfaceDecl struct {
	Name     string   `json:"name" yaml:"name"`
	Package  string   `json:"package" yaml:"package"`
	Methods  []string `json:"methods,omitempty" yaml:"methods,omitempty"`
	Location Location `json:"location" yaml:"location"`
}

// Package is one package of the snapshot.
type Package struct {
	ID         string          `json:"id" yaml:"id"`
	Name       string          `json:"name" yaml:"name"`
	FullName   string          `json:"fullName" yaml:"fullName"`
	Dir        string          `json:"dir" yaml:"dir"`
	Files      []string        `json:"files,omitempty" yaml:"files,omitempty"`
	Imports    []string        `json:"imports,omitempty" yaml:"imports,omitempty"`
	Structs    []StructDecl    `json:"structs,omitempty" yaml:"structs,omitempty"`
	Interfaces []InterfaceDecl `json:"interfaces,omitempty" yaml:"interfaces,omitempty"`
	Functions  []FunctionDecl  `json:"functions,omitempty" yaml:"functions,omitempty"`
}

// Model is a complete structural snapshot.
type Model struct {
	Root     string    `json:"root,omitempty" yaml:"root,omitempty"`
	Packages []Package `json:"packages" yaml:"packages"`
}

// Stats summarizes a model.
type Stats struct {
	Packages   int `json:"packages"`
	Functions  int `json:"functions"`
	Structs    int `json:"structs"`
	Methods    int `json:"methods"`
	Interfaces int `json:"interfaces"`
	CallSites  int `json:"callSites"`
}

// Stats counts the declarations and call sites in the model.
func (m *Model) Stats() Stats {
	var s Stats
	if m == nil {
		return s
	}
	s.Packages = len(m.Packages)
	for i := range m.Packages {
		pkg := &m.Packages[i]
		s.Functions += len(pkg.Functions)
		s.Structs += len(pkg.Structs)
		s.Interfaces += len(pkg.Interfaces)
		for _, fn := range pkg.Functions {
			if fn.Body != nil {
				s.CallSites += len(fn.Body.Calls)
			}
		}
		for _, st := range pkg.Structs {
			s.Methods += len(st.Methods)
			for _, method := range st.Methods {
				if method.Body != nil {
					s.CallSites += len(method.Body.Calls)
				}
			}
		}
	}
	return s
}

// InterfaceNames returns the set of interface names declared in the package.
func (p *Package) InterfaceNames() map[string]bool {
	names := make(map[string]bool, len(p.Interfaces))
	for _, iface := range p.Interfaces {
		names[iface.Name] = true
	}
	return names
}

// FindFunction returns the free function with the given name.
func (p *Package) FindFunction(name string) (*FunctionDecl, bool) {
	for i := range p.Functions {
		if p.Functions[i].Name == name {
			return &p.Functions[i], true
		}
	}
	return nil, false
}

// FindMethod searches every struct for a method with the given name and
// returns the first match together with its struct.
func (p *Package) FindMethod(name string) (*MethodDecl, *StructDecl, bool) {
	for i := range p.Structs {
		st := &p.Structs[i]
		for j := range st.Methods {
			if st.Methods[j].Name == name {
				return &st.Methods[j], st, true
			}
		}
	}
	return nil, nil, false
}

// Field looks up a field by name.
func (s *StructDecl) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}
