package flow

import (
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/BurntSushi/toml"
)

// Pattern maps a callee name to the kind of entry point it registers.
// Callee may be a glob (path.Match syntax) such as "Register*Server".
type Pattern struct {
	Callee   string   `toml:"callee" json:"callee"`
	Protocol Protocol `toml:"protocol" json:"protocol"`
	Method   string   `toml:"method,omitempty" json:"method,omitempty"`
}

// matches reports whether the pattern accepts the callee name.
func (p Pattern) matches(callee string) bool {
	if strings.ContainsAny(p.Callee, "*?[") {
		ok, err := path.Match(p.Callee, callee)
		return err == nil && ok
	}
	return p.Callee == callee
}

// Framework is one tag of the pattern table.
type Framework struct {
	Tag      string    `toml:"tag" json:"tag"`
	Patterns []Pattern `toml:"pattern" json:"patterns"`
}

// PatternTable is the ordered framework -> patterns table. When several
// active frameworks accept the same callee, the earlier framework wins.
type PatternTable struct {
	Frameworks []Framework `toml:"framework" json:"frameworks"`
}

func httpMethods(methods ...string) []Pattern {
	patterns := make([]Pattern, 0, len(methods))
	for _, m := range methods {
		patterns = append(patterns, Pattern{Callee: m, Protocol: ProtocolHTTP, Method: strings.ToUpper(m)})
	}
	return patterns
}

func handlePatterns() []Pattern {
	return []Pattern{
		{Callee: "HandleFunc", Protocol: ProtocolHTTP},
		{Callee: "Handle", Protocol: ProtocolHTTP},
	}
}

// DefaultPatterns returns a fresh copy of the built-in table.
func DefaultPatterns() *PatternTable {
	return &PatternTable{Frameworks: []Framework{
		{Tag: "net/http", Patterns: handlePatterns()},
		{Tag: "gorilla/mux", Patterns: handlePatterns()},
		{Tag: "gin", Patterns: append(
			httpMethods("GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS"),
			Pattern{Callee: "Any", Protocol: ProtocolHTTP},
		)},
		{Tag: "echo", Patterns: append(
			httpMethods("GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS"),
			Pattern{Callee: "Any", Protocol: ProtocolHTTP},
		)},
		{Tag: "chi", Patterns: append(
			httpMethods("Get", "Post", "Put", "Delete", "Patch", "Head", "Options"),
			handlePatterns()...,
		)},
		{Tag: "grpc", Patterns: []Pattern{
			{Callee: "RegisterService", Protocol: ProtocolGRPC},
			{Callee: "Register*Server", Protocol: ProtocolGRPC},
		}},
		{Tag: "cobra", Patterns: []Pattern{
			{Callee: "AddCommand", Protocol: ProtocolCLI},
		}},
		{Tag: FrameworkMain},
	}}
}

// Tags lists the framework tags in table order.
func (t *PatternTable) Tags() []string {
	tags := make([]string, 0, len(t.Frameworks))
	for _, fw := range t.Frameworks {
		tags = append(tags, fw.Tag)
	}
	return tags
}

// Frameworks lists the built-in framework tags in table order.
func Frameworks() []string {
	return DefaultPatterns().Tags()
}

// Lookup returns the patterns registered for a tag.
func (t *PatternTable) Lookup(tag string) ([]Pattern, bool) {
	for _, fw := range t.Frameworks {
		if fw.Tag == tag {
			return fw.Patterns, true
		}
	}
	return nil, false
}

// Match finds the first active framework whose patterns accept callee.
func (t *PatternTable) Match(callee string, active map[string]bool) (string, Pattern, bool) {
	for _, fw := range t.Frameworks {
		if !active[fw.Tag] {
			continue
		}
		for _, p := range fw.Patterns {
			if p.matches(callee) {
				return fw.Tag, p, true
			}
		}
	}
	return "", Pattern{}, false
}

// Merge appends the patterns of other into a copy of t. Patterns for a tag
// already present are added after the existing ones.
func (t *PatternTable) Merge(other *PatternTable) *PatternTable {
	merged := &PatternTable{Frameworks: make([]Framework, len(t.Frameworks))}
	for i, fw := range t.Frameworks {
		merged.Frameworks[i] = Framework{Tag: fw.Tag, Patterns: append([]Pattern(nil), fw.Patterns...)}
	}
	if other == nil {
		return merged
	}

	for _, fw := range other.Frameworks {
		found := false
		for i := range merged.Frameworks {
			if merged.Frameworks[i].Tag == fw.Tag {
				merged.Frameworks[i].Patterns = append(merged.Frameworks[i].Patterns, fw.Patterns...)
				found = true
				break
			}
		}
		if !found {
			merged.Frameworks = append(merged.Frameworks, Framework{
				Tag:      fw.Tag,
				Patterns: append([]Pattern(nil), fw.Patterns...),
			})
		}
	}
	return merged
}

// validate rejects entries that could never match.
func (t *PatternTable) validate() error {
	for _, fw := range t.Frameworks {
		if fw.Tag == "" {
			return fmt.Errorf("framework entry without tag")
		}
		if strings.ToLower(fw.Tag) != fw.Tag {
			return fmt.Errorf("framework tag %q must be lowercase", fw.Tag)
		}
		for _, p := range fw.Patterns {
			if p.Callee == "" {
				return fmt.Errorf("framework %q: pattern without callee", fw.Tag)
			}
			if _, err := path.Match(p.Callee, ""); err != nil {
				return fmt.Errorf("framework %q: bad callee pattern %q: %w", fw.Tag, p.Callee, err)
			}
			switch p.Protocol {
			case ProtocolHTTP, ProtocolGRPC, ProtocolCLI:
			default:
				return fmt.Errorf("framework %q: unknown protocol %q", fw.Tag, p.Protocol)
			}
		}
	}
	return nil
}

// LoadPatternFile reads custom framework patterns from a TOML file:
//
//	[[framework]]
//	tag = "fiber"
//	  [[framework.pattern]]
//	  callee = "Get"
//	  protocol = "http"
//	  method = "GET"
func LoadPatternFile(file string) (*PatternTable, error) {
	var table PatternTable
	if _, err := toml.DecodeFile(file, &table); err != nil {
		return nil, fmt.Errorf("failed to parse pattern file: %w", err)
	}
	if err := table.validate(); err != nil {
		return nil, fmt.Errorf("invalid pattern file %s: %w", file, err)
	}
	return &table, nil
}

// WriteTOML encodes the table in the pattern file format.
func (t *PatternTable) WriteTOML(w io.Writer) error {
	return toml.NewEncoder(w).Encode(t)
}
