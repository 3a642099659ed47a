// Package cmdspec compiles the command-spec DSL into line matchers.
//
// A spec is a space-separated list of tokens:
//
//	CMD:name      the command verb (first token, exactly once)
//	word          a required literal word
//	[word]        an optional literal word
//	{name:STR}    a required argument of non-space characters
//	{name:INT}    a required argument of digits
//	[name:STR]    an optional argument of non-space characters
//	[name:INT]    an optional argument of digits
//
// Every compiled matcher also accepts a trailing "help" word, reported
// in the ArgMap under the "help" key.
package cmdspec

import (
	"fmt"
	"regexp"
	"strings"
)

// Kind classifies a spec token.
type Kind int

const (
	KindCommand     Kind = iota // CMD:name
	KindLiteral                 // word
	KindOptLiteral              // [word]
	KindStr                     // {name:STR}
	KindInt                     // {name:INT}
	KindOptStr                  // [name:STR]
	KindOptInt                  // [name:INT]
)

var kindNames = [...]string{"command", "literal", "optional-literal", "str", "int", "optional-str", "optional-int"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Optional reports whether the component may be absent from a line.
func (k Kind) Optional() bool {
	return k == KindOptLiteral || k == KindOptStr || k == KindOptInt
}

// Captures reports whether the component binds an argument.
func (k Kind) Captures() bool {
	switch k {
	case KindStr, KindInt, KindOptStr, KindOptInt:
		return true
	}
	return false
}

// Reserved argument names.
const (
	ArgCmd  = "cmd"
	ArgHelp = "help"
)

// Component is one classified spec token.
type Component struct {
	Kind Kind
	Name string // verb, literal word or capture name
}

// Matcher is a compiled spec. It is immutable and safe for concurrent use.
type Matcher struct {
	spec       string
	components []Component
	re         *regexp.Regexp
}

// SyntaxError reports a spec that cannot be compiled.
type SyntaxError struct {
	Spec  string
	Token string
	Msg   string
}

func (e *SyntaxError) Error() string {
	if e.Token != "" {
		return fmt.Sprintf("cmdspec: %s: token %q in spec %q", e.Msg, e.Token, e.Spec)
	}
	return fmt.Sprintf("cmdspec: %s in spec %q", e.Msg, e.Spec)
}

var tokenRules = []struct {
	kind Kind
	re   *regexp.Regexp
}{
	{KindCommand, regexp.MustCompile(`^CMD:(\w+)$`)},
	{KindLiteral, regexp.MustCompile(`^(\w+)$`)},
	{KindOptLiteral, regexp.MustCompile(`^\[(\w+)\]$`)},
	{KindStr, regexp.MustCompile(`^\{(\w+):STR\}$`)},
	{KindInt, regexp.MustCompile(`^\{(\w+):INT\}$`)},
	{KindOptStr, regexp.MustCompile(`^\[(\w+):STR\]$`)},
	{KindOptInt, regexp.MustCompile(`^\[(\w+):INT\]$`)},
}

func classify(tok string) (Component, bool) {
	for _, rule := range tokenRules {
		if m := rule.re.FindStringSubmatch(tok); m != nil {
			return Component{Kind: rule.kind, Name: m[1]}, true
		}
	}
	return Component{}, false
}

// Compile turns a spec string into a Matcher.
func Compile(spec string) (*Matcher, error) {
	tokens := strings.Fields(spec)
	if len(tokens) == 0 {
		return nil, &SyntaxError{Spec: spec, Msg: "empty spec"}
	}

	components := make([]Component, 0, len(tokens))
	seen := make(map[string]bool)
	for i, tok := range tokens {
		c, ok := classify(tok)
		if !ok {
			return nil, &SyntaxError{Spec: spec, Token: tok, Msg: "unrecognised token"}
		}
		switch {
		case i == 0 && c.Kind != KindCommand:
			return nil, &SyntaxError{Spec: spec, Token: tok, Msg: "spec must start with CMD:"}
		case i > 0 && c.Kind == KindCommand:
			return nil, &SyntaxError{Spec: spec, Token: tok, Msg: "CMD: may only appear once, first"}
		}
		if c.Kind.Captures() {
			if c.Name == ArgCmd || c.Name == ArgHelp {
				return nil, &SyntaxError{Spec: spec, Token: tok, Msg: "reserved argument name"}
			}
			if seen[c.Name] {
				return nil, &SyntaxError{Spec: spec, Token: tok, Msg: "duplicate argument name"}
			}
			seen[c.Name] = true
		}
		components = append(components, c)
	}

	re, err := regexp.Compile(buildPattern(components))
	if err != nil {
		return nil, fmt.Errorf("cmdspec: compile %q: %w", spec, err)
	}
	return &Matcher{spec: spec, components: components, re: re}, nil
}

// MustCompile is like Compile but panics on error. Specs are fixed at
// build time, so a bad one is a programming error.
func MustCompile(spec string) *Matcher {
	m, err := Compile(spec)
	if err != nil {
		panic(err)
	}
	return m
}

// buildPattern emits one anchored regexp for the components.
//
// Optional components carry their leading separator inside a lazy
// optional group, which prefers skipping them. That lets a trailing
// "help" reach the help group instead of being swallowed by an optional
// capture.
func buildPattern(components []Component) string {
	var sb strings.Builder
	sb.WriteString(`^`)
	for i, c := range components {
		var tok string
		switch c.Kind {
		case KindCommand, KindLiteral, KindOptLiteral:
			tok = regexp.QuoteMeta(c.Name)
		case KindStr, KindOptStr:
			tok = `(?P<` + c.Name + `>\S+)`
		case KindInt, KindOptInt:
			tok = `(?P<` + c.Name + `>\d+)`
		}
		switch {
		case i == 0:
			sb.WriteString(tok)
		case c.Kind.Optional():
			sb.WriteString(`(?:\s+` + tok + `)??`)
		default:
			sb.WriteString(`\s+` + tok)
		}
	}
	sb.WriteString(`(?:\s+(?P<` + ArgHelp + `>` + ArgHelp + `))?$`)
	return sb.String()
}

// Spec returns the source spec string.
func (m *Matcher) Spec() string { return m.spec }

// Verb returns the command verb.
func (m *Matcher) Verb() string { return m.components[0].Name }

// Pattern returns the generated regular expression.
func (m *Matcher) Pattern() string { return m.re.String() }
