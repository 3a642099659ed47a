package cmdspec

import "strings"

// ArgMap maps argument names to the values matched from a line.
// It always holds ArgCmd; optional arguments that were not supplied are
// absent rather than empty.
type ArgMap map[string]string

// Has reports whether the argument was supplied.
func (a ArgMap) Has(name string) bool {
	_, ok := a[name]
	return ok
}

// Get returns the argument value, or "" when absent.
func (a ArgMap) Get(name string) string {
	return a[name]
}

// Match applies the matcher to a whole line. It returns false when the
// line does not have the spec's shape.
func (m *Matcher) Match(line string) (ArgMap, bool) {
	line = strings.TrimSpace(line)
	idx := m.re.FindStringSubmatchIndex(line)
	if idx == nil {
		return nil, false
	}

	args := ArgMap{ArgCmd: m.Verb()}
	for i, name := range m.re.SubexpNames() {
		if name == "" {
			continue
		}
		start, end := idx[2*i], idx[2*i+1]
		if start < 0 {
			continue
		}
		args[name] = line[start:end]
	}
	return args, true
}

// Usage renders the spec as help syntax, e.g. "chargen <name> [class]".
// The implicit help word is not shown.
func (m *Matcher) Usage() string {
	parts := make([]string, 0, len(m.components))
	for _, c := range m.components {
		switch c.Kind {
		case KindCommand, KindLiteral:
			parts = append(parts, c.Name)
		case KindOptLiteral:
			parts = append(parts, "["+c.Name+"]")
		case KindStr:
			parts = append(parts, "<"+c.Name+">")
		case KindInt:
			parts = append(parts, "<"+c.Name+":number>")
		case KindOptStr:
			parts = append(parts, "["+c.Name+"]")
		case KindOptInt:
			parts = append(parts, "["+c.Name+":number]")
		}
	}
	return strings.Join(parts, " ")
}
