package command

import (
	"fmt"
	"strings"
	"sync"

	"github.com/crystal-mush/kmud/pkg/cmdspec"
)

// Factory builds a fresh command instance.
type Factory func() Command

// Entry describes one registered command.
type Entry struct {
	Key         string
	Description string
	Spec        string
	Usage       string
}

type registration struct {
	factory Factory
	matcher *cmdspec.Matcher
	entry   Entry
}

// Registry holds commands in registration order. The first command whose
// spec matches a line wins, so register specific specs before general
// ones sharing a verb.
type Registry struct {
	mu   sync.RWMutex
	regs []registration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register compiles the spec of the factory's command and appends it.
func (r *Registry) Register(f Factory) error {
	proto := f()
	if proto == nil {
		return fmt.Errorf("command: factory returned nil")
	}
	m, err := cmdspec.Compile(proto.Spec())
	if err != nil {
		return fmt.Errorf("command: register %s: %w", proto.Key(), err)
	}
	r.mu.Lock()
	r.regs = append(r.regs, registration{
		factory: f,
		matcher: m,
		entry: Entry{
			Key:         proto.Key(),
			Description: proto.Description(),
			Spec:        proto.Spec(),
			Usage:       m.Usage(),
		},
	})
	r.mu.Unlock()
	return nil
}

// MustRegister registers each factory and panics on a malformed spec.
func (r *Registry) MustRegister(fs ...Factory) {
	for _, f := range fs {
		if err := r.Register(f); err != nil {
			panic(err)
		}
	}
}

// Resolve finds the first command matching line and binds a new instance
// of it to env.
func (r *Registry) Resolve(line string, env *Env) (Command, *Context, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, reg := range r.regs {
		args, ok := reg.matcher.Match(line)
		if !ok {
			continue
		}
		ctx := &Context{Env: env, Input: line, Args: args, Matcher: reg.matcher}
		return reg.factory(), ctx, true
	}
	return nil, nil, false
}

// Entries lists the registered commands in registration order.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, len(r.regs))
	for i, reg := range r.regs {
		out[i] = reg.entry
	}
	return out
}

// Lookup returns the first entry registered under key.
func (r *Registry) Lookup(key string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, reg := range r.regs {
		if reg.entry.Key == key {
			return reg.entry, true
		}
	}
	return Entry{}, false
}

// ByVerb returns the entries whose spec starts with verb.
func (r *Registry) ByVerb(verb string) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Entry
	for _, reg := range r.regs {
		if reg.matcher.Verb() == verb {
			out = append(out, reg.entry)
		}
	}
	return out
}

// Len returns the number of registered commands.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.regs)
}

// firstWord returns the verb-like prefix of a line.
func firstWord(line string) string {
	f := strings.Fields(line)
	if len(f) == 0 {
		return ""
	}
	return f[0]
}
