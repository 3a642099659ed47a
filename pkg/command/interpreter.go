package command

import (
	"fmt"
	"log"
	"runtime/debug"
	"strings"
)

// State is the dialog state of an Interpreter.
type State int

const (
	Idle State = iota
	AwaitingContinuation
)

func (s State) String() string {
	if s == AwaitingContinuation {
		return "awaiting-continuation"
	}
	return "idle"
}

// Interpreter runs the lines of one connection. It is not safe for
// concurrent use; the connection's read loop is its only caller.
type Interpreter struct {
	reg     *Registry
	env     *Env
	pending Command
}

// NewInterpreter creates an idle interpreter resolving against reg.
func NewInterpreter(reg *Registry, env *Env) *Interpreter {
	if env.Registry == nil {
		env.Registry = reg
	}
	return &Interpreter{reg: reg, env: env}
}

// State reports whether a prompt is pending.
func (in *Interpreter) State() State {
	if in.pending != nil {
		return AwaitingContinuation
	}
	return Idle
}

// Pending returns the command waiting for a choice, or nil.
func (in *Interpreter) Pending() Command { return in.pending }

// Process runs one line. Errors and panics raised by commands come back
// as internal failures. Chain and exit results are left to the caller.
func (in *Interpreter) Process(line string) (res Result) {
	line = strings.TrimSpace(line)

	var cmd Command
	defer func() {
		if r := recover(); r != nil {
			key := "command"
			if cmd != nil {
				key = cmd.Key()
			}
			log.Printf("WARNING: panic in %s: %v\n%s", key, r, debug.Stack())
			in.pending = nil
			res = Internal(fmt.Sprintf("%s crashed: %v", key, r))
		}
	}()

	var err error
	if in.pending != nil {
		cmd = in.pending
		in.pending = nil
		res, err = Continue(cmd, line)
	} else {
		var ctx *Context
		var ok bool
		cmd, ctx, ok = in.reg.Resolve(line, in.env)
		if !ok {
			return in.unmatched(line)
		}
		res, err = Run(cmd, ctx)
	}

	if err != nil {
		log.Printf("WARNING: %s: %v", cmd.Key(), err)
		return Internal(fmt.Sprintf("%s failed: %v", cmd.Key(), err))
	}
	if res.Status == StatusPrompt {
		in.pending = cmd
	}
	return res
}

// unmatched reports a line no spec accepted. A known verb gets its usage.
func (in *Interpreter) unmatched(line string) Result {
	entries := in.reg.ByVerb(firstWord(line))
	if len(entries) == 0 {
		return NotFound("Not recognised: " + line)
	}
	usages := make([]string, len(entries))
	for i, e := range entries {
		usages[i] = e.Usage
	}
	return Syntax("Usage: " + strings.Join(usages, "\n       "))
}
