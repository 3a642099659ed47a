package command

import (
	"fmt"
	"strings"

	"github.com/crystal-mush/kmud/pkg/cmdspec"
	"github.com/crystal-mush/kmud/pkg/gamedb"
	"github.com/crystal-mush/kmud/pkg/service"
)

// CancelKey is the choice every prompt accepts.
const CancelKey = "cancel"

// Env is what a connection lends to the commands it runs.
type Env struct {
	Session  *gamedb.Session
	Services *service.Services
	Registry *Registry
}

// Context binds a command instance to one input line.
type Context struct {
	*Env
	Input   string
	Args    cmdspec.ArgMap
	Matcher *cmdspec.Matcher
}

// Handler resolves one prompt choice. choice is the key the user typed.
type Handler func(ctx *Context, choice string) (Result, error)

// Command is implemented by every command kind. Implementations embed
// Base, which supplies the prompt bookkeeping and seals the interface.
type Command interface {
	Key() string
	Description() string
	Spec() string
	Execute(ctx *Context) (Result, error)

	base() *Base
}

// Base carries the choices a command offered in its last prompt.
type Base struct {
	ctx   *Context
	order []string
	conts map[string]Handler
}

func (b *Base) base() *Base { return b }

// Prompt registers a choice for the next line. Registering the same key
// again replaces its handler. A command that registers choices must
// return the result of Ask.
func (b *Base) Prompt(key string, h Handler) {
	if b.conts == nil {
		b.conts = make(map[string]Handler)
	}
	if _, ok := b.conts[key]; !ok {
		b.order = append(b.order, key)
	}
	b.conts[key] = h
}

// Ask returns a prompt result listing the registered choices after msg.
// The cancel choice is always added.
func (b *Base) Ask(msg string) Result {
	b.Prompt(CancelKey, cancelHandler)
	if msg == "" {
		return prompt(b.Listing())
	}
	return prompt(msg + "\n" + b.Listing())
}

// Listing renders the choices, one per line.
func (b *Base) Listing() string {
	var sb strings.Builder
	sb.WriteString("Choose:")
	for _, k := range b.order {
		sb.WriteString("\n * ")
		sb.WriteString(k)
	}
	return sb.String()
}

func (b *Base) reset() {
	b.order = nil
	b.conts = nil
}

func cancelHandler(*Context, string) (Result, error) {
	return Complete("Ok, let's go back."), nil
}

// HelpText returns the help shown for "<verb> help".
func HelpText(cmd Command, m *cmdspec.Matcher) string {
	return fmt.Sprintf("%s - %s\n\nUsage: %s", cmd.Key(), cmd.Description(), m.Usage())
}

// Run executes a freshly resolved command. A trailing help word short
// circuits to the command's help text.
func Run(cmd Command, ctx *Context) (Result, error) {
	b := cmd.base()
	b.ctx = ctx
	b.reset()

	if ctx.Args.Has(cmdspec.ArgHelp) {
		m := ctx.Matcher
		if m == nil {
			var err error
			if m, err = cmdspec.Compile(cmd.Spec()); err != nil {
				return Result{}, err
			}
		}
		return Complete(HelpText(cmd, m)), nil
	}

	res, err := cmd.Execute(ctx)
	if err != nil {
		b.reset()
		return Result{}, err
	}
	return checkPrompt(cmd, res), nil
}

// Continue resolves a pending prompt with the user's choice. An unknown
// choice fails with the listing; a known one clears the choices and runs
// its handler once.
func Continue(cmd Command, choice string) (Result, error) {
	b := cmd.base()
	h, ok := b.conts[choice]
	if !ok && choice == "" {
		return Invalidf("Nothing chosen.\n%s", b.Listing()), nil
	}
	if !ok {
		return Invalidf("%s is not one of the choices.\n%s", choice, b.Listing()), nil
	}
	b.reset()

	res, err := h(b.ctx, choice)
	if err != nil {
		b.reset()
		return Result{}, err
	}
	return checkPrompt(cmd, res), nil
}

// checkPrompt enforces that choices are registered iff the result prompts.
// A prompt always accepts cancel, even one built without Ask.
func checkPrompt(cmd Command, res Result) Result {
	b := cmd.base()
	if res.Status == StatusPrompt && len(b.conts) > 0 {
		if _, ok := b.conts[CancelKey]; !ok {
			b.Prompt(CancelKey, cancelHandler)
		}
	}
	switch {
	case res.Status == StatusPrompt && len(b.conts) == 0:
		return Internal(fmt.Sprintf("%s prompted without offering any choices", cmd.Key()))
	case res.Status != StatusPrompt && len(b.conts) > 0:
		b.reset()
		return Internal(fmt.Sprintf("%s offered choices but did not prompt", cmd.Key()))
	}
	return res
}
