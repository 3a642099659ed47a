package commands

import (
	"fmt"
	"strings"

	"github.com/crystal-mush/kmud/pkg/command"
)

// Help lists the commands, or describes one.
type Help struct{ command.Base }

func (*Help) Key() string         { return "help" }
func (*Help) Description() string { return "Lists the commands, or explains one." }
func (*Help) Spec() string        { return "CMD:help [topic:STR]" }

func (*Help) Execute(ctx *command.Context) (command.Result, error) {
	entries := ctx.Registry.Entries()
	if ctx.Args.Has("topic") {
		topic := ctx.Args["topic"]
		e, ok := ctx.Registry.Lookup(topic)
		if !ok {
			return command.Invalidf("There is no command called %s.", topic), nil
		}
		return command.Completef("%s - %s\n\nUsage: %s", e.Key, e.Description, e.Usage), nil
	}

	width := 0
	for _, e := range entries {
		width = max(width, len(e.Key))
	}
	var sb strings.Builder
	sb.WriteString("Available commands:")
	for _, e := range entries {
		fmt.Fprintf(&sb, "\n  %-*s  %s", width, e.Key, e.Description)
	}
	sb.WriteString("\n\nType '<command> help' for usage.")
	return command.Complete(sb.String()), nil
}
