package command

import (
	"testing"

	"github.com/crystal-mush/kmud/pkg/cmdspec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type greetCmd struct {
	Base
	key, spec string
}

func (c *greetCmd) Key() string       { return c.key }
func (*greetCmd) Description() string { return "Greets someone." }
func (c *greetCmd) Spec() string      { return c.spec }
func (c *greetCmd) Execute(ctx *Context) (Result, error) {
	return Complete(c.key + " " + ctx.Args["who"]), nil
}

func greet(key, spec string) Factory {
	return func() Command { return &greetCmd{key: key, spec: spec} }
}

type badSpecCmd struct{ Base }

func (*badSpecCmd) Key() string                      { return "bad" }
func (*badSpecCmd) Description() string              { return "" }
func (*badSpecCmd) Spec() string                     { return "CMD:bad {oops}" }
func (*badSpecCmd) Execute(*Context) (Result, error) { return Complete(""), nil }

func TestRegistryFirstMatchWins(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(
		greet("specific", "CMD:greet {who:STR}"),
		greet("general", "CMD:greet [who:STR]"),
	)

	for i := 0; i < 3; i++ {
		cmd, ctx, ok := reg.Resolve("greet bob", &Env{})
		require.True(t, ok)
		assert.Equal(t, "specific", cmd.Key())
		assert.Equal(t, "bob", ctx.Args["who"])
	}

	cmd, _, ok := reg.Resolve("greet", &Env{})
	require.True(t, ok)
	assert.Equal(t, "general", cmd.Key())
}

func TestRegistryFreshInstances(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(func() Command { return &pickCmd{} })

	a, _, ok := reg.Resolve("pick", &Env{})
	require.True(t, ok)
	b, _, ok := reg.Resolve("pick", &Env{})
	require.True(t, ok)
	assert.NotSame(t, a, b)
}

func TestRegistryBindsContext(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(func() Command { return &echoCmd{} })
	env := &Env{}

	_, ctx, ok := reg.Resolve("  echo hello  ", env)
	require.True(t, ok)
	assert.Same(t, env, ctx.Env)
	assert.Equal(t, cmdspec.ArgMap{"cmd": "echo", "text": "hello"}, ctx.Args)
	assert.Equal(t, "CMD:echo {text:STR}", ctx.Matcher.Spec())
}

func TestRegistryNoMatch(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(func() Command { return &echoCmd{} })
	_, _, ok := reg.Resolve("fly", &Env{})
	assert.False(t, ok)
}

func TestRegisterBadSpec(t *testing.T) {
	reg := NewRegistry()
	err := reg.Register(func() Command { return &badSpecCmd{} })
	require.Error(t, err)
	var se *cmdspec.SyntaxError
	assert.ErrorAs(t, err, &se)
	assert.Equal(t, 0, reg.Len())

	assert.Panics(t, func() {
		reg.MustRegister(func() Command { return &badSpecCmd{} })
	})
}

func TestRegisterNilFactory(t *testing.T) {
	reg := NewRegistry()
	assert.Error(t, reg.Register(func() Command { return nil }))
}

func TestRegistryEntries(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(
		func() Command { return &echoCmd{} },
		func() Command { return &pickCmd{} },
	)
	entries := reg.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, Entry{
		Key:         "echo",
		Description: "Repeats its argument.",
		Spec:        "CMD:echo {text:STR}",
		Usage:       "echo <text>",
	}, entries[0])
	assert.Equal(t, "pick", entries[1].Key)

	e, ok := reg.Lookup("pick")
	require.True(t, ok)
	assert.Equal(t, "pick", e.Usage)
	_, ok = reg.Lookup("nope")
	assert.False(t, ok)
}
