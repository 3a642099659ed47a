package cmdspec

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchLogin(t *testing.T) {
	m := MustCompile("CMD:login {login:STR} {password:STR}")

	args, ok := m.Match("login edwin secret")
	require.True(t, ok)
	want := ArgMap{"cmd": "login", "login": "edwin", "password": "secret"}
	if diff := cmp.Diff(want, args); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}
}

func TestMatchOptionalAbsent(t *testing.T) {
	m := MustCompile("CMD:chargen {name:STR} [class:STR]")

	args, ok := m.Match("chargen Harry")
	require.True(t, ok)
	if diff := cmp.Diff(ArgMap{"cmd": "chargen", "name": "Harry"}, args); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}
	assert.False(t, args.Has("class"))

	args, ok = m.Match("chargen Harry wizard")
	require.True(t, ok)
	assert.Equal(t, "wizard", args.Get("class"))
}

func TestMatchRejects(t *testing.T) {
	m := MustCompile("CMD:login {login:STR} {password:STR}")
	for _, line := range []string{
		"",
		"login",
		"login edwin",
		"logout edwin secret",
		"loginx edwin secret",
		"login edwin secret extra",
		"Login edwin secret",
	} {
		_, ok := m.Match(line)
		assert.False(t, ok, "line %q should not match", line)
	}
}

func TestMatchInt(t *testing.T) {
	m := MustCompile("CMD:roll {count:INT} [sides:INT]")

	args, ok := m.Match("roll 3 20")
	require.True(t, ok)
	assert.Equal(t, "3", args["count"])
	assert.Equal(t, "20", args["sides"])

	_, ok = m.Match("roll three")
	assert.False(t, ok)
	_, ok = m.Match("roll 3 d20")
	assert.False(t, ok)
}

func TestMatchLiterals(t *testing.T) {
	m := MustCompile("CMD:give {item:STR} [to] {target:STR}")

	args, ok := m.Match("give sword to bob")
	require.True(t, ok)
	assert.Equal(t, ArgMap{"cmd": "give", "item": "sword", "target": "bob"}, args)

	args, ok = m.Match("give sword bob")
	require.True(t, ok)
	assert.Equal(t, ArgMap{"cmd": "give", "item": "sword", "target": "bob"}, args)
}

func TestMatchTrimsWhitespace(t *testing.T) {
	m := MustCompile("CMD:look")
	args, ok := m.Match("   look \t")
	require.True(t, ok)
	assert.Equal(t, ArgMap{"cmd": "look"}, args)
}

func TestTrailingHelp(t *testing.T) {
	m := MustCompile("CMD:chargen {name:STR} [class:STR]")

	args, ok := m.Match("chargen Harry help")
	require.True(t, ok)
	assert.True(t, args.Has("help"))
	assert.False(t, args.Has("class"), "help must not be captured as an optional argument")

	args, ok = m.Match("chargen Harry wizard help")
	require.True(t, ok)
	assert.Equal(t, ArgMap{"cmd": "chargen", "name": "Harry", "class": "wizard", "help": "help"}, args)

	args, ok = m.Match("chargen Harry")
	require.True(t, ok)
	assert.False(t, args.Has("help"))
}

// lineFor builds an input line satisfying the components, including the
// optional ones when withOptional is set.
func lineFor(components []Component, withOptional bool) (string, ArgMap) {
	var parts []string
	want := ArgMap{}
	for _, c := range components {
		if c.Kind.Optional() && !withOptional {
			continue
		}
		switch c.Kind {
		case KindCommand:
			parts = append(parts, c.Name)
			want[ArgCmd] = c.Name
		case KindLiteral, KindOptLiteral:
			parts = append(parts, c.Name)
		case KindStr, KindOptStr:
			v := "v_" + c.Name
			parts = append(parts, v)
			want[c.Name] = v
		case KindInt, KindOptInt:
			parts = append(parts, "42")
			want[c.Name] = "42"
		}
	}
	return strings.Join(parts, " "), want
}

func TestGeneratedLinesMatch(t *testing.T) {
	specs := []string{
		"CMD:look",
		"CMD:login {login:STR} {password:STR}",
		"CMD:login {login:STR} {password:STR} [character:STR]",
		"CMD:chargen {name:STR} [class:STR]",
		"CMD:roll {count:INT} [sides:INT]",
		"CMD:give {item:STR} [to] {target:STR}",
		"CMD:put {item:STR} in {container:STR}",
		"CMD:page [urgent] {who:STR} [times:INT] [loud]",
		"CMD:x [a:STR] [b:INT] [c:STR]",
	}
	for _, spec := range specs {
		m, err := Compile(spec)
		require.NoError(t, err, spec)
		for _, withOptional := range []bool{false, true} {
			line, want := lineFor(m.components, withOptional)

			got, ok := m.Match(line)
			require.True(t, ok, "spec %q line %q", spec, line)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("spec %q line %q (-want +got):\n%s", spec, line, diff)
			}

			got, ok = m.Match(line + " help")
			require.True(t, ok, "spec %q line %q + help", spec, line)
			want[ArgHelp] = ArgHelp
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("spec %q line %q help (-want +got):\n%s", spec, line, diff)
			}
		}
	}
}

func TestCompileErrors(t *testing.T) {
	cases := map[string]string{
		"empty":          "   ",
		"no verb":        "login {login:STR}",
		"verb twice":     "CMD:a CMD:b",
		"bad token":      "CMD:login {login:STRING}",
		"unclosed":       "CMD:login {login:STR",
		"punctuation":    "CMD:login do-it",
		"duplicate":      "CMD:x {a:STR} [a:INT]",
		"reserved cmd":   "CMD:x {cmd:STR}",
		"reserved help":  "CMD:x [help:STR]",
		"lowercase type": "CMD:x {a:str}",
	}
	for name, spec := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Compile(spec)
			require.Error(t, err)
			var se *SyntaxError
			assert.True(t, errors.As(err, &se), "want *SyntaxError, got %T", err)
		})
	}
}

func TestCompileErrorNamesToken(t *testing.T) {
	_, err := Compile("CMD:login {login:STRING}")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "{login:STRING}")
}

func TestMustCompilePanics(t *testing.T) {
	assert.Panics(t, func() { MustCompile("nope") })
}

func TestCompileDeterministic(t *testing.T) {
	a := MustCompile("CMD:chargen {name:STR} [class:STR]")
	b := MustCompile("CMD:chargen {name:STR} [class:STR]")
	assert.Equal(t, a.Pattern(), b.Pattern())
	assert.Equal(t, a.components, b.components)
}

func TestUsage(t *testing.T) {
	cases := map[string]string{
		"CMD:charlist":                          "charlist",
		"CMD:chargen {name:STR} [class:STR]":    "chargen <name> [class]",
		"CMD:roll {count:INT} [sides:INT]":      "roll <count:number> [sides:number]",
		"CMD:give {item:STR} [to] {target:STR}": "give <item> [to] <target>",
		"CMD:put {item:STR} in {box:STR}":       "put <item> in <box>",
	}
	for spec, want := range cases {
		assert.Equal(t, want, MustCompile(spec).Usage(), spec)
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "optional-int", KindOptInt.String())
	assert.Equal(t, "Kind(99)", Kind(99).String())
}
