package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/crystal-mush/kmud/pkg/command"
	"github.com/crystal-mush/kmud/pkg/gamedb"
)

// Classes are the character classes chargen offers.
var Classes = []string{"wizard", "fighter"}

// CharGen creates a character and puppets it.
type CharGen struct{ command.Base }

func (*CharGen) Key() string         { return "chargen" }
func (*CharGen) Description() string { return "Creates a new character." }
func (*CharGen) Spec() string        { return "CMD:chargen {name:STR} [class:STR]" }

func (c *CharGen) Execute(ctx *command.Context) (command.Result, error) {
	if res, ok := needLogin(ctx); !ok {
		return res, nil
	}
	name := ctx.Args["name"]
	if _, err := ctx.Services.Sessions.FindCharacter(ctx.Session.Account, name); err == nil {
		return command.Invalidf("You already have a character named %s.", name), nil
	}
	if ctx.Args.Has("class") {
		return createAndPuppet(ctx, name, ctx.Args["class"])
	}
	for _, class := range Classes {
		c.Prompt(class, func(ctx *command.Context, choice string) (command.Result, error) {
			return createAndPuppet(ctx, name, choice)
		})
	}
	return c.Ask("What sort of character do you want?"), nil
}

func createAndPuppet(ctx *command.Context, name, class string) (command.Result, error) {
	char, err := ctx.Services.Sessions.CreateCharacter(ctx.Session, name, class)
	if errors.Is(err, gamedb.ErrExists) {
		return command.Invalidf("The name %s is already taken.", name), nil
	}
	if err != nil {
		return command.Result{}, err
	}
	if err := ctx.Services.Sessions.Puppet(ctx.Session, char); err != nil {
		return command.Result{}, err
	}
	return command.Completef("You are %s the %s.", char.Name, char.Class), nil
}

// CharList lists the account's characters.
type CharList struct{ command.Base }

func (*CharList) Key() string         { return "charlist" }
func (*CharList) Description() string { return "List all your characters." }
func (*CharList) Spec() string        { return "CMD:charlist" }

func (*CharList) Execute(ctx *command.Context) (command.Result, error) {
	if res, ok := needLogin(ctx); !ok {
		return res, nil
	}
	chars, err := ctx.Services.Sessions.Characters(ctx.Session.Account)
	if err != nil {
		return command.Result{}, err
	}
	if len(chars) == 0 {
		return command.Complete("You currently have no characters to play with.\n\n" +
			"HINT: you can create a new character using the 'chargen' command."), nil
	}
	names := make([]string, len(chars))
	for i, ch := range chars {
		names[i] = ch.Name
	}
	return command.Complete("You own the following characters:\n * " + strings.Join(names, "\n * ")), nil
}

// CharDelete deletes a character after confirmation.
type CharDelete struct{ command.Base }

func (*CharDelete) Key() string         { return "chardelete" }
func (*CharDelete) Description() string { return "Deletes a character you created previously." }
func (*CharDelete) Spec() string        { return "CMD:chardelete {name:STR}" }

func (c *CharDelete) Execute(ctx *command.Context) (command.Result, error) {
	if res, ok := needLogin(ctx); !ok {
		return res, nil
	}
	name := ctx.Args["name"]
	char, err := ctx.Services.Sessions.FindCharacter(ctx.Session.Account, name)
	if errors.Is(err, gamedb.ErrNotFound) {
		return command.Invalidf("There is no such character %s.", name), nil
	}
	if err != nil {
		return command.Result{}, err
	}

	c.Prompt("yes", func(ctx *command.Context, _ string) (command.Result, error) {
		if err := ctx.Services.Sessions.DeleteCharacter(ctx.Session, char); err != nil {
			return command.Result{}, err
		}
		return command.Completef("Deleted %s.", char.Name), nil
	})
	c.Prompt("no", func(*command.Context, string) (command.Result, error) {
		return command.Completef("Okay, let's not delete %s.", char.Name), nil
	})
	return c.Ask(fmt.Sprintf("Are you sure you want to delete %s?", char.Name)), nil
}

// Puppet switches the session to one of the account's characters.
type Puppet struct{ command.Base }

func (*Puppet) Key() string         { return "puppet" }
func (*Puppet) Description() string { return "Switch to this character." }
func (*Puppet) Spec() string        { return "CMD:puppet {character:STR}" }

func (*Puppet) Execute(ctx *command.Context) (command.Result, error) {
	if res, ok := needLogin(ctx); !ok {
		return res, nil
	}
	name := ctx.Args["character"]
	char, err := ctx.Services.Sessions.FindCharacter(ctx.Session.Account, name)
	if errors.Is(err, gamedb.ErrNotFound) {
		return command.Invalidf("No such character %s!", name), nil
	}
	if err != nil {
		return command.Result{}, err
	}
	if err := ctx.Services.Sessions.Puppet(ctx.Session, char); err != nil {
		return command.Result{}, err
	}
	return command.Completef("You are now %s.", char.Name), nil
}
