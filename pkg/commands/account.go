package commands

import (
	"errors"
	"fmt"

	"github.com/crystal-mush/kmud/pkg/command"
	"github.com/crystal-mush/kmud/pkg/gamedb"
	"github.com/crystal-mush/kmud/pkg/service"
)

// Register creates an account and logs into it.
type Register struct{ command.Base }

func (*Register) Key() string         { return "register" }
func (*Register) Description() string { return "Creates a new login." }
func (*Register) Spec() string        { return "CMD:register {name:STR} {password:STR}" }

func (*Register) Execute(ctx *command.Context) (command.Result, error) {
	name, password := ctx.Args["name"], ctx.Args["password"]
	_, err := ctx.Services.Accounts.Create(name, password)
	if errors.Is(err, gamedb.ErrExists) {
		return command.Invalidf("The login %s is already taken, pick another one.", name), nil
	}
	if err != nil {
		return command.Result{}, err
	}
	return command.ChainTo("Account created.", "login "+name+" "+password), nil
}

// Login authenticates the session. Without a character argument it asks
// which character to play.
type Login struct{ command.Base }

func (*Login) Key() string         { return "login" }
func (*Login) Description() string { return "Logs a player into their account." }
func (*Login) Spec() string        { return "CMD:login {login:STR} {password:STR} [character:STR]" }

func (c *Login) Execute(ctx *command.Context) (command.Result, error) {
	acct, err := ctx.Services.Accounts.Authenticate(ctx.Args["login"], ctx.Args["password"])
	switch {
	case errors.Is(err, gamedb.ErrNotFound):
		return command.Invalid("Looks like you're new here!\n" +
			"First create a new login like this: register <name> <password>.\n\n" +
			"For example: \n\tregister fred ilovepranks"), nil
	case errors.Is(err, service.ErrBadPassword):
		return command.Invalid("Password incorrect, try again!"), nil
	case err != nil:
		return command.Result{}, err
	}

	if err := ctx.Services.Sessions.Login(ctx.Session, acct); err != nil {
		return command.Result{}, err
	}
	welcome := fmt.Sprintf("Welcome back, %s.", acct.Login)

	if ctx.Args.Has("character") {
		name := ctx.Args["character"]
		if _, err := ctx.Services.Sessions.FindCharacter(acct, name); err != nil {
			if errors.Is(err, gamedb.ErrNotFound) {
				return command.Completef("%s\nYou have no character named %s.", welcome, name), nil
			}
			return command.Result{}, err
		}
		return command.ChainTo(welcome, "puppet "+name), nil
	}

	chars, err := ctx.Services.Sessions.Characters(acct)
	if err != nil {
		return command.Result{}, err
	}
	if len(chars) == 0 {
		return command.Complete(welcome + "\nYou have no characters to play with. Create one with the 'chargen' command."), nil
	}
	for _, ch := range chars {
		c.Prompt(ch.Name, func(_ *command.Context, choice string) (command.Result, error) {
			return command.ChainTo("Switching to "+choice+".", "puppet "+choice), nil
		})
	}
	return c.Ask(welcome + " Which character do you want to play with?"), nil
}

// Quit closes the connection.
type Quit struct{ command.Base }

func (*Quit) Key() string         { return "quit" }
func (*Quit) Description() string { return "Disconnects from the game." }
func (*Quit) Spec() string        { return "CMD:quit" }

func (*Quit) Execute(ctx *command.Context) (command.Result, error) {
	if ctx.Session.Puppeting() {
		return command.Exit(fmt.Sprintf("Goodbye, %s!", ctx.Session.Character.Name)), nil
	}
	return command.Exit("Goodbye!"), nil
}
