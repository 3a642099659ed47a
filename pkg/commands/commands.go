// Package commands holds the commands players type.
package commands

import "github.com/crystal-mush/kmud/pkg/command"

// All returns the command factories in resolution order.
func All() []command.Factory {
	return []command.Factory{
		func() command.Command { return &Register{} },
		func() command.Command { return &Login{} },
		func() command.Command { return &CharGen{} },
		func() command.Command { return &CharList{} },
		func() command.Command { return &CharDelete{} },
		func() command.Command { return &Puppet{} },
		func() command.Command { return &Help{} },
		func() command.Command { return &Quit{} },
	}
}

// NewRegistry returns a registry holding every command. It panics if a
// spec does not compile.
func NewRegistry() *command.Registry {
	reg := command.NewRegistry()
	reg.MustRegister(All()...)
	return reg
}

func needLogin(ctx *command.Context) (command.Result, bool) {
	if ctx.Session.LoggedIn() {
		return command.Result{}, true
	}
	return command.Invalid("You need to log in first. Try: login <name> <password>"), false
}
