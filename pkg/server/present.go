package server

import "github.com/crystal-mush/kmud/pkg/command"

// Present renders a result for the player. Failures get a prefix per
// reason so players can tell a typo from a refused request.
func Present(res command.Result) string {
	if res.Status != command.StatusFail {
		return res.Presentation
	}
	switch res.Reason {
	case command.ReasonNotFound:
		return "Huh? " + res.Presentation
	case command.ReasonSyntax:
		return "Excuse me? " + res.Presentation
	case command.ReasonInvalid:
		return "Whoops! " + res.Presentation
	case command.ReasonInternal:
		return "Uh-oh: " + res.Presentation
	default:
		return res.Presentation
	}
}
