// Package command runs command lines against a registry of commands and
// keeps the per-connection prompt dialog state.
package command

import "fmt"

// Status is the outcome of running a command.
type Status int

const (
	StatusComplete Status = iota // Finished; show Presentation
	StatusFail                   // Rejected; Reason says why
	StatusPrompt                 // Waiting for one of the registered choices
	StatusChain                  // Finished; run Chain next on the same interpreter
	StatusExit                   // Finished; close the connection
)

func (s Status) String() string {
	switch s {
	case StatusComplete:
		return "complete"
	case StatusFail:
		return "fail"
	case StatusPrompt:
		return "prompt"
	case StatusChain:
		return "chain"
	case StatusExit:
		return "exit"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Reason classifies a failed result.
type Reason int

const (
	ReasonNone     Reason = iota
	ReasonSyntax          // Known verb, wrong shape
	ReasonNotFound        // No spec matched
	ReasonInvalid         // Rejected by the command
	ReasonInternal        // The command broke
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonSyntax:
		return "syntax"
	case ReasonNotFound:
		return "not-found"
	case ReasonInvalid:
		return "invalid"
	case ReasonInternal:
		return "internal"
	default:
		return fmt.Sprintf("Reason(%d)", int(r))
	}
}

// Result is what a command hands back to the interpreter. Reason is set
// only for StatusFail and Chain only for StatusChain; build results with
// the constructors below to keep it that way.
type Result struct {
	Status       Status
	Presentation string
	Reason       Reason
	Chain        string
}

// Complete returns a successful result.
func Complete(text string) Result {
	return Result{Status: StatusComplete, Presentation: text}
}

// Completef is Complete with formatting.
func Completef(format string, args ...any) Result {
	return Complete(fmt.Sprintf(format, args...))
}

// ChainTo completes with text and asks for next to be run afterwards.
func ChainTo(text, next string) Result {
	return Result{Status: StatusChain, Presentation: text, Chain: next}
}

// Exit completes with text and asks for the connection to be closed.
func Exit(text string) Result {
	return Result{Status: StatusExit, Presentation: text}
}

func fail(reason Reason, text string) Result {
	return Result{Status: StatusFail, Presentation: text, Reason: reason}
}

// Invalid rejects the input on domain grounds (bad password, unknown choice).
func Invalid(text string) Result { return fail(ReasonInvalid, text) }

// Invalidf is Invalid with formatting.
func Invalidf(format string, args ...any) Result {
	return Invalid(fmt.Sprintf(format, args...))
}

// Internal reports an unexpected failure while running a command.
func Internal(text string) Result { return fail(ReasonInternal, text) }

// Syntax reports a line whose verb is known but whose shape is not.
func Syntax(text string) Result { return fail(ReasonSyntax, text) }

// NotFound reports a line no command matched.
func NotFound(text string) Result { return fail(ReasonNotFound, text) }

func prompt(text string) Result {
	return Result{Status: StatusPrompt, Presentation: text}
}

// Failed reports whether the result is a failure.
func (r Result) Failed() bool { return r.Status == StatusFail }
