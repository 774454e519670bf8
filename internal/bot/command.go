package bot

import (
	"context"
	"strconv"

	"github.com/uika/tsugu-go-bot/internal/redconn"
)

// Command is one declared chat command. Name and Aliases are matched
// against the first whitespace token of a message; UsageKey points at the
// catalog entry the help command and argument errors show.
type Command struct {
	Name     string
	Aliases  []string
	UsageKey string
	Handler  HandlerFunc
}

// HandlerFunc runs one matched command and returns the segments to send.
// Returning an *ArgError produces the catalog text for malformed input;
// any other error goes through the failure renderer.
type HandlerFunc func(ctx context.Context, inv *Invocation) ([]redconn.Segment, error)

// Invocation carries one matched command call into its handler.
type Invocation struct {
	Event *redconn.Event
	Args  Args
}

// ArgError is a user-input problem with a ready user-facing message. It is
// sent as-is, without the generic failure prefix.
type ArgError struct {
	Message string
}

func (e *ArgError) Error() string { return e.Message }

// Args is the tokenized argument tail of a command message. Flags are
// extracted first; the rest is consumed positionally, with numeric and
// non-numeric tokens assignable independently so "ycx 1000 jp" and
// "ycx 1000 177 jp" both parse.
type Args struct {
	tokens []string
}

func NewArgs(tokens []string) Args { return Args{tokens: tokens} }

func (a *Args) Empty() bool { return len(a.tokens) == 0 }

func (a *Args) Len() int { return len(a.tokens) }

// Join returns the remaining tokens as one space-separated string.
func (a *Args) Join() string {
	out := ""
	for i, t := range a.tokens {
		if i > 0 {
			out += " "
		}
		out += t
	}
	return out
}

// TakeFlag removes the named flag token and reports whether it was present.
func (a *Args) TakeFlag(flag string) bool {
	for i, t := range a.tokens {
		if t == flag {
			a.tokens = append(a.tokens[:i:i], a.tokens[i+1:]...)
			return true
		}
	}
	return false
}

// TakeInt removes and returns the first numeric token.
func (a *Args) TakeInt() (int64, bool) {
	for i, t := range a.tokens {
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			a.tokens = append(a.tokens[:i:i], a.tokens[i+1:]...)
			return n, true
		}
	}
	return 0, false
}

// TakeWord removes and returns the first non-numeric token.
func (a *Args) TakeWord() (string, bool) {
	for i, t := range a.tokens {
		if _, err := strconv.ParseInt(t, 10, 64); err != nil {
			a.tokens = append(a.tokens[:i:i], a.tokens[i+1:]...)
			return t, true
		}
	}
	return "", false
}

// TakeAny removes and returns the first remaining token.
func (a *Args) TakeAny() (string, bool) {
	if len(a.tokens) == 0 {
		return "", false
	}
	t := a.tokens[0]
	a.tokens = a.tokens[1:]
	return t, true
}
