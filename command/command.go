// Package command parses the bank server's line-oriented command grammar:
//
//	CHECK <accountId>
//	TRANS <accountId> <delta> [<accountId> <delta> ...]
//	END
package command

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// MaxTokens bounds the number of tokens accepted on one line.
const MaxTokens = 50

// Common errors for command parsing
var (
	ErrEmptyLine        = errors.New("empty command line")
	ErrUnknownCommand   = errors.New("unknown command")
	ErrMalformedCommand = errors.New("malformed command")
	ErrTooManyTokens    = errors.New("too many tokens")
)

// Kind identifies a command.
type Kind int

const (
	Check Kind = iota
	Transfer
	End
)

func (k Kind) String() string {
	switch k {
	case Check:
		return "CHECK"
	case Transfer:
		return "TRANS"
	case End:
		return "END"
	default:
		return "UNKNOWN"
	}
}

// Entry is one (account, delta) pair of a transfer.
type Entry struct {
	Account int
	Delta   int64
}

// Command is a parsed input line.
type Command struct {
	Kind    Kind
	Account int     // CHECK only
	Entries []Entry // TRANS only, in submission order
}

// Parse tokenizes line and builds a Command. Blank lines return ErrEmptyLine.
func Parse(line string) (Command, error) {
	tokens := strings.Fields(line)
	if len(tokens) == 0 {
		return Command{}, ErrEmptyLine
	}
	if len(tokens) > MaxTokens {
		return Command{}, errors.Wrapf(ErrTooManyTokens, "%d tokens, limit %d", len(tokens), MaxTokens)
	}

	switch tokens[0] {
	case "CHECK":
		if len(tokens) != 2 {
			return Command{}, errors.Wrap(ErrMalformedCommand, "CHECK takes exactly one account")
		}
		id, err := parseAccount(tokens[1])
		if err != nil {
			return Command{}, err
		}
		return Command{Kind: Check, Account: id}, nil

	case "TRANS":
		if len(tokens) < 3 || len(tokens)%2 != 1 {
			return Command{}, errors.Wrap(ErrMalformedCommand, "TRANS takes account/amount pairs")
		}
		entries := make([]Entry, 0, (len(tokens)-1)/2)
		for i := 1; i < len(tokens); i += 2 {
			id, err := parseAccount(tokens[i])
			if err != nil {
				return Command{}, err
			}
			delta, err := strconv.ParseInt(tokens[i+1], 10, 64)
			if err != nil {
				return Command{}, errors.Wrapf(ErrMalformedCommand, "amount %q", tokens[i+1])
			}
			entries = append(entries, Entry{Account: id, Delta: delta})
		}
		return Command{Kind: Transfer, Entries: entries}, nil

	case "END":
		if len(tokens) != 1 {
			return Command{}, errors.Wrap(ErrMalformedCommand, "END takes no arguments")
		}
		return Command{Kind: End}, nil
	}

	return Command{}, errors.Wrapf(ErrUnknownCommand, "%q", tokens[0])
}

func parseAccount(tok string) (int, error) {
	id, err := strconv.Atoi(tok)
	if err != nil {
		return 0, errors.Wrapf(ErrMalformedCommand, "account %q", tok)
	}
	if id < 1 {
		return 0, errors.Wrapf(ErrMalformedCommand, "account %d must be positive", id)
	}
	return id, nil
}

// Format renders c in the input grammar.
func Format(c Command) string {
	var b strings.Builder
	b.WriteString(c.Kind.String())
	switch c.Kind {
	case Check:
		b.WriteByte(' ')
		b.WriteString(strconv.Itoa(c.Account))
	case Transfer:
		for _, e := range c.Entries {
			b.WriteByte(' ')
			b.WriteString(strconv.Itoa(e.Account))
			b.WriteByte(' ')
			b.WriteString(strconv.FormatInt(e.Delta, 10))
		}
	}
	return b.String()
}
