package command

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Command
	}{
		{"Check", "CHECK 3", Command{Kind: Check, Account: 3}},
		{"CheckTrailingNewline", "CHECK 12\r\n", Command{Kind: Check, Account: 12}},
		{"TransferSingle", "TRANS 1 -20", Command{Kind: Transfer, Entries: []Entry{{1, -20}}}},
		{
			"TransferMany",
			"TRANS 1 -30\t2 30  3 +5",
			Command{Kind: Transfer, Entries: []Entry{{1, -30}, {2, 30}, {3, 5}}},
		},
		{
			"TransferRepeatedAccount",
			"TRANS 4 10 4 -3",
			Command{Kind: Transfer, Entries: []Entry{{4, 10}, {4, -3}}},
		},
		{"End", "END\n", Command{Kind: End}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		line string
		want error
	}{
		{"Blank", "   \t\n", ErrEmptyLine},
		{"Unknown", "WITHDRAW 1 5", ErrUnknownCommand},
		{"LowerCase", "check 1", ErrUnknownCommand},
		{"CheckMissingAccount", "CHECK", ErrMalformedCommand},
		{"CheckExtraToken", "CHECK 1 2", ErrMalformedCommand},
		{"CheckNotNumber", "CHECK one", ErrMalformedCommand},
		{"CheckZero", "CHECK 0", ErrMalformedCommand},
		{"TransferNoPairs", "TRANS", ErrMalformedCommand},
		{"TransferOddTokens", "TRANS 1 5 2", ErrMalformedCommand},
		{"TransferBadAmount", "TRANS 1 5x", ErrMalformedCommand},
		{"TransferNegativeAccount", "TRANS -1 5", ErrMalformedCommand},
		{"EndWithArgs", "END now", ErrMalformedCommand},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.line)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestParseTokenLimit(t *testing.T) {
	line := "TRANS"
	for i := 0; i < MaxTokens/2; i++ {
		line += " 1 1"
	}
	_, err := Parse(line)
	assert.True(t, errors.Is(err, ErrTooManyTokens))
}

func TestFormatRoundTrip(t *testing.T) {
	for _, line := range []string{"CHECK 7", "TRANS 1 -30 2 30", "END"} {
		c, err := Parse(line)
		require.NoError(t, err)
		assert.Equal(t, line, Format(c))
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "CHECK", Check.String())
	assert.Equal(t, "TRANS", Transfer.String())
	assert.Equal(t, "END", End.String())
	assert.Equal(t, "UNKNOWN", Kind(99).String())
}

// FuzzParse checks the parser never panics and that accepted commands are
// well formed.
// Run with: go test -fuzz=FuzzParse -fuzztime=30s ./command/
func FuzzParse(f *testing.F) {
	f.Add("CHECK 1")
	f.Add("TRANS 1 -30 2 30")
	f.Add("END")
	f.Add("TRANS 1")
	f.Add("CHECK 99999999999999999999")
	f.Add("\x00\xff")

	f.Fuzz(func(t *testing.T, line string) {
		c, err := Parse(line)
		if err != nil {
			return
		}
		switch c.Kind {
		case Check:
			if c.Account < 1 {
				t.Fatalf("accepted CHECK with account %d", c.Account)
			}
		case Transfer:
			if len(c.Entries) == 0 {
				t.Fatal("accepted TRANS without entries")
			}
			for _, e := range c.Entries {
				if e.Account < 1 {
					t.Fatalf("accepted TRANS with account %d", e.Account)
				}
			}
		}
		again, err := Parse(Format(c))
		if err != nil {
			t.Fatalf("formatted command %q does not parse: %v", Format(c), err)
		}
		if Format(again) != Format(c) {
			t.Fatalf("format not stable: %q vs %q", Format(again), Format(c))
		}
	})
}
