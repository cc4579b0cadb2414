package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/VanDung-dev/HieraBank-Engine/command"
)

// GenConfig holds configuration for the generator.
type GenConfig struct {
	Commands   int
	Accounts   int
	MaxDelta   int64
	Width      int
	CheckRatio float64
	Seed       uint64
	OutputFile string
}

// maxWidth is the most entries a TRANS line can carry.
const maxWidth = (command.MaxTokens - 1) / 2

func main() {
	config := parseFlags()

	out := io.Writer(os.Stdout)
	if config.OutputFile != "" {
		f, err := os.Create(config.OutputFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "loadgen: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		out = f
	}

	if err := generate(out, config); err != nil {
		fmt.Fprintf(os.Stderr, "loadgen: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() GenConfig {
	config := GenConfig{}

	flag.IntVar(&config.Commands, "n", 1000, "Number of commands before END")
	flag.IntVar(&config.Accounts, "k", 100, "Number of accounts")
	flag.Int64Var(&config.MaxDelta, "max-delta", 100, "Largest absolute delta per entry")
	flag.IntVar(&config.Width, "width", 4, "Largest number of entries per transfer")
	flag.Float64Var(&config.CheckRatio, "check-ratio", 0.2, "Fraction of commands that are CHECK")
	flag.Uint64Var(&config.Seed, "seed", uint64(time.Now().UnixNano()), "Random seed")
	flag.StringVar(&config.OutputFile, "o", "", "Output file (default stdout)")

	flag.Parse()

	return config
}

func (c GenConfig) validate() error {
	switch {
	case c.Commands < 0:
		return errors.Errorf("command count %d is negative", c.Commands)
	case c.Accounts < 1:
		return errors.Errorf("account count %d must be positive", c.Accounts)
	case c.MaxDelta < 1:
		return errors.Errorf("max delta %d must be positive", c.MaxDelta)
	case c.Width < 1 || c.Width > maxWidth:
		return errors.Errorf("width %d not in 1..%d", c.Width, maxWidth)
	case c.CheckRatio < 0 || c.CheckRatio > 1:
		return errors.Errorf("check ratio %v not in [0,1]", c.CheckRatio)
	}
	return nil
}

// generate writes config.Commands random commands followed by END.
func generate(w io.Writer, config GenConfig) error {
	if err := config.validate(); err != nil {
		return err
	}

	rng := rand.New(rand.NewPCG(config.Seed, config.Seed^0x9e3779b97f4a7c15))
	bw := bufio.NewWriter(w)

	for i := 0; i < config.Commands; i++ {
		if _, err := fmt.Fprintln(bw, command.Format(nextCommand(rng, config))); err != nil {
			return errors.Wrap(err, "write command")
		}
	}
	if _, err := fmt.Fprintln(bw, command.Format(command.Command{Kind: command.End})); err != nil {
		return errors.Wrap(err, "write END")
	}
	return errors.Wrap(bw.Flush(), "flush")
}

func nextCommand(rng *rand.Rand, config GenConfig) command.Command {
	account := func() int { return rng.IntN(config.Accounts) + 1 }

	if rng.Float64() < config.CheckRatio {
		return command.Command{Kind: command.Check, Account: account()}
	}

	entries := make([]command.Entry, 1+rng.IntN(config.Width))
	for i := range entries {
		delta := rng.Int64N(2*config.MaxDelta+1) - config.MaxDelta
		entries[i] = command.Entry{Account: account(), Delta: delta}
	}
	return command.Command{Kind: command.Transfer, Entries: entries}
}
