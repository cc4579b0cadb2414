package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VanDung-dev/HieraBank-Engine/arrow"
	"github.com/VanDung-dev/HieraBank-Engine/config"
	"github.com/VanDung-dev/HieraBank-Engine/engine"
)

func TestParseArgs(t *testing.T) {
	cfg, err := parseArgs([]string{"-initial-balance", "25", "-ack=false", "8", "100", "out.txt"}, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, 100, cfg.Accounts)
	assert.Equal(t, "out.txt", cfg.OutputPath)
	assert.Equal(t, int64(25), cfg.InitialBalance)
	assert.False(t, cfg.Ack)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestParseArgsFlagsAfterPositional(t *testing.T) {
	cfg, err := parseArgs([]string{"4", "-snapshot", "snap.arrow", "10", "-", "--ack=false"}, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 10, cfg.Accounts)
	assert.Equal(t, "-", cfg.OutputPath)
	assert.Equal(t, "snap.arrow", cfg.SnapshotPath)
	assert.False(t, cfg.Ack)
}

func TestParseArgsInvalid(t *testing.T) {
	cases := map[string][]string{
		"missing output":  {"4", "10"},
		"extra argument":  {"4", "10", "out", "more"},
		"bad workers":     {"four", "10", "out"},
		"zero workers":    {"0", "10", "out"},
		"bad accounts":    {"4", "ten", "out"},
		"too many":        {"4", "10001", "out"},
		"negative start":  {"-initial-balance", "-1", "4", "10", "out"},
		"bad log level":   {"-log-level", "loud", "4", "10", "out"},
		"unknown flag":    {"-nope", "4", "10", "out"},
		"bad arrow batch": {"-arrow-out", "x.arrow", "-arrow-batch", "0", "4", "10", "out"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := parseArgs(args, io.Discard)
			assert.Error(t, err)
		})
	}

	_, err := parseArgs([]string{"4", "0", "out"}, io.Discard)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Workers = 1
	cfg.Accounts = 3
	cfg.InitialBalance = 100
	cfg.OutputPath = filepath.Join(dir, "results.txt")
	cfg.ArrowPath = filepath.Join(dir, "results.arrow")
	cfg.ArrowBatchSize = 2
	cfg.SnapshotPath = filepath.Join(dir, "balances.arrow")
	require.NoError(t, cfg.Validate())

	input := strings.Join([]string{
		"TRANS 1 -50 2 50",
		"",
		"CHECK 2",
		"BOGUS 1",
		"TRANS 3 -200 1 200",
		"CHECK 9",
		"END",
		"CHECK 1",
	}, "\n")

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), cfg, strings.NewReader(input), &out))

	assert.Equal(t, "< ID 1\n< ID 2\n< ID 3\n", out.String())

	text, err := os.ReadFile(cfg.OutputPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(text)), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "1 OK TIME "), lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "2 BAL 150 TIME "), lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "3 ISF 3 TIME "), lines[2])

	f, err := os.Open(cfg.ArrowPath)
	require.NoError(t, err)
	defer f.Close()
	results, err := arrow.ReadResults(f)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, engine.OutcomeAborted, results[2].Outcome.Status)

	snap, err := os.Open(cfg.SnapshotPath)
	require.NoError(t, err)
	defer snap.Close()
	balances, err := arrow.ReadSnapshot(snap)
	require.NoError(t, err)
	assert.Equal(t, []int64{50, 150, 100}, balances)
}

func TestRunCancelled(t *testing.T) {
	cfg := config.Default()
	cfg.Accounts = 2
	cfg.OutputPath = filepath.Join(t.TempDir(), "out.txt")
	cfg.Ack = false

	// Input that never ends: only cancellation stops the run.
	r, w := io.Pipe()
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, run(ctx, cfg, r, io.Discard))
}

func TestRunReportsOverflowingTransfer(t *testing.T) {
	cfg := config.Default()
	cfg.Workers = 1
	cfg.Accounts = 2
	cfg.InitialBalance = 100
	cfg.OutputPath = filepath.Join(t.TempDir(), "results.txt")

	input := "TRANS 1 9223372036854775807\nTRANS 1 -1 2 9223372036854775807\nCHECK 1\nEND\n"
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), cfg, strings.NewReader(input), &out))

	acks := strings.Split(strings.TrimSpace(out.String()), "\n")
	text, err := os.ReadFile(cfg.OutputPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(text)), "\n")

	require.Len(t, acks, 3)
	require.Len(t, lines, len(acks))
	assert.True(t, strings.HasPrefix(lines[0], "1 ISF 1 TIME "), lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "2 ISF 2 TIME "), lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "3 BAL 100 TIME "), lines[2])
}

func TestRunStdoutKeepsLinesWhole(t *testing.T) {
	cfg := config.Default()
	cfg.Workers = 4
	cfg.Accounts = 1
	cfg.InitialBalance = 100
	cfg.OutputPath = "-"

	const n = 20000
	input := strings.Repeat("CHECK 1\n", n) + "END\n"
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), cfg, strings.NewReader(input), &out))

	var acks, results int
	for _, line := range strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n") {
		fields := strings.Fields(line)
		if strings.HasPrefix(line, "< ID ") {
			require.Len(t, fields, 3, "line %q", line)
			acks++
			continue
		}
		require.Len(t, fields, 6, "line %q", line)
		require.Equal(t, "BAL", fields[1], "line %q", line)
		require.Equal(t, "100", fields[2], "line %q", line)
		results++
	}
	assert.Equal(t, n, acks)
	assert.Equal(t, n, results)
}

func TestRunFailsWhenResultsAreLost(t *testing.T) {
	if _, err := os.Stat("/dev/full"); err != nil {
		t.Skip("/dev/full not available")
	}
	cfg := config.Default()
	cfg.Accounts = 2
	cfg.OutputPath = "/dev/full"
	cfg.Ack = false

	err := run(context.Background(), cfg, strings.NewReader("CHECK 1\nCHECK 2\nEND\n"), io.Discard)
	assert.Error(t, err)
}
