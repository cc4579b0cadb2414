// Package config holds the bank server's startup parameters.
package config

import (
	"github.com/pkg/errors"
	"go.uber.org/zap/zapcore"

	"github.com/VanDung-dev/HieraBank-Engine/bank"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config contains everything the server needs before it accepts commands.
type Config struct {
	// Workers is the number of worker goroutines
	Workers int

	// Accounts is the size of the account table, at most bank.MaxAccounts
	Accounts int

	// OutputPath is the result file; "-" writes to stdout
	OutputPath string

	// InitialBalance is the opening balance of every account
	InitialBalance int64

	// LogLevel is a zap level name (debug, info, warn, error)
	LogLevel string

	// MetricsAddr serves /metrics and /health when non-empty (e.g. ":9100")
	MetricsAddr string

	// PublishAddr publishes results over ZeroMQ when non-empty (e.g. "tcp://*:5557")
	PublishAddr string

	// ArrowPath writes results as an Arrow IPC stream when non-empty
	ArrowPath string

	// ArrowBatchSize is the number of results per Arrow record batch
	ArrowBatchSize int

	// SnapshotPath writes final balances as Arrow IPC when non-empty
	SnapshotPath string

	// Ack echoes "< ID <n>" to stdout for every accepted request
	Ack bool
}

// Default returns a Config with sensible defaults. Accounts and OutputPath
// have no default and must be set.
func Default() *Config {
	return &Config{
		Workers:        4,
		InitialBalance: 0,
		LogLevel:       "info",
		ArrowBatchSize: 1024,
		Ack:            true,
	}
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return errors.Wrapf(ErrInvalidConfig, "worker count %d must be at least 1", c.Workers)
	}
	if c.Accounts < 1 || c.Accounts > bank.MaxAccounts {
		return errors.Wrapf(ErrInvalidConfig, "account count %d must be in 1..%d", c.Accounts, bank.MaxAccounts)
	}
	if c.OutputPath == "" {
		return errors.Wrap(ErrInvalidConfig, "output path is required")
	}
	if c.InitialBalance < 0 {
		return errors.Wrapf(ErrInvalidConfig, "initial balance %d is negative", c.InitialBalance)
	}
	if _, err := c.Level(); err != nil {
		return errors.Wrapf(ErrInvalidConfig, "log level %q", c.LogLevel)
	}
	if c.ArrowPath != "" && c.ArrowBatchSize < 1 {
		return errors.Wrapf(ErrInvalidConfig, "arrow batch size %d must be positive", c.ArrowBatchSize)
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (zapcore.Level, error) {
	level := zapcore.InfoLevel
	if c.LogLevel == "" {
		return level, nil
	}
	err := level.Set(c.LogLevel)
	return level, err
}
