// Package logger builds the zap loggers handed to every component.
package logger

import (
	"os"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Standard field names for structured logging.
const (
	FieldDataset    = "dataset"
	FieldBackend    = "backend"
	FieldPath       = "path"
	FieldCount      = "count"
	FieldBatchStart = "batch_start"
	FieldBatchSize  = "batch_size"
	FieldDurationMS = "duration_ms"
	FieldError      = "error"
)

// Options configures New.
type Options struct {
	Level string
	JSON  bool
	// Verbosity raises the level: 1 or more enables debug.
	Verbosity int
}

// New returns a sugared logger writing to stderr so stdout stays reserved for the summary line.
func New(opts Options) (*zap.SugaredLogger, error) {
	level, err := zapcore.ParseLevel(opts.Level)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid log level %q", opts.Level)
	}
	if opts.Verbosity > 0 && level > zapcore.DebugLevel {
		level = zapcore.DebugLevel
	}

	if opts.JSON {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(level)
		cfg.OutputPaths = []string{"stderr"}
		l, err := cfg.Build()
		if err != nil {
			return nil, errors.Wrap(err, "build json logger")
		}
		return l.Sugar(), nil
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
	encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.AddSync(os.Stderr),
		level,
	)
	return zap.New(core).Sugar(), nil
}

// Nop returns a logger that discards everything.
func Nop() *zap.SugaredLogger { return zap.NewNop().Sugar() }
