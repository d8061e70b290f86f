// Package log builds the root logger of the node. Components receive
// *zap.Logger through options and name it after themselves.
package log

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// where logs go by default.
var logWriter io.Writer = os.Stdout

const (
	// ConsoleFormat produces human readable output.
	ConsoleFormat = "console"
	// JSONFormat produces one json object per entry.
	JSONFormat = "json"
)

// NewNop creates silent logger.
func NewNop() *zap.Logger {
	return zap.NewNop()
}

// NewWithLevel creates a logger with a fixed level and with a set of (optional) hooks.
func NewWithLevel(module string,
	level zap.AtomicLevel,
	encoder zapcore.Encoder,
	hooks ...func(zapcore.Entry) error,
) *zap.Logger {
	core := zapcore.NewCore(encoder, zapcore.AddSync(logWriter), level)
	return zap.New(zapcore.RegisterHooks(core, hooks...)).Named(module)
}

// Encoder returns an encoder for the format.
func Encoder(format string) (zapcore.Encoder, error) {
	switch format {
	case "", ConsoleFormat:
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		return zapcore.NewConsoleEncoder(cfg), nil
	case JSONFormat:
		cfg := zap.NewProductionEncoderConfig()
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		return zapcore.NewJSONEncoder(cfg), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

// New creates the root logger from textual level and format.
func New(module, level, format string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, ErrBadFlags(err)
	}
	encoder, err := Encoder(format)
	if err != nil {
		return nil, ErrBadFlags(err)
	}
	return NewWithLevel(module, lvl, encoder), nil
}
