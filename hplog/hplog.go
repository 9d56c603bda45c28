// Package hplog provides the node's structured zerolog logger and the
// component/round tagging helpers the rest of the module logs through.
package hplog

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger is the node-wide structured logger, one instance per process,
// with per-component instances derived via With().
type Logger = zerolog.Logger

// New builds the root logger. level is one of zerolog's level strings
// ("debug", "info", "warn", "error"); an unrecognized value falls back to
// info.
func New(out io.Writer, level string) Logger {
	if out == nil {
		out = os.Stderr
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

// Component returns a child logger tagged with the owning package/module
// name.
func Component(l Logger, name string) Logger {
	return l.With().Str("component", name).Logger()
}

// ForRound returns a child logger tagged with the round's sequence number,
// so every log line emitted while processing a round can be grepped
// together.
func ForRound(l Logger, seqNo uint64) Logger {
	return l.With().Uint64("seq_no", seqNo).Logger()
}
