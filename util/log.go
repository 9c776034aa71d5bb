package util

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger creates a leveled logger on stderr, pretty switches to the console format
func NewLogger(level string, pretty bool) (zerolog.Logger, error) {
	return NewLoggerTo(os.Stderr, level, pretty)
}

func NewLoggerTo(out io.Writer, level string, pretty bool) (zerolog.Logger, error) {
	if level == "" {
		level = "info"
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), err
	}
	if pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger(), nil
}
