// Package logging provides the leveled logger used across the agent. Log
// output always goes to stderr (or another explicit writer): stdout carries
// the wire protocol and must stay clean.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
)

type Logger struct {
	logger zerolog.Logger
}

// New returns a logger writing to stderr at the given level. Unknown level
// strings fall back to info.
func New(level string) *Logger {
	return NewWithWriter(level, os.Stderr)
}

// NewWithWriter is like New but writes to w. Used by tests to capture output.
func NewWithWriter(level string, w io.Writer) *Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	return &Logger{
		logger: zerolog.New(w).Level(lvl).With().Timestamp().Logger(),
	}
}

func (l *Logger) Debugf(format string, args ...any) {
	l.logger.Debug().Msg(fmt.Sprintf(format, args...))
}

func (l *Logger) Infof(format string, args ...any) {
	l.logger.Info().Msg(fmt.Sprintf(format, args...))
}

func (l *Logger) Warnf(format string, args ...any) {
	l.logger.Warn().Msg(fmt.Sprintf(format, args...))
}

func (l *Logger) Errorf(format string, args ...any) {
	l.logger.Error().Msg(fmt.Sprintf(format, args...))
}

// WithField returns a logger that attaches key=value to every message.
func (l *Logger) WithField(key, value string) *Logger {
	return &Logger{logger: l.logger.With().Str(key, value).Logger()}
}
