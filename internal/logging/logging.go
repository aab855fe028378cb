// Package logging builds the zerolog loggers used by the commands.
package logging

import (
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/omochice/sabi-chat/internal/config"
)

// New returns a logger for cfg. With a log file, output goes to a rotating
// JSON file; otherwise it goes to console, rendered for humans. A nil
// console discards the output, which the full-screen front end needs.
func New(cfg config.Log, console io.Writer) (zerolog.Logger, io.Closer, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return zerolog.Nop(), nopCloser{}, errors.Wrapf(err, "invalid log level %q", cfg.Level)
	}

	var (
		w      io.Writer
		closer io.Closer = nopCloser{}
	)
	switch {
	case cfg.File != "":
		lj := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		}
		w, closer = lj, lj
	case console != nil:
		w = zerolog.ConsoleWriter{Out: console, TimeFormat: "15:04:05"}
	default:
		w = io.Discard
	}

	logger := zerolog.New(w).Level(level).With().Timestamp().Logger()
	return logger, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
