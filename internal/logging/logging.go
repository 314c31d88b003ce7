// Package logging builds the CLI's slog logger.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	slogmulti "github.com/samber/slog-multi"
	slogjournal "github.com/systemd/slog-journal"
)

// Options selects the handlers of a logger.
type Options struct {
	Level   slog.Level
	JSON    bool // JSON instead of text on the terminal writer
	Journal bool // also send records to the systemd journal
}

// ParseLevel maps a config level name to a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return 0, fmt.Errorf("invalid log level %q", name)
	}
	return level, nil
}

// New returns a logger writing to w and, when requested, to the journal.
// A journal that cannot be opened is reported on w and skipped.
func New(w io.Writer, opts Options) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{Level: opts.Level}

	var terminal slog.Handler
	if opts.JSON {
		terminal = slog.NewJSONHandler(w, handlerOpts)
	} else {
		terminal = slog.NewTextHandler(w, handlerOpts)
	}
	if !opts.Journal {
		return slog.New(terminal)
	}

	handlers := []slog.Handler{terminal}
	journal, err := slogjournal.NewHandler(&slogjournal.Options{
		Level: opts.Level,
		ReplaceGroup: func(key string) string {
			return journalKey(key)
		},
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			a.Key = journalKey(a.Key)
			return a
		},
	})
	if err != nil {
		record := slog.NewRecord(time.Now(), slog.LevelWarn, "systemd journal unavailable", 0)
		record.Add("error", err)
		_ = terminal.Handle(context.Background(), record)
	} else {
		handlers = append(handlers, journal)
	}

	return slog.New(slogmulti.Fanout(handlers...))
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// journalKey converts an attribute key to a journal field name:
// upper case letters, digits and underscores.
func journalKey(key string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return r
		}
		return '_'
	}, strings.ToUpper(key))
}
