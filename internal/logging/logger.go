package logging

import (
	"io"
	"log/slog"
	"os"
)

// Options tune the logger built by New.
type Options struct {
	// Output defaults to stdout.
	Output io.Writer
	// Text switches from JSON to the human readable text handler.
	Text bool
	// App is attached to every record when set.
	App string
}

// New creates a slog logger configured at the provided level. If the
// level string is invalid it defaults to info.
func New(level string, opts ...Options) *slog.Logger {
	lvl := new(slog.LevelVar)
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl.Set(slog.LevelInfo)
	}

	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}
	out := o.Output
	if out == nil {
		out = os.Stdout
	}

	handlerOpts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if o.Text {
		handler = slog.NewTextHandler(out, handlerOpts)
	} else {
		handler = slog.NewJSONHandler(out, handlerOpts)
	}

	logger := slog.New(handler)
	if o.App != "" {
		logger = logger.With(slog.String("app", o.App))
	}
	return logger
}

// Discard returns a logger that drops all output. Useful for tests.
func Discard() *slog.Logger {
	handler := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError})
	return slog.New(handler)
}
