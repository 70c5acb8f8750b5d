package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const consoleTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// New builds the process logger. format is "console" for human-readable
// output or "json" for one JSON object per line.
func New(level, format string) zerolog.Logger {
	return NewWithWriter(os.Stdout, level, format)
}

// NewWithWriter is New with an explicit sink.
func NewWithWriter(w io.Writer, level, format string) zerolog.Logger {
	if format != "json" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: consoleTimeFormat, NoColor: true}
	}
	return zerolog.New(w).Level(ParseLevel(level)).With().Timestamp().Logger()
}

// ParseLevel maps a level name to zerolog, defaulting to info.
func ParseLevel(raw string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(raw)
	if err != nil || raw == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

// Component returns a child logger tagged with the component name.
func Component(log zerolog.Logger, name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}

// Printf adapts a zerolog logger to printf-style sinks such as gorm's logger
// and the Telegram client.
type Printf struct {
	Log   zerolog.Logger
	Level zerolog.Level
}

func (p Printf) Printf(format string, args ...interface{}) {
	p.Log.WithLevel(p.Level).Msgf(format, args...)
}

func (p Printf) Println(v ...interface{}) {
	p.Log.WithLevel(p.Level).Msg(strings.TrimSuffix(fmt.Sprintln(v...), "\n"))
}

// Since formats an elapsed duration in milliseconds for log fields.
func Since(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
