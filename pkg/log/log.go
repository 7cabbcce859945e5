package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the process-wide logger. It discards output until Init is
// called, so packages can log from tests without setup.
var Logger = zerolog.Nop()

// Level is a log level as written in the daemon configuration
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

var zerologLevels = map[Level]zerolog.Level{
	DebugLevel: zerolog.DebugLevel,
	InfoLevel:  zerolog.InfoLevel,
	WarnLevel:  zerolog.WarnLevel,
	ErrorLevel: zerolog.ErrorLevel,
}

// ParseLevel converts a config string to a Level. Unknown values map to info.
func ParseLevel(s string) Level {
	if _, ok := zerologLevels[Level(s)]; ok {
		return Level(s)
	}
	return InfoLevel
}

func (l Level) toZerolog() zerolog.Level {
	if zl, ok := zerologLevels[l]; ok {
		return zl
	}
	return zerolog.InfoLevel
}

// Config controls where and how log lines are written
type Config struct {
	Level      Level
	JSONOutput bool
	// Output defaults to stdout
	Output io.Writer
}

// Init replaces the global logger and sets the global level
func Init(cfg Config) {
	zerolog.SetGlobalLevel(cfg.Level.toZerolog())
	Logger = zerolog.New(newWriter(cfg)).With().Timestamp().Logger()
}

func newWriter(cfg Config) io.Writer {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	if cfg.JSONOutput {
		return out
	}
	return zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
}

// With returns a child of the global logger carrying one string field
func With(key, value string) zerolog.Logger {
	return Logger.With().Str(key, value).Logger()
}

// WithComponent tags lines with the daemon component that wrote them
func WithComponent(component string) zerolog.Logger {
	return With("component", component)
}

// WithConnection tags lines with an IKE connection name
func WithConnection(name string) zerolog.Logger {
	return With("connection", name)
}
