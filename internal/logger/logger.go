// Package logger configures the global zerolog logger from command line options.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/woozymasta/mcwatch/internal/vars"
)

// Config holds configuration options for the application logger.
type Config struct {
	Level  string `long:"level" env:"LEVEL" description:"Log level (trace, debug, info, warn, error)" default:"info" json:"level"`
	Format string `long:"format" env:"FORMAT" description:"Log format (console or json)" default:"console" json:"format"`
	Output string `long:"output" env:"OUTPUT" description:"Log output (stdout, stderr or file path)" default:"stderr" json:"output"`
}

// Setup installs the global logger and returns a func closing the log file,
// if one was opened.
func Setup(cfg Config) func() {
	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)
	zerolog.TimestampFunc = func() time.Time { return time.Now().UTC() }
	zerolog.DurationFieldUnit = time.Millisecond

	writer, closeFn := openOutput(cfg.Output)
	l := New(cfg.Format, writer)
	if level <= zerolog.DebugLevel {
		l = l.With().Caller().Logger()
	}
	log.Logger = l

	return closeFn
}

// New builds a logger writing in the given format to w. JSON entries carry
// the service name and version for log shippers.
func New(format string, w io.Writer) zerolog.Logger {
	if strings.EqualFold(format, "json") {
		return zerolog.New(w).With().
			Timestamp().
			Str("service", vars.Name).
			Str("version", vars.Version).
			Logger()
	}

	return zerolog.New(zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
		NoColor:    !colorful(w),
	}).With().Timestamp().Logger()
}

func parseLevel(s string) zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

// openOutput resolves stdout, stderr or a file path. A file that cannot be
// opened falls back to stderr.
func openOutput(output string) (io.Writer, func()) {
	switch output {
	case "stdout":
		return os.Stdout, func() {}
	case "stderr", "":
		return os.Stderr, func() {}
	}

	file, err := os.OpenFile(output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		fallback := New("console", os.Stderr)
		fallback.Error().Err(err).Str("path", output).Msg("Failed to open log file, falling back to stderr")
		return os.Stderr, func() {}
	}

	return file, func() { _ = file.Close() }
}

// colorful reports whether w is a terminal and NO_COLOR is unset.
func colorful(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || os.Getenv("NO_COLOR") != "" {
		return false
	}

	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return stat.Mode()&os.ModeCharDevice != 0
}
