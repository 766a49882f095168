// Package sysutil holds process-level helpers shared by the entrypoints.
package sysutil

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogOptions configures the global logger.
type LogOptions struct {
	Level   string
	Pretty  bool
	Service string
	Version string
}

// ParseLevel maps a configured level name to a zerolog level. "warning" is
// accepted as an alias; blank or unknown names fall back to info.
func ParseLevel(name string) zerolog.Level {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "warning" {
		name = "warn"
	}
	lvl, err := zerolog.ParseLevel(name)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// ConfigureLogger installs the global logger on stderr. Pretty selects the
// console writer; otherwise each event is one JSON line tagged with the
// service name and version.
func ConfigureLogger(opt LogOptions) {
	configureLogger(os.Stderr, opt)
}

func configureLogger(w io.Writer, opt LogOptions) {
	zerolog.SetGlobalLevel(ParseLevel(opt.Level))
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.DurationFieldUnit = time.Millisecond
	if opt.Pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05.000"}
	}
	ctx := zerolog.New(w).With().Timestamp()
	if opt.Service != "" {
		ctx = ctx.Str("service", opt.Service)
	}
	if opt.Version != "" {
		ctx = ctx.Str("version", opt.Version)
	}
	log.Logger = ctx.Logger()
}

// FirstNonEmpty returns the first value that is not blank, unmodified.
func FirstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
