// Package logger builds the zerolog logger shared by the clinical commands.
//
// Each command installs it once through Init after reading its flags and
// configuration. Entries carry the service name and build version, so the
// auth API and the consumer daemons can write to one sink.
package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Options describes the shared logger.
type Options struct {
	Level   string // trace, debug, info, warn or error; anything else means info
	Pretty  bool   // console output for local development
	Output  io.Writer
	Service string
	Version string
}

var (
	mu     sync.Mutex
	shared *zerolog.Logger
)

// New builds a logger from opts. It does not touch the shared logger.
func New(opts Options) zerolog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	if opts.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	fields := zerolog.New(out).Level(parseLevel(opts.Level)).With().Timestamp().Caller()
	if opts.Service != "" {
		fields = fields.Str("service", opts.Service)
	}
	if opts.Version != "" {
		fields = fields.Str("version", opts.Version)
	}
	return fields.Logger()
}

// Init installs the shared logger and returns it. Once installed, later
// calls return it unchanged and opts are ignored.
func Init(opts Options) zerolog.Logger {
	mu.Lock()
	defer mu.Unlock()
	if shared == nil {
		zerolog.TimeFieldFormat = time.RFC3339Nano
		zerolog.SetGlobalLevel(parseLevel(opts.Level))
		l := New(opts)
		shared = &l
	}
	return *shared
}

// Get returns the shared logger. Before Init it returns a JSON logger on
// stderr, which is what startup failures are reported through.
func Get() zerolog.Logger {
	mu.Lock()
	defer mu.Unlock()
	if shared == nil {
		return zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	return *shared
}

func parseLevel(s string) zerolog.Level {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "warning" {
		s = "warn"
	}
	lvl, err := zerolog.ParseLevel(s)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
