// Package logger wraps zerolog with process-wide defaults and
// request-scoped child loggers.
package logger

import (
	"context"
	"io"
	"os"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/pkgerrors"
)

type Options struct {
	Level   string
	Format  string
	Service string
	Writer  io.Writer
	Caller  bool
}

// FromEnv reads LOG_LEVEL and LOG_FORMAT.
func FromEnv() Options {
	return Options{
		Level:   strings.ToLower(os.Getenv("LOG_LEVEL")),
		Format:  strings.ToLower(os.Getenv("LOG_FORMAT")),
		Service: "symposium-api",
	}
}

var (
	once   sync.Once
	root   atomic.Pointer[zerolog.Logger]
	inited atomic.Bool
)

type Logger = zerolog.Logger

// Get returns the root logger, initialising it from the environment on first use.
func Get() *Logger {
	if !inited.Load() {
		Init(FromEnv())
	}
	return root.Load()
}

// Init builds the root logger. Only the first call has any effect.
func Init(opt Options) {
	once.Do(func() {
		zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
		zerolog.TimeFieldFormat = time.RFC3339Nano
		log := New(opt)
		root.Store(&log)
		inited.Store(true)
	})
}

// New builds a standalone logger without touching the root.
func New(opt Options) Logger {
	var w io.Writer = os.Stdout
	if opt.Writer != nil {
		w = opt.Writer
	}
	if opt.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	ctx := zerolog.New(w).Level(parseLevel(opt.Level)).With().Timestamp()
	if bi, ok := debug.ReadBuildInfo(); ok && bi != nil {
		ctx = ctx.Str("go_version", bi.GoVersion)
	}
	if opt.Service != "" {
		ctx = ctx.Str("service", opt.Service)
	}
	if opt.Caller {
		ctx = ctx.Caller()
	}
	return ctx.Logger()
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

type ctxKey struct{ name string }

var keyRequestID = ctxKey{"request_id"}

// WithRequestID annotates ctx so that C attaches request_id to every line.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, keyRequestID, id)
}

// RequestID returns the id stored by WithRequestID.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(keyRequestID).(string)
	return id
}

// C returns a child of the root logger enriched from ctx.
func C(ctx context.Context) *Logger {
	l := Get()
	if ctx == nil {
		return l
	}
	id := RequestID(ctx)
	if id == "" {
		return l
	}
	ll := l.With().Str("request_id", id).Logger()
	return &ll
}

// Named returns a child logger with a component field.
func Named(component string) *Logger {
	if component == "" {
		return Get()
	}
	ll := Get().With().Str("component", component).Logger()
	return &ll
}
