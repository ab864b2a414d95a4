// Package logging renders the engine's structured event stream (see
// config.Event) to the terminal: colorized, leveled, human-readable lines
// backed by log/slog's text handler.
package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/fatih/color"

	"github.com/relaykms/kmsgate/config"
)

// contextKey avoids collisions with other packages' context values.
type contextKey string

const requestIDKey contextKey = "request_id"

// LevelMinimal sits between slog.LevelDebug and slog.LevelInfo. The
// RequestAccepted/ResponseSent events are logged at this level, so they are
// printed at the MINI and DEBUG verbosities and filtered out at INFO; MINI
// also prints every event at Info and above.
const LevelMinimal slog.Level = slog.LevelInfo - 2

var levelNames = map[slog.Leveler]string{
	LevelMinimal: "MINI",
}

var (
	mu       sync.Mutex
	logger   *slog.Logger
	initOnce sync.Once
)

func slogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LevelMinimal:
		return LevelMinimal
	case config.LevelDebug:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// Init builds the process-wide logger at the given verbosity. Safe to call
// more than once; the last call wins.
func Init(level config.LogLevel) {
	mu.Lock()
	defer mu.Unlock()
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slogLevel(level),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok {
					if name, ok := levelNames[lvl]; ok {
						a.Value = slog.StringValue(name)
					}
				}
			}
			return a
		},
	})
	logger = slog.New(handler)
}

func get() *slog.Logger {
	initOnce.Do(func() { Init(config.LevelInfo) })
	mu.Lock()
	defer mu.Unlock()
	return logger
}

// WithRequestID attaches a per-connection identifier to ctx for correlated
// log lines across a session's lifetime.
func WithRequestID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

func requestIDFrom(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(requestIDKey).(int64)
	return id, ok
}

// Sink adapts the engine's config.Sink interface to slog, coloring the
// terminal line by event kind the way the teacher's pretty-printer does.
type Sink struct {
	Ctx context.Context
}

var _ config.Sink = Sink{}

// eventLevel maps an event kind to its slog level per the taxonomy:
// ProtocolError/StorageError/ResourceError log at Info, CatalogMiss at
// Debug, RequestAccepted/ResponseSent at the Minimal tier, and
// ConfigError (a startup-exit path the taxonomy leaves unassigned) at Error.
func eventLevel(kind config.EventKind) slog.Level {
	switch kind {
	case config.KindProtocolError, config.KindStorageError, config.KindResourceError:
		return slog.LevelInfo
	case config.KindConfigError:
		return slog.LevelError
	case config.KindCatalogMiss:
		return slog.LevelDebug
	case config.KindRequestAccepted, config.KindResponseSent:
		return LevelMinimal
	default:
		return slog.LevelInfo
	}
}

func (s Sink) Emit(ev config.Event) {
	log := get()
	if id, ok := requestIDFrom(s.Ctx); ok {
		log = log.With(slog.Int64("request_id", id))
	}

	level := eventLevel(ev.Level)

	attrs := []slog.Attr{slog.String("kind", ev.Kind)}
	if ev.Peer != "" {
		attrs = append(attrs, slog.String("peer", ev.Peer))
	}
	if !ev.CMID.IsZero() {
		attrs = append(attrs, slog.String("cmid", ev.CMID.String()))
	}
	if ev.Version != "" {
		attrs = append(attrs, slog.String("version", ev.Version))
	}
	if !ev.ApplicationGroup.IsZero() {
		attrs = append(attrs, slog.String("application_group", ev.ApplicationGroup.String()))
	}
	if !ev.SKU.IsZero() {
		attrs = append(attrs, slog.String("sku", ev.SKU.String()))
	}
	if ev.RequestTime != 0 {
		attrs = append(attrs, slog.Uint64("request_time", ev.RequestTime))
	}
	if ev.ClientCount != 0 {
		attrs = append(attrs, slog.Uint64("required_client_count", uint64(ev.ClientCount)))
	}
	if ev.ActivatedCount != 0 {
		attrs = append(attrs, slog.Uint64("activated_count", uint64(ev.ActivatedCount)))
	}
	if ev.EPID != "" {
		attrs = append(attrs, slog.String("epid", ev.EPID))
	}
	if ev.Details != "" {
		attrs = append(attrs, slog.String("details", ev.Details))
	}

	log.LogAttrs(s.Ctx, level, colorize(level, ev.Kind), attrs...)
}

func colorize(level slog.Level, kind string) string {
	switch {
	case level >= slog.LevelError:
		return color.RedString(kind)
	case level == slog.LevelDebug:
		return color.HiBlackString(kind)
	case level == LevelMinimal:
		return color.GreenString(kind)
	default:
		return color.CyanString(kind)
	}
}

// Printf is a small helper for one-off startup/shutdown lines outside the
// event taxonomy (listening address, HWID, exit reason).
func Printf(format string, args ...any) {
	fmt.Fprintln(os.Stdout, color.YellowString(fmt.Sprintf(format, args...)))
}
