package logging

import (
	"context"
	"log/slog"
	"testing"

	"github.com/relaykms/kmsgate/config"
)

func TestSinkEmitDoesNotPanic(t *testing.T) {
	Init(config.LevelDebug)
	sink := Sink{Ctx: WithRequestID(context.Background(), 42)}

	events := []config.Event{
		{Level: config.KindRequestAccepted, Kind: "RequestAccepted", Version: "6.0"},
		{Level: config.KindCatalogMiss, Kind: "CatalogMiss"},
		{Level: config.KindProtocolError, Kind: "BadV6Cmac", Details: "cmac mismatch"},
	}
	for _, ev := range events {
		sink.Emit(ev)
	}
}

func TestEventLevelMapping(t *testing.T) {
	cases := map[config.EventKind]slog.Level{
		config.KindProtocolError:   slog.LevelInfo,
		config.KindStorageError:    slog.LevelInfo,
		config.KindResourceError:   slog.LevelInfo,
		config.KindCatalogMiss:     slog.LevelDebug,
		config.KindRequestAccepted: LevelMinimal,
		config.KindResponseSent:    LevelMinimal,
		config.KindConfigError:     slog.LevelError,
	}
	for kind, want := range cases {
		if got := eventLevel(kind); got != want {
			t.Fatalf("eventLevel(%v) = %v, want %v", kind, got, want)
		}
	}
}

func TestSlogLevelMapping(t *testing.T) {
	cases := map[config.LogLevel]bool{
		config.LevelMinimal: true,
		config.LevelInfo:    true,
		config.LevelDebug:   true,
	}
	for level := range cases {
		if got := slogLevel(level); got == 0 && level != config.LevelInfo {
			t.Fatalf("slogLevel(%v) unexpectedly zero", level)
		}
	}
}
