package session

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/relaykms/kmsgate/config"
)

func TestGracefulShutdownGivesSessionsAGracePeriod(t *testing.T) {
	orig := GracePeriod
	GracePeriod = 100 * time.Millisecond
	defer func() { GracePeriod = orig }()

	cfg := config.Default()
	cfg.IP = "127.0.0.1"
	cfg.Port = 0

	srv := &Server{Config: cfg, Engine: testEngine(t), Sink: config.NopSink{}}
	ctx, cancel := context.WithCancel(context.Background())
	go srv.ListenAndServe(ctx)
	select {
	case <-srv.Ready():
	case <-time.After(2 * time.Second):
		t.Fatalf("server did not become ready")
	}

	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	cancel() // simulate a shutdown signal arriving mid-session

	conn.SetReadDeadline(time.Now().Add(GracePeriod / 2))
	buf := make([]byte, 1)
	if _, err := conn.Read(buf); err == nil {
		t.Fatalf("expected the connection to stay open during the grace period")
	} else if ne, ok := err.(net.Error); !ok || !ne.Timeout() {
		t.Fatalf("expected a read timeout during the grace period, got %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := conn.Read(buf); err != io.EOF {
		t.Fatalf("expected the connection force-closed after the grace period, got %v", err)
	}
}
