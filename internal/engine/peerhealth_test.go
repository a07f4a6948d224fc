package engine

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupTestPH(t *testing.T) *PeerHealth {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewPeerHealth(client, logger)
}

func TestPeerHealth_DefaultHealthy(t *testing.T) {
	ph := setupTestPH(t)

	state := ph.State(context.Background(), "http://cmp.example/ack")
	if state.State != PeerHealthy {
		t.Errorf("unknown peer should report healthy, got %q", state.State)
	}
}

func TestPeerHealth_DegradedThenDown(t *testing.T) {
	ph := setupTestPH(t)
	ctx := context.Background()
	peer := "http://cmp.example/ack"

	ph.RecordFailure(ctx, peer, "HTTP 500: boom")
	state := ph.State(ctx, peer)
	if state.State != PeerDegraded {
		t.Errorf("after one failure: got %q, want degraded", state.State)
	}
	if state.LastError != "HTTP 500: boom" {
		t.Errorf("last error: got %q", state.LastError)
	}

	for i := 0; i < 4; i++ {
		ph.RecordFailure(ctx, peer, "HTTP 500: boom")
	}
	state = ph.State(ctx, peer)
	if state.State != PeerDown {
		t.Errorf("after five failures: got %q, want down", state.State)
	}
	if state.ConsecutiveFailures != 5 {
		t.Errorf("consecutive failures: got %d, want 5", state.ConsecutiveFailures)
	}
}

func TestPeerHealth_SuccessResets(t *testing.T) {
	ph := setupTestPH(t)
	ctx := context.Background()
	peer := "http://cmp.example/ack"

	for i := 0; i < 6; i++ {
		ph.RecordFailure(ctx, peer, "timeout")
	}
	ph.RecordSuccess(ctx, peer)

	state := ph.State(ctx, peer)
	if state.State != PeerHealthy {
		t.Errorf("after success: got %q, want healthy", state.State)
	}
	if state.ConsecutiveFailures != 0 {
		t.Errorf("failure streak should reset, got %d", state.ConsecutiveFailures)
	}
	if state.LastError != "" {
		t.Errorf("last error should clear, got %q", state.LastError)
	}
	if state.LastSuccessAt == "" {
		t.Error("last success timestamp should be recorded")
	}
}
