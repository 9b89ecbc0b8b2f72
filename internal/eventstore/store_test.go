package eventstore

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/voxchat-labs/vox-core/internal/config"
	"github.com/voxchat-labs/vox-core/internal/protocol"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestOpenEphemeral(t *testing.T) {
	cfg := config.EventStoreConfig{RetentionMode: "ephemeral"}
	es, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })
	if err := es.AppendTurn(context.Background(), protocol.TurnRecord{SessionID: "s"}); err != nil {
		t.Fatalf("ephemeral append must be a no-op: %v", err)
	}
}

func TestAppendAndQuery(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.EventStoreConfig{Path: filepath.Join(tmp, "turns.db"), RetentionMode: "session"}
	es, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open turn store: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })

	rec := protocol.TurnRecord{
		SessionID: "session-123",
		Prompt:    "what is a goroutine",
		Response:  "a lightweight thread managed by the runtime",
		Model:     "gpt-4o",
		Voiced:    true,
	}
	if err := es.AppendTurn(context.Background(), rec); err != nil {
		t.Fatalf("append turn: %v", err)
	}
	turns, err := es.ListSessionTurns(context.Background(), "session-123", 10)
	if err != nil {
		t.Fatalf("list turns: %v", err)
	}
	if len(turns) != 1 {
		t.Fatalf("expected 1 turn, got %d", len(turns))
	}
	if turns[0].Prompt != rec.Prompt || turns[0].Response != rec.Response {
		t.Fatalf("unexpected turn: %+v", turns[0])
	}
	if !turns[0].Voiced {
		t.Fatal("voiced flag lost on round trip")
	}
}

func TestPruneByDaysAndSessions(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.EventStoreConfig{Path: filepath.Join(tmp, "turns.db"), RetentionMode: "persistent", RetentionDays: 1, MaxSessions: 1}
	es, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open turn store: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })

	es.clock = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	if err := es.AppendTurn(context.Background(), protocol.TurnRecord{
		SessionID: "old-session", Prompt: "p", Response: "r",
		Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}); err != nil {
		t.Fatalf("append turn: %v", err)
	}

	es.clock = func() time.Time { return time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC) }
	if err := es.EnsureSession(context.Background(), "new-session"); err != nil {
		t.Fatalf("ensure session: %v", err)
	}
	if err := es.Prune(context.Background()); err != nil {
		t.Fatalf("prune: %v", err)
	}

	turns, err := es.ListSessionTurns(context.Background(), "old-session", 10)
	if err != nil {
		t.Fatalf("list turns: %v", err)
	}
	if len(turns) != 0 {
		t.Fatal("expected old session pruned")
	}
}
