package history

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/lingo-labs/lingo-core/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestOpenEphemeral(t *testing.T) {
	ctx := context.Background()
	cfg := config.HistoryConfig{RetentionMode: "ephemeral"}
	st, err := Open(ctx, cfg, newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	if err := st.AppendEvent(ctx, Event{SessionID: "s", Type: "noop"}); err != nil {
		t.Fatalf("ephemeral append should be a no-op: %v", err)
	}
	if v, err := st.GetSetting(ctx, SettingAPIKey); err != nil || v != "" {
		t.Fatalf("ephemeral settings should be empty, got %q err %v", v, err)
	}
}

func TestAppendAndQuery(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.HistoryConfig{Path: filepath.Join(tmp, "history.db"), RetentionMode: "session"}
	st, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open history store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	sessionID := "session-123"
	if err := st.AppendSession(context.Background(), sessionID); err != nil {
		t.Fatalf("append session: %v", err)
	}
	if err := st.AppendEvent(context.Background(), Event{SessionID: sessionID, Type: "state", Payload: []byte("recording")}); err != nil {
		t.Fatalf("append event: %v", err)
	}
	if err := st.SetTranslation(context.Background(), sessionID, "你好"); err != nil {
		t.Fatalf("set translation: %v", err)
	}
	events, err := st.ListSessionEvents(context.Background(), sessionID, 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if string(events[0].Payload) != "recording" {
		t.Fatalf("unexpected payload: %s", events[0].Payload)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.HistoryConfig{Path: filepath.Join(tmp, "history.db"), RetentionMode: "persistent"}
	st, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open history store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	if v, err := st.GetSetting(context.Background(), SettingAPIKey); err != nil || v != "" {
		t.Fatalf("expected unset setting, got %q err %v", v, err)
	}
	if err := st.PutSetting(context.Background(), SettingAPIKey, "sk-one"); err != nil {
		t.Fatalf("put setting: %v", err)
	}
	if err := st.PutSetting(context.Background(), SettingAPIKey, "sk-two"); err != nil {
		t.Fatalf("overwrite setting: %v", err)
	}
	v, err := st.GetSetting(context.Background(), SettingAPIKey)
	if err != nil {
		t.Fatalf("get setting: %v", err)
	}
	if v != "sk-two" {
		t.Fatalf("expected latest value, got %q", v)
	}
}

func TestPruneByDaysAndSessions(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.HistoryConfig{Path: filepath.Join(tmp, "history.db"), RetentionMode: "persistent", RetentionDays: 1, MaxSessions: 1}
	st, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open history store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	st.clock = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	if err := st.AppendSession(context.Background(), "old-session"); err != nil {
		t.Fatalf("append session: %v", err)
	}
	if err := st.AppendEvent(context.Background(), Event{SessionID: "old-session", Type: "state"}); err != nil {
		t.Fatalf("append event: %v", err)
	}

	st.clock = func() time.Time { return time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC) }
	if err := st.AppendSession(context.Background(), "new-session"); err != nil {
		t.Fatalf("append session: %v", err)
	}
	if err := st.Prune(context.Background()); err != nil {
		t.Fatalf("prune: %v", err)
	}

	events, err := st.ListSessionEvents(context.Background(), "old-session", 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected old session pruned")
	}
}
