package cooldown

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/shaiso/Promotor/internal/domain"
)

func TestTracker_NilClientNoOp(t *testing.T) {
	// Деплой без Redis легален: трекер молча отключается
	tr := New(nil, slog.New(slog.DiscardHandler))

	tr.Note(context.Background(), domain.PlatformTelegram, time.Minute)

	if until, active := tr.Until(context.Background(), domain.PlatformTelegram); active {
		t.Errorf("nil client should report no cooldown, got %v", until)
	}
}

func TestNewClient_NoURL(t *testing.T) {
	t.Setenv("REDIS_URL", "")

	if c := NewClient(context.Background(), slog.New(slog.DiscardHandler)); c != nil {
		t.Error("missing REDIS_URL should disable the tracker")
	}
}
