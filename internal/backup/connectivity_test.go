package backup

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/calperrin/orgvault/internal/model"
)

func TestMonitorReconcilesOnReconnect(t *testing.T) {
	env := setupManager(t, nil)

	doc, _ := env.docs.Upsert(&model.Document{Name: "a", Content: []byte("a")})
	env.docs.UpdateSync(doc.ID, model.SyncStatusFailed, "timeout", nil)

	events := make(chan bool)
	mon := NewMonitor(events, env.m, slog.Default())
	mon.Start(context.Background())
	defer mon.Stop()

	events <- false
	events <- true

	waitFor(t, func() bool { return env.m.queue.Len() == 1 })
	if env.m.Online() != true {
		t.Error("expected manager online after reconnect")
	}
}

func TestMonitorIgnoresRepeatedOnline(t *testing.T) {
	env := setupManager(t, nil)

	doc, _ := env.docs.Upsert(&model.Document{Name: "a", Content: []byte("a")})
	env.docs.UpdateSync(doc.ID, model.SyncStatusPending, "", nil)

	events := make(chan bool)
	mon := NewMonitor(events, env.m, slog.Default())
	mon.Start(context.Background())
	defer mon.Stop()

	// Already online, so a repeated online event is not a transition and
	// must not re-enqueue anything.
	events <- true
	events <- true

	time.Sleep(50 * time.Millisecond)
	if depth := env.m.queue.Len(); depth != 0 {
		t.Errorf("queue depth = %d, want 0 for repeated online events", depth)
	}
}

func TestMonitorOfflineStopsAttempts(t *testing.T) {
	env := setupManager(t, nil)

	events := make(chan bool)
	mon := NewMonitor(events, env.m, slog.Default())
	mon.Start(context.Background())
	defer mon.Stop()

	events <- false
	waitFor(t, func() bool { return !env.m.Online() })

	doc, _ := env.m.BackupDocument(&model.Document{Name: "a", Content: []byte("a")}, model.TaskPriorityNormal)
	env.drain()

	if env.primary.uploadCount() != 0 {
		t.Errorf("uploads = %d, want 0 while offline", env.primary.uploadCount())
	}
	got, _ := env.docs.Get(doc.ID)
	if got.SyncStatus != model.SyncStatusPending {
		t.Errorf("status = %q, want %q", got.SyncStatus, model.SyncStatusPending)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatal("condition not reached in time")
		case <-time.After(5 * time.Millisecond):
		}
	}
}
