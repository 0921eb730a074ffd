package backup

import (
	"context"
	"log/slog"
	"sync"
)

// Monitor consumes online/offline transitions from an external
// connectivity signal source and triggers the reconciliation pass on every
// transition back to online. This is the system's only automatic retry
// path: it is level-triggered, so a permanently broken destination is
// retried on each reconnect event and surfaces through its error status
// and last-backup staleness instead of a retry budget.
type Monitor struct {
	mu      sync.RWMutex
	events  <-chan bool
	manager *Manager
	logger  *slog.Logger
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewMonitor creates a connectivity monitor. events carries true for
// online and false for offline transitions.
func NewMonitor(events <-chan bool, manager *Manager, logger *slog.Logger) *Monitor {
	return &Monitor{
		events:  events,
		manager: manager,
		logger:  logger,
	}
}

// Start begins consuming transition events.
func (mo *Monitor) Start(ctx context.Context) {
	mo.mu.Lock()
	ctx, mo.cancel = context.WithCancel(ctx)
	mo.done = make(chan struct{})
	mo.mu.Unlock()

	go func() {
		defer close(mo.done)
		for {
			select {
			case <-ctx.Done():
				return
			case online, ok := <-mo.events:
				if !ok {
					return
				}
				mo.handle(online)
			}
		}
	}()
}

// Stop gracefully stops the monitor.
func (mo *Monitor) Stop() {
	mo.mu.RLock()
	cancel := mo.cancel
	done := mo.done
	mo.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (mo *Monitor) handle(online bool) {
	wasOnline := mo.manager.Online()
	mo.manager.SetOnline(online)

	if online && !wasOnline {
		n, err := mo.manager.ReconcilePending()
		if err != nil {
			mo.logger.Warn("reconnect reconciliation", "error", err)
			return
		}
		mo.logger.Info("connectivity restored", "re_enqueued", n)
	}
	if !online && wasOnline {
		mo.logger.Info("connectivity lost, replication paused")
	}
}
