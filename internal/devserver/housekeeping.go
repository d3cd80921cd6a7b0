package devserver

import (
	"context"
	"log/slog"
	"time"
)

// Expirer is a store that can drop its expired entries in bulk. The sqlite
// session store is one; memory and redis stores expire lazily or natively.
type Expirer interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// Housekeeping periodically deletes expired refresh tokens.
type Housekeeping struct {
	Store    Expirer
	Logger   *slog.Logger
	Interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeeping creates the worker. If interval is 0 or negative, it
// defaults to 1 hour.
func NewHousekeeping(store Expirer, logger *slog.Logger, interval time.Duration) *Housekeeping {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Housekeeping{
		Store:    store,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start runs a sweep now and then every Interval until Stop.
func (h *Housekeeping) Start() {
	go h.run()
	h.Logger.Info("housekeeping started", "interval", h.Interval)
}

// Stop blocks until an in-progress sweep has finished.
func (h *Housekeeping) Stop() {
	close(h.stopCh)
	<-h.doneCh
	h.Logger.Info("housekeeping stopped")
}

func (h *Housekeeping) run() {
	defer close(h.doneCh)

	ticker := time.NewTicker(h.Interval)
	defer ticker.Stop()

	h.Sweep(context.Background())

	for {
		select {
		case <-ticker.C:
			h.Sweep(context.Background())
		case <-h.stopCh:
			return
		}
	}
}

// Sweep deletes expired entries once.
func (h *Housekeeping) Sweep(ctx context.Context) {
	n, err := h.Store.DeleteExpired(ctx)
	if err != nil {
		h.Logger.Error("failed to delete expired entries", "error", err)
		return
	}
	h.Logger.Debug("housekeeping sweep completed", "deleted", n)
}
