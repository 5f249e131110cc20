package presence

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Heartbeater periodically refreshes the signed-in user's last-seen mark
// while the daemon runs.
type Heartbeater struct {
	store    Store
	userID   func() string
	interval time.Duration
	logger   *zap.Logger
	cancel   context.CancelFunc
}

// NewHeartbeater creates a heartbeat worker. userID is resolved on every
// tick so sign-in after startup is picked up.
func NewHeartbeater(store Store, userID func() string, logger *zap.Logger) *Heartbeater {
	return &Heartbeater{
		store:    store,
		userID:   userID,
		interval: 30 * time.Second,
		logger:   logger,
	}
}

// Start begins the heartbeat loop.
func (h *Heartbeater) Start(ctx context.Context) {
	ctx, h.cancel = context.WithCancel(ctx)
	go h.loop(ctx)
}

// Stop stops the heartbeat loop.
func (h *Heartbeater) Stop() {
	if h.cancel != nil {
		h.cancel()
	}
}

func (h *Heartbeater) loop(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			id := h.userID()
			if id == "" {
				continue
			}
			if err := h.store.Heartbeat(ctx, id); err != nil {
				h.logger.Warn("presence heartbeat failed", zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}
