// Package router runs the background sweep that demotes devices which have
// stopped heartbeating. Device selection itself (preferred → tenant's own →
// shared pool) lives in store.PickDevice, which the dispatcher calls for each
// message it has leased.
package router

import (
	"context"
	"log/slog"
	"time"

	"github.com/edierwan/getouch-sub000/internal/store"
	"github.com/edierwan/getouch-sub000/internal/telemetry"
)

// StaleSweeper periodically offlines devices that have not heartbeated
// within the configured threshold.
type StaleSweeper struct {
	store     *store.Store
	logger    *slog.Logger
	threshold time.Duration
	interval  time.Duration
}

func NewStaleSweeper(st *store.Store, logger *slog.Logger, threshold, interval time.Duration) *StaleSweeper {
	return &StaleSweeper{store: st, logger: logger, threshold: threshold, interval: interval}
}

// Run sweeps once immediately, then every interval, until ctx is cancelled.
func (s *StaleSweeper) Run(ctx context.Context) {
	s.logger.Info("stale device sweep started", "interval", s.interval, "threshold", s.threshold)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("stale device sweep stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *StaleSweeper) sweep(ctx context.Context) {
	n, err := s.store.MarkStaleDevicesOffline(ctx, s.threshold.Milliseconds())
	if err != nil {
		s.logger.Error("stale device sweep failed", "error", err)
		return
	}
	if n > 0 {
		telemetry.StaleDevicesOfflinedTotal.Add(float64(n))
		s.logger.Info("offlined stale devices", "count", n)
	}
}
