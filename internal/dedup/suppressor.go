package dedup

import (
	"context"
	"log/slog"
	"time"

	"github.com/launchkit/edge-middleware/internal/cache"
)

// Suppressor is a time-boxed idempotency guard for transaction ids. It
// stores first-seen timestamps in a TTL cache, so expiry and oldest-first
// capacity eviction follow the cache's policy.
type Suppressor struct {
	store *cache.Cache[time.Time]
	ttl   time.Duration
	now   func() time.Time
}

func NewSuppressor(ttl time.Duration, maxSize int) *Suppressor {
	return NewSuppressorWithClock(ttl, maxSize, time.Now)
}

func NewSuppressorWithClock(ttl time.Duration, maxSize int, now func() time.Time) *Suppressor {
	return &Suppressor{
		store: cache.NewWithClock[time.Time](ttl, maxSize, now),
		ttl:   ttl,
		now:   now,
	}
}

// ShouldSuppress reports whether transactionID was already recorded inside
// the suppression window. When it was, the returned timestamp is the
// original first sighting, for the blocked-duplicate signal.
func (s *Suppressor) ShouldSuppress(transactionID string) (bool, time.Time) {
	firstSeen, ok := s.store.Get(transactionID)
	if !ok {
		return false, time.Time{}
	}

	return true, firstSeen
}

// Record stores the first sighting of transactionID. Recording again
// restarts the window, so callers must check ShouldSuppress first.
func (s *Suppressor) Record(transactionID string) {
	s.store.Set(transactionID, s.now())
}

// Size returns the number of tracked transaction ids.
func (s *Suppressor) Size() int {
	return s.store.Len()
}

// Start runs the background sweep until ctx is cancelled, purging expired
// ids every quarter of the suppression TTL.
func (s *Suppressor) Start(ctx context.Context, logger *slog.Logger) {
	go s.run(ctx, logger)
}

func (s *Suppressor) run(ctx context.Context, logger *slog.Logger) {
	ticker := time.NewTicker(s.ttl / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Duplicate sweep stopped")
			return

		case <-ticker.C:
			if purged := s.store.PurgeExpired(); purged > 0 {
				logger.Debug("Purged expired transaction ids",
					slog.Int("purged", purged),
					slog.Int("remaining", s.store.Len()))
			}
		}
	}
}
