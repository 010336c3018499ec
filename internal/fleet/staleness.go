package fleet

import (
	"context"
	"time"

	"github.com/aegis-fleet/orchestrator/internal/fleetmodel"
)

// StalenessReaper periodically marks vehicles offline once their
// last_seen_at exceeds an operator-defined bound. It never touches a
// vehicle mid-mission (en_route/on_scene/returning): offline is a
// liveness signal, not a mission interrupt.
type StalenessReaper struct {
	store    *Store
	bound    time.Duration
	interval time.Duration
	now      func() time.Time
}

// NewStalenessReaper constructs a reaper that checks every interval and
// marks any idle vehicle whose last_seen_at is older than bound as
// offline.
func NewStalenessReaper(store *Store, bound, interval time.Duration) *StalenessReaper {
	return &StalenessReaper{store: store, bound: bound, interval: interval, now: time.Now}
}

// Run blocks, sweeping the fleet every interval until ctx is cancelled.
func (r *StalenessReaper) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.Sweep(ctx); err != nil {
				return err
			}
		}
	}
}

// Sweep runs one pass over the fleet map, marking stale idle vehicles
// offline. Exposed separately from Run so tests and operator tooling can
// trigger it deterministically.
func (r *StalenessReaper) Sweep(ctx context.Context) error {
	cutoff := r.now().Add(-r.bound)
	return r.store.WithFleet(ctx, func(fleet FleetMap) {
		for _, snap := range fleet {
			if snap.OperationalStatus != fleetmodel.StatusIdle {
				continue
			}
			if snap.LastSeenAt.IsZero() || snap.LastSeenAt.After(cutoff) {
				continue
			}
			snap.OperationalStatus = fleetmodel.StatusOffline
		}
	})
}
