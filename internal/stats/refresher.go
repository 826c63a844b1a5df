package stats

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/akamquiz/akamquiz/internal/model"
	"github.com/akamquiz/akamquiz/internal/store"
)

// DefaultInterval is how often the refresher recomputes between change
// notifications.
const DefaultInterval = 30 * time.Second

// Refresher keeps a current snapshot: it recomputes on start, on a periodic
// tick, and whenever the store reports a write to one of the stats
// collections. Recomputation happens on its own goroutine and never blocks
// session traffic.
type Refresher struct {
	agg      *Aggregator
	interval time.Duration

	mu   sync.RWMutex
	snap model.StatsSnapshot

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func NewRefresher(agg *Aggregator, interval time.Duration) *Refresher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Refresher{agg: agg, interval: interval}
}

// Start computes the initial snapshot and launches the refresh loop.
// Call Stop to release it; Start must not be called twice.
func (r *Refresher) Start(st *store.Store) {
	r.recompute()

	sub := st.Subscribe(store.CollectionUsers, store.CollectionResults, store.CollectionRatings)
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})

	go func() {
		defer close(r.done)
		defer sub.Close()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.recompute()
			case _, ok := <-sub.C:
				if !ok {
					return
				}
				r.recompute()
			}
		}
	}()
}

// Stop cancels the refresh loop and waits for it to exit. Idempotent.
func (r *Refresher) Stop() {
	r.once.Do(func() {
		if r.cancel != nil {
			r.cancel()
			<-r.done
		}
	})
}

// Snapshot returns the most recently computed metrics.
func (r *Refresher) Snapshot() model.StatsSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snap
}

func (r *Refresher) recompute() {
	snap, err := r.agg.Compute()
	if err != nil {
		slog.Error("stats recompute failed", "error", err)
		return
	}
	r.mu.Lock()
	r.snap = snap
	r.mu.Unlock()
}
