package workers

import (
	"context"
	"time"

	"github.com/cbodonnell/hokm/pkg/log"
)

type PruneWorker struct {
	broadcaster SyncBroadcaster
	interval    time.Duration
}

type NewPruneWorkerOptions struct {
	Broadcaster SyncBroadcaster
	Interval    time.Duration
}

// NewPruneWorker creates a new PruneWorker.
// The worker periodically drops expired deltas from every room history.
func NewPruneWorker(opts NewPruneWorkerOptions) *PruneWorker {
	return &PruneWorker{
		broadcaster: opts.Broadcaster,
		interval:    opts.Interval,
	}
}

func (w *PruneWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if pruned := w.broadcaster.PruneHistory(); pruned > 0 {
				log.Debug("Pruned %d expired deltas", pruned)
			}
		}
	}
}
