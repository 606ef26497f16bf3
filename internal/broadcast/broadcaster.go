package broadcast

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"trading-systemv1/internal/gateway"
	"trading-systemv1/internal/state"
)

// DefaultDebounceWindow is the minimum interval between successive
// broadcasts, used when Broadcaster.DebounceWindow is left at its zero
// value.
const DefaultDebounceWindow = 200 * time.Millisecond

// Broadcaster is the single task that turns dirty signals into snapshot
// fan-outs. Broadcasts are totally ordered because there is exactly one
// broadcaster task per process.
type Broadcaster struct {
	sig   *Signal
	store *state.Store
	hub   *gateway.Hub
	log   *slog.Logger

	// DebounceWindow overrides DefaultDebounceWindow; set from
	// config.Config.DebounceMs by the caller.
	DebounceWindow time.Duration

	// OnBroadcast is an optional metrics hook, called with the client
	// count after every fan-out.
	OnBroadcast func(clientCount int, elapsed time.Duration)
}

func New(sig *Signal, store *state.Store, hub *gateway.Hub, log *slog.Logger) *Broadcaster {
	return &Broadcaster{sig: sig, store: store, hub: hub, log: log, DebounceWindow: DefaultDebounceWindow}
}

// Run blocks until ctx is cancelled, servicing one debounced broadcast per
// rising edge of the dirty signal.
func (b *Broadcaster) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.sig.C():
		}

		select {
		case <-time.After(b.DebounceWindow):
		case <-ctx.Done():
			return
		}

		// Clear before doing work: events that arrive during the fan-out
		// below re-raise the signal and schedule a follow-up round:
		// events that arrived during the sleep are already captured by
		// the snapshot this round is about to build.
		b.drain()

		b.broadcastOnce()
	}
}

func (b *Broadcaster) drain() {
	select {
	case <-b.sig.C():
	default:
	}
}

func (b *Broadcaster) broadcastOnce() {
	start := time.Now()

	b.store.RecomputeOverview()
	snap := b.store.BuildSnapshot()

	payload, err := json.Marshal(snap)
	if err != nil {
		b.log.Error("broadcaster: marshal snapshot failed", slog.Any("err", err))
		return
	}

	clients := b.hub.Snapshot()
	var wg sync.WaitGroup
	for _, c := range clients {
		c := c
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Send(payload)
		}()
	}
	wg.Wait()

	if b.OnBroadcast != nil {
		b.OnBroadcast(len(clients), time.Since(start))
	}
}
