// Package index is the Index Aggregator task: it drives the State Store's
// hourly breadth-index bucket on a wall-clock tick and persists each
// frozen candle through the Persistence Adapter, outside the store lock.
package index

import (
	"context"
	"log/slog"
	"time"

	"trading-systemv1/internal/model"
	"trading-systemv1/internal/state"
)

// DefaultTickInterval is how often the aggregator polls the store to roll
// the active candle and fold in the latest cross-sectional statistic, used
// when Aggregator.TickInterval is left at its zero value. Independent of
// the hourly slot duration: ticking more often than the slot just keeps
// the in-progress candle's high/low/close current.
const DefaultTickInterval = 60 * time.Second

// PersistedHistoryCap bounds how many candles the sorted set retains;
// older candles are trimmed after every successful persist. Matches the
// in-memory indexHistoryCap so nothing held in memory is ever lost on
// restart before it ages out of the persisted store.
const PersistedHistoryCap = 1000

// Aggregator polls the store for index rollovers and persists frozen
// candles. A nil Store is a programmer error (New panics); a nil
// IndexStore is valid — Run then only drives in-memory state.
type Aggregator struct {
	store *state.Store
	db    model.IndexStore
	log   *slog.Logger

	// TickInterval overrides DefaultTickInterval; set from
	// config.Config.IndexPollSeconds by the caller.
	TickInterval time.Duration

	// OnTick is an optional metrics hook, called after every poll with
	// whether a candle froze this round.
	OnTick func(froze bool)
	// OnPersistError is called when a persist attempt fails outright
	// (distinct from a circuit-breaker degrade, which the adapter itself
	// absorbs silently).
	OnPersistError func(err error)
}

func New(store *state.Store, db model.IndexStore, log *slog.Logger) *Aggregator {
	if store == nil {
		panic("index.New: store must not be nil")
	}
	return &Aggregator{store: store, db: db, log: log, TickInterval: DefaultTickInterval}
}

// Seed loads persisted history into the store before the first tick. A nil
// or failing db degrades to an empty history, never a startup failure —
// the spec treats persistence as best-effort throughout.
func (a *Aggregator) Seed() {
	if a.db == nil {
		return
	}
	history, err := a.db.Load()
	if err != nil {
		a.log.Warn("index aggregator: seed load failed, starting with empty history", slog.Any("err", err))
		return
	}
	a.store.SeedIndexHistory(history)
	a.log.Info("index aggregator: seeded history", slog.Int("candles", len(history)))
}

// Run blocks until ctx is cancelled, ticking the store on TickInterval and
// persisting any candle that freezes. Per spec.md §4.6, the first tick runs
// immediately with force=true so the active candle exists as soon as the
// aggregator starts, rather than waiting up to TickInterval for one.
func (a *Aggregator) Run(ctx context.Context) {
	a.tick(true)

	ticker := time.NewTicker(a.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.tick(false)
		}
	}
}

func (a *Aggregator) tick(force bool) {
	now := time.Now().UnixMilli()
	frozen, froze := a.store.IndexTick(now, force)

	if froze && frozen != nil {
		a.persist(*frozen)
	}
	if a.OnTick != nil {
		a.OnTick(froze)
	}
}

func (a *Aggregator) persist(c model.IndexCandle) {
	if a.db == nil {
		return
	}
	if err := a.db.Put(c); err != nil {
		a.log.Error("index aggregator: persist failed", slog.Int64("startTime", c.StartTime), slog.Any("err", err))
		if a.OnPersistError != nil {
			a.OnPersistError(err)
		}
		return
	}
	if err := a.db.Trim(PersistedHistoryCap); err != nil {
		a.log.Warn("index aggregator: trim failed", slog.Any("err", err))
	}
}
