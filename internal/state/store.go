// Package state holds the single mutable hub of the service: the canonical
// symbol → Entry map, the prev-close table, the per-timeframe overview, and
// the breadth-index bucket. Every mutation is guarded by one mutex; nothing
// under that lock ever suspends.
package state

import (
	"sort"
	"sync"
	"time"

	"trading-systemv1/internal/model"
)

// DirtyMarker is the narrow interface the store uses to signal that a fresh
// broadcast is due. Implemented by internal/broadcast.Signal; kept as an
// interface here so this package never imports the broadcaster.
type DirtyMarker interface {
	Mark()
}

type prevCloseKey struct {
	symbol string
	tf     model.Timeframe
}

// Store is the canonical in-memory view of the universe. Safe for
// concurrent use; every exported method takes mu for the duration of its
// own work and never blocks while holding it.
type Store struct {
	mu sync.Mutex

	entries map[string]*model.Entry
	order   []string // symbols, insertion order — fixed after cold-start

	prevClose map[prevCloseKey]float64
	overview  map[model.Timeframe]model.Overview

	indexActive    *model.IndexCandle
	indexHistory   []model.IndexCandle
	indexBaseValue float64 // frozen-candle close most recently rolled, or the configured base

	dirty DirtyMarker
}

// New returns an empty store. Call SetDirtyMarker before any mutating call
// if broadcast coalescing is wanted (it always is in production; tests may
// leave it nil, in which case Mark is a no-op).
func New() *Store {
	return &Store{
		entries:        make(map[string]*model.Entry),
		prevClose:      make(map[prevCloseKey]float64),
		overview:       make(map[model.Timeframe]model.Overview, len(model.Timeframes)),
		indexBaseValue: indexBaseValue,
	}
}

// SetDirtyMarker installs the coalescing signal the broadcaster watches.
func (s *Store) SetDirtyMarker(d DirtyMarker) {
	s.mu.Lock()
	s.dirty = d
	s.mu.Unlock()
}

func (s *Store) markDirtyLocked() {
	if s.dirty != nil {
		s.dirty.Mark()
	}
}

// AddEntry registers a symbol during cold-start. Calling it after cold-start
// has no defined use case — entries are created exactly once and never
// destroyed — but the method itself is idempotent: a repeat call for a
// known symbol is a no-op.
func (s *Store) AddEntry(symbol, baseCoin, quoteCoin string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[symbol]; ok {
		return
	}
	s.entries[symbol] = model.NewEntry(symbol, baseCoin, quoteCoin)
	s.order = append(s.order, symbol)
}

// SeedPrevClose writes the prev-close table directly, bypassing metric
// update. Used only by cold-start when loading the candle immediately
// preceding the current one (spec: "set prevCloseTable[...] = candles[-2].close,
// then apply candles[-1] as the current metric").
func (s *Store) SeedPrevClose(symbol string, tf model.Timeframe, close float64) {
	s.mu.Lock()
	s.prevClose[prevCloseKey{symbol, tf}] = close
	s.mu.Unlock()
}

// SeedIndexHistory restores persisted breadth-index candles at startup.
// The last entry always becomes the active (still-forming) candle rather
// than frozen history; its StartTime is left to the first IndexTick call to
// validate against wall-clock time, which freezes it if its slot has passed.
func (s *Store) SeedIndexHistory(history []model.IndexCandle) {
	if len(history) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(history)
	s.indexHistory = append(s.indexHistory, history[:n-1]...)
	if len(s.indexHistory) > indexHistoryCap {
		s.indexHistory = s.indexHistory[len(s.indexHistory)-indexHistoryCap:]
	}
	last := history[n-1]
	s.indexActive = &last
	s.indexBaseValue = last.Close
}

// SeedLastPrice sets lastPrice/lastPriceUpdatedAt during cold-start without
// requiring a full ApplyTicker round-trip through topic parsing.
func (s *Store) SeedLastPrice(symbol string, price float64, ts int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[symbol]
	if !ok {
		return
	}
	p := price
	e.LastPrice = &p
	e.LastPriceUpdatedAt = ts
}

// KnownSymbols returns the cold-started universe in insertion order. Used
// by cmd/aggregator to build the ingestion topic universe.
func (s *Store) KnownSymbols() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// ApplyTicker overwrites lastPrice (when provided) and lastPriceUpdatedAt.
// No-op if the symbol is not in the cold-started universe.
func (s *Store) ApplyTicker(symbol string, lastPrice *float64, ts int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[symbol]
	if !ok {
		return
	}
	if lastPrice != nil {
		p := *lastPrice
		e.LastPrice = &p
	}
	if ts != 0 {
		e.LastPriceUpdatedAt = ts
	} else {
		e.LastPriceUpdatedAt = nowMs()
	}
	s.markDirtyLocked()
}

// ApplyKline updates the (symbol, tf) metric from one candle. No-op if the
// symbol is unknown. changePercent is computed iff open > 0;
// closeToClosePercent iff the prev-close table holds a positive value for
// this (symbol, tf). On confirmed candles the prev-close table is written
// AFTER the metric update, so a subsequent open candle observes the
// just-closed value — never the one it is itself producing.
func (s *Store) ApplyKline(symbol string, tf model.Timeframe, c model.Candle, confirmed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[symbol]
	if !ok {
		return
	}
	m := e.Metrics[tf]

	m.OpenTime = c.Start
	open := c.Open
	m.OpenPrice = &open
	baseline := c.Open
	m.BaselinePrice = &baseline

	if open > 0 {
		cp := (c.Close - open) / open * 100
		m.ChangePercent = &cp
	} else {
		m.ChangePercent = nil
	}

	key := prevCloseKey{symbol, tf}
	if prev, ok := s.prevClose[key]; ok {
		pc := prev
		m.PrevClose = &pc
		if prev > 0 {
			c2c := (c.Close - prev) / prev * 100
			m.CloseToClosePercent = &c2c
		} else {
			m.CloseToClosePercent = nil
		}
	} else {
		m.PrevClose = nil
		m.CloseToClosePercent = nil
	}

	m.Volume = c.Volume
	m.Turnover = c.Turnover
	m.UpdatedAt = nowMs()

	if confirmed {
		s.prevClose[key] = c.Close
	}

	s.markDirtyLocked()
}

// RecomputeOverview rebuilds the six Overview records from the current
// entry set. Called once before each snapshot build, not on every mutation.
func (s *Store) RecomputeOverview() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recomputeOverviewLocked()
}

func (s *Store) recomputeOverviewLocked() {
	counts := make(map[model.Timeframe][2]int, len(model.Timeframes))
	for _, tf := range model.Timeframes {
		counts[tf] = [2]int{}
	}
	for _, e := range s.entries {
		for tf, m := range e.Metrics {
			if m.ChangePercent == nil {
				continue
			}
			c := counts[tf]
			switch {
			case *m.ChangePercent > 0:
				c[0]++
			case *m.ChangePercent < 0:
				c[1]++
			}
			counts[tf] = c
		}
	}
	for _, tf := range model.Timeframes {
		c := counts[tf]
		s.overview[tf] = model.Overview{Timeframe: tf, Gainers: c[0], Losers: c[1]}
	}
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}

// sortedSymbols returns s.order sorted lexicographically, for deterministic
// snapshot output. Cheap: cold-start populates the universe once and it
// never shrinks, so this runs over a small, stable slice.
func (s *Store) sortedSymbols() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	sort.Strings(out)
	return out
}
