package state

import "trading-systemv1/internal/model"

// BuildSnapshot takes the lock for the entire build and returns a
// self-contained, serialisable copy. Callers never observe a torn state:
// entries, overview, and index data all reflect the same instant.
func (s *Store) BuildSnapshot() *model.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	symbols := s.sortedSymbols()
	entries := make([]*model.Entry, 0, len(symbols))
	for _, sym := range symbols {
		entries = append(entries, s.entries[sym].Clone())
	}

	overview := make([]model.Overview, 0, len(model.Timeframes))
	for _, tf := range model.Timeframes {
		overview = append(overview, s.overview[tf])
	}

	snap := &model.Snapshot{
		Entries:      entries,
		Overview:     overview,
		IndexSummary: s.buildIndexSummaryLocked(),
		IndexHistory: s.buildIndexHistoryLocked(),
		UpdatedAt:    nowMs(),
	}
	return snap
}

func (s *Store) buildIndexSummaryLocked() *model.IndexSummary {
	sum := &model.IndexSummary{
		BaseValue:    indexBaseValue,
		SlotDuration: indexSlotMs,
	}
	if s.indexActive != nil {
		a := s.indexActive
		sum.Latest = a.Close
		sum.LastSlot = a.StartTime
		sum.NetPercent = a.NetPercent
		sum.PositiveSum = a.PositiveSum
		sum.NegativeSum = a.NegativeSum
		sum.Count = a.Count
		return sum
	}
	sum.Latest = round4(s.indexBaseValue)
	if n := len(s.indexHistory); n > 0 {
		sum.LastSlot = s.indexHistory[n-1].StartTime
	}
	return sum
}

// buildIndexHistoryLocked returns at most the last 720 closed candles plus
// the active one, in ascending order.
func (s *Store) buildIndexHistoryLocked() []model.IndexCandle {
	closed := s.indexHistory
	if len(closed) > indexExportCap {
		closed = closed[len(closed)-indexExportCap:]
	}
	out := make([]model.IndexCandle, 0, len(closed)+1)
	out = append(out, closed...)
	if s.indexActive != nil {
		out = append(out, *s.indexActive)
	}
	return out
}
