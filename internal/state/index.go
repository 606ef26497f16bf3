package state

import (
	"math"

	"trading-systemv1/internal/model"
)

const (
	indexSlotMs     int64   = 3_600_000
	indexHistoryCap         = 1000
	indexExportCap          = 720
	indexBaseValue  float64 = 0
)

// computeD1StatsLocked scans the D1 changePercent distribution across the
// whole universe. Must be called with mu held.
func (s *Store) computeD1StatsLocked() (positiveSum, negativeSum float64, count int) {
	for _, e := range s.entries {
		m := e.Metrics[model.D1]
		if m.ChangePercent == nil {
			continue
		}
		change := *m.ChangePercent
		if change > 0 {
			positiveSum += change
		} else if change < 0 {
			negativeSum += -change
		}
		count++
	}
	return positiveSum, negativeSum, count
}

func netPercentOf(positiveSum, negativeSum float64, count int) float64 {
	if count == 0 {
		return 0
	}
	return (negativeSum - positiveSum) / float64(count)
}

func floorToSlot(nowMs int64) int64 {
	return (nowMs / indexSlotMs) * indexSlotMs
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// IndexTick runs one iteration of the breadth-index aggregator: freezes the
// active candle if its slot has passed, optionally opens a new one, and
// folds in the latest D1 cross-sectional statistic. Returns the candle that
// just froze (nil if none), so the caller can persist it outside the store
// lock — persistence is a named suspension point and the store must never
// be held across one.
func (s *Store) IndexTick(now int64, force bool) (frozen *model.IndexCandle, froze bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot := floorToSlot(now)

	if s.indexActive != nil && s.indexActive.StartTime < slot {
		closed := *s.indexActive
		s.indexHistory = append(s.indexHistory, closed)
		if len(s.indexHistory) > indexHistoryCap {
			s.indexHistory = s.indexHistory[len(s.indexHistory)-indexHistoryCap:]
		}
		s.indexBaseValue = closed.Close
		s.indexActive = nil
		frozen = &closed
		froze = true
	}

	positiveSum, negativeSum, count := s.computeD1StatsLocked()
	netPercent := netPercentOf(positiveSum, negativeSum, count)

	if s.indexActive == nil {
		if count == 0 && !force {
			if froze {
				s.markDirtyLocked()
			}
			return frozen, froze
		}
		base := s.indexBaseValue
		s.indexActive = &model.IndexCandle{
			StartTime: slot,
			Open:      base,
			High:      base,
			Low:       base,
			Close:     base,
		}
	}

	a := s.indexActive
	closeV := round4(-netPercent)
	a.Close = closeV
	a.High = math.Max(a.High, math.Max(closeV, a.Open))
	a.Low = math.Min(a.Low, math.Min(closeV, a.Open))
	a.NetPercent = netPercent
	a.PositiveSum = positiveSum
	a.NegativeSum = negativeSum
	a.Count = count

	s.markDirtyLocked()
	return frozen, froze
}
