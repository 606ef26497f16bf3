package state

import (
	"testing"

	"trading-systemv1/internal/model"
)

// Scenario 5: index rollover across an hour boundary.
func TestIndexTick_Rollover(t *testing.T) {
	s := New()
	s.AddEntry("A", "A", "USDT")

	// Drive the D1 changePercent so the first tick's netPercent == 5.0
	// (close == -5.0): positiveSum=0, negativeSum=5, count=1.
	s.ApplyKline("A", model.D1, model.Candle{Start: 0, Open: 100, Close: 95}, false)

	const slot0 = 0
	frozen, froze := s.IndexTick(slot0+3_600_000-1000, true)
	if froze {
		t.Fatalf("did not expect a freeze on first tick")
	}
	if frozen != nil {
		t.Fatalf("frozen candle should be nil on first tick")
	}

	snap := s.BuildSnapshot()
	if len(snap.IndexHistory) != 1 {
		t.Fatalf("expected 1 active candle in history export, got %d", len(snap.IndexHistory))
	}
	active := snap.IndexHistory[0]
	if active.Close != -5.0 {
		t.Fatalf("active close: got %v, want -5.0", active.Close)
	}

	// Flip the market: gainer outweighs (positiveSum=2, negativeSum=0,
	// count=1 -> netPercent=-2.0 -> close=-netPercent=+2.0; an upward
	// candle tick corresponds to a gaining market, per the sign convention).
	s.ApplyKline("A", model.D1, model.Candle{Start: 86400000, Open: 100, Close: 102}, false)

	frozen, froze = s.IndexTick(3_600_000+500, false)
	if !froze || frozen == nil {
		t.Fatalf("expected a freeze crossing the hour boundary")
	}
	if frozen.Close != -5.0 {
		t.Fatalf("frozen candle close: got %v, want -5.0 (last value before roll)", frozen.Close)
	}

	snap = s.BuildSnapshot()
	// one closed (frozen) + one active
	if len(snap.IndexHistory) != 2 {
		t.Fatalf("expected 2 entries (1 closed + 1 active), got %d", len(snap.IndexHistory))
	}
	newActive := snap.IndexHistory[1]
	if newActive.Open != -5.0 {
		t.Fatalf("new candle open: got %v, want -5.0 (prior close)", newActive.Open)
	}
	if newActive.Close != 2.0 {
		t.Fatalf("new candle close: got %v, want 2.0", newActive.Close)
	}
}

// P6: low <= open,close <= high and low <= close <= high, for every tick.
func TestIndexTick_OHLCOrdering(t *testing.T) {
	s := New()
	s.AddEntry("A", "A", "USDT")

	changes := []float64{95, 102, 88, 130, 101}
	now := int64(0)
	for i, close := range changes {
		s.ApplyKline("A", model.D1, model.Candle{Start: int64(i) * 1000, Open: 100, Close: close}, false)
		now += 60_000
		s.IndexTick(now, true)

		snap := s.BuildSnapshot()
		last := snap.IndexHistory[len(snap.IndexHistory)-1]
		if last.Low > last.Open || last.Low > last.Close || last.Low > last.High {
			t.Fatalf("low ordering violated: %+v", last)
		}
		if last.High < last.Open || last.High < last.Close {
			t.Fatalf("high ordering violated: %+v", last)
		}
	}
}

// P5: history startTimes are strictly increasing multiples of the slot
// size, and at most one active candle is exported.
func TestIndexTick_HistoryMonotonic(t *testing.T) {
	s := New()
	s.AddEntry("A", "A", "USDT")
	s.ApplyKline("A", model.D1, model.Candle{Start: 0, Open: 100, Close: 90}, false)

	for hour := int64(0); hour < 5; hour++ {
		now := hour*3_600_000 + 1800_000
		s.IndexTick(now, true)
		snap := s.BuildSnapshot()
		// Each snapshot exports the closed history from its first candle,
		// so the ordering check restarts for every snapshot.
		var lastStart int64 = -1
		closedCount := len(snap.IndexHistory)
		if s.indexActive != nil {
			closedCount--
		}
		for i := 0; i < closedCount; i++ {
			c := snap.IndexHistory[i]
			if c.StartTime%indexSlotMs != 0 {
				t.Fatalf("startTime %d is not a multiple of slot size", c.StartTime)
			}
			if c.StartTime <= lastStart {
				t.Fatalf("startTime %d did not strictly increase past %d", c.StartTime, lastStart)
			}
			lastStart = c.StartTime
		}
	}

	active := s.indexActive
	if active != nil && active.StartTime != floorToSlot(4*3_600_000+1800_000) {
		t.Fatalf("active candle startTime mismatch: got %d", active.StartTime)
	}
}

func TestIndexTick_NoCandleWhenCountZeroAndNotForced(t *testing.T) {
	s := New() // no entries -> D1 count is always 0
	_, froze := s.IndexTick(1000, false)
	if froze {
		t.Fatalf("did not expect a freeze with no entries and force=false")
	}
	snap := s.BuildSnapshot()
	if len(snap.IndexHistory) != 0 {
		t.Fatalf("expected no index history, got %d entries", len(snap.IndexHistory))
	}
}
