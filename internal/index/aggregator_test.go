package index

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"trading-systemv1/internal/model"
	"trading-systemv1/internal/state"
)

type fakeIndexStore struct {
	mu      sync.Mutex
	loaded  []model.IndexCandle
	loadErr error
	puts    []model.IndexCandle
	putErr  error
	trims   []int
}

func (f *fakeIndexStore) Load() ([]model.IndexCandle, error) { return f.loaded, f.loadErr }
func (f *fakeIndexStore) Put(c model.IndexCandle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return f.putErr
	}
	f.puts = append(f.puts, c)
	return nil
}
func (f *fakeIndexStore) Trim(max int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trims = append(f.trims, max)
	return nil
}
func (f *fakeIndexStore) DeleteByScore(int64) error { return nil }
func (f *fakeIndexStore) Close() error              { return nil }

func (f *fakeIndexStore) puttedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.puts)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAggregator_SeedRestoresHistory(t *testing.T) {
	st := state.New()
	db := &fakeIndexStore{loaded: []model.IndexCandle{
		{StartTime: 1000, Close: 1.0},
		{StartTime: 2000, Close: 2.0},
	}}
	a := New(st, db, discardLogger())
	a.Seed()

	snap := st.BuildSnapshot()
	// buildIndexHistoryLocked exports closed history plus the still-active
	// candle: 1 frozen (StartTime=1000) + 1 active (StartTime=2000, from
	// SeedIndexHistory treating the last loaded entry as in-progress).
	if len(snap.IndexHistory) != 2 {
		t.Fatalf("expected 2 candles (1 frozen + active), got %d", len(snap.IndexHistory))
	}
	if snap.IndexSummary.Latest != 2.0 {
		t.Fatalf("expected active candle close 2.0, got %v", snap.IndexSummary.Latest)
	}
}

func TestAggregator_SeedWithNilStoreIsNoop(t *testing.T) {
	st := state.New()
	a := New(st, nil, discardLogger())
	a.Seed() // must not panic
}

func TestAggregator_TickPersistsFrozenCandle(t *testing.T) {
	st := state.New()
	st.AddEntry("X", "X", "USDT")
	db := &fakeIndexStore{}
	a := New(st, db, discardLogger())

	hour := int64(3_600_000)
	st.IndexTick(hour, true) // open a candle in slot 0

	var froze bool
	a.OnTick = func(f bool) { froze = f }
	// Force a rollover by ticking from slot 1's wall-clock time directly,
	// bypassing the real ticker since Run is driven by time.Ticker.
	frozen, did := st.IndexTick(hour*2, true)
	if !did || frozen == nil {
		t.Fatal("expected a rollover into the next hour slot")
	}
	a.persist(*frozen)
	_ = froze

	if db.puttedCount() != 1 {
		t.Fatalf("expected exactly 1 persisted candle, got %d", db.puttedCount())
	}
}

func TestAggregator_PersistFailureInvokesHook(t *testing.T) {
	st := state.New()
	db := &fakeIndexStore{putErr: errTest}
	a := New(st, db, discardLogger())

	var gotErr error
	a.OnPersistError = func(err error) { gotErr = err }
	a.persist(model.IndexCandle{StartTime: 1})

	if gotErr != errTest {
		t.Fatalf("expected hook to receive the persist error, got %v", gotErr)
	}
}

func TestAggregator_RunStopsOnContextCancel(t *testing.T) {
	st := state.New()
	a := New(st, nil, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

var errTest = &fakeErr{"persist failed"}

type fakeErr struct{ s string }

func (e *fakeErr) Error() string { return e.s }
