// Package coldstart runs the one-shot protocol that seeds the State Store
// before any ingestion worker is allowed to mutate it.
package coldstart

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"trading-systemv1/internal/model"
	"trading-systemv1/internal/state"
)

const (
	// DefaultConcurrency is the candle-fetch fan-out width used when
	// Loader.Concurrency is left at its zero value.
	DefaultConcurrency = 10
	candlesPerPair     = 2
)

// Loader populates a Store from a RestClient. Run must complete before any
// ingestion worker starts; a terminal failure aborts the process rather
// than let the service run with unseeded state.
type Loader struct {
	rest model.RestClient
	log  *slog.Logger

	// Concurrency overrides DefaultConcurrency; set from
	// config.Config.HTTPConcurrency by the caller.
	Concurrency int
}

func New(rest model.RestClient, log *slog.Logger) *Loader {
	return &Loader{rest: rest, log: log, Concurrency: DefaultConcurrency}
}

// Run executes the full cold-start protocol against store. Returns a
// terminal error if any step could not complete after its retries — the
// caller must treat that as fatal.
func (l *Loader) Run(store *state.Store) error {
	instruments, err := l.rest.FetchInstruments()
	if err != nil {
		return fmt.Errorf("coldstart: fetch instruments: %w", err)
	}
	l.log.Info("coldstart: instruments fetched", slog.Int("count", len(instruments)))

	for _, inst := range instruments {
		store.AddEntry(inst.Symbol, inst.BaseCoin, inst.QuoteCoin)
	}

	tickers, err := l.rest.FetchTickers()
	if err != nil {
		return fmt.Errorf("coldstart: fetch tickers: %w", err)
	}
	for _, inst := range instruments {
		t, ok := tickers[inst.Symbol]
		if !ok {
			continue
		}
		store.SeedLastPrice(inst.Symbol, t.LastPrice, t.Ts)
	}
	l.log.Info("coldstart: tickers seeded", slog.Int("count", len(tickers)))

	if err := l.seedCandles(store, instruments); err != nil {
		return fmt.Errorf("coldstart: seed candles: %w", err)
	}

	store.RecomputeOverview()
	l.log.Info("coldstart: complete", slog.Int("symbols", len(instruments)))
	return nil
}

type candlePairTask struct {
	symbol string
	tf     model.Timeframe
}

// seedCandles fetches the two most recent candles for every (symbol, tf)
// pair with bounded concurrency. A single pair's terminal failure aborts
// the whole cold-start, per spec: the service must not run without a
// seeded state.
func (l *Loader) seedCandles(store *state.Store, instruments []model.Instrument) error {
	tasks := make([]candlePairTask, 0, len(instruments)*len(model.Timeframes))
	for _, inst := range instruments {
		for _, tf := range model.Timeframes {
			tasks = append(tasks, candlePairTask{symbol: inst.Symbol, tf: tf})
		}
	}

	concurrency := l.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	errCh := make(chan error, 1)
	var once sync.Once

	for _, task := range tasks {
		task := task
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			candles, err := l.rest.FetchKlines(task.symbol, task.tf, candlesPerPair)
			if err != nil {
				once.Do(func() { errCh <- fmt.Errorf("%s/%s: %w", task.symbol, task.tf, err) })
				return
			}
			applyColdStartCandles(store, task.symbol, task.tf, candles)
		}()
	}
	wg.Wait()
	close(errCh)

	if err := <-errCh; err != nil {
		return err
	}
	return nil
}

// applyColdStartCandles implements step 3 of the cold-start protocol: sort
// ascending, seed prevClose from the second-to-last candle if two were
// returned, then apply the latest as the current (open) metric.
func applyColdStartCandles(store *state.Store, symbol string, tf model.Timeframe, candles []model.Candle) {
	if len(candles) == 0 {
		return
	}
	sort.Slice(candles, func(i, j int) bool { return candles[i].Start < candles[j].Start })

	if len(candles) >= 2 {
		prev := candles[len(candles)-2]
		store.SeedPrevClose(symbol, tf, prev.Close)
	}

	latest := candles[len(candles)-1]
	store.ApplyKline(symbol, tf, latest, false)
}
