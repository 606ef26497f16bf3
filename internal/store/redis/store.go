// Package redis is the Persistence Adapter: a sorted-set mirror of the
// breadth index's hourly candle history, guarded by a circuit breaker so a
// Redis outage degrades the process to in-memory-only rather than crashing
// it (spec.md §4.7, §7).
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"trading-systemv1/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	indexCandlesKey = "market:index:candles:h1"

	defaultMaxFailures  = 5
	defaultResetTimeout = 10 * time.Second
	defaultMaxBuffered  = 10000
	defaultCallTimeout  = 3 * time.Second
)

// Config configures the IndexStore.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// IndexStore is the model.IndexStore implementation backed by a Redis
// sorted set, one member per hourly candle, scored by StartTime millis.
// Every call to Redis goes through a CircuitBreaker; while it is open, Put
// calls are buffered in memory and replayed on the next close.
type IndexStore struct {
	client *goredis.Client
	cb     *CircuitBreaker

	mu       sync.Mutex
	buffered []model.IndexCandle // pending Puts while the circuit is open

	// OnStateChange is an optional metrics hook mirroring the circuit
	// breaker's own callback.
	OnStateChange func(from, to State)
	// OnBuffer is called each time a write is buffered instead of sent.
	OnBuffer func(pending int)
}

// New dials Redis, pings it, and returns a ready IndexStore. A failed ping
// is returned as an error with a nil store — the caller decides whether to
// run without Redis or abort startup.
func New(cfg Config) (*IndexStore, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	s := &IndexStore{
		client: client,
		cb:     NewCircuitBreaker(defaultMaxFailures, defaultResetTimeout),
	}
	s.cb.OnStateChange = func(from, to State) {
		if to == StateClosed {
			go s.flush()
		}
		if s.OnStateChange != nil {
			s.OnStateChange(from, to)
		}
	}
	log.Printf("[redis] index store connected to %s", cfg.Addr)
	return s, nil
}

// Load returns every stored candle, ordered ascending by StartTime. A
// circuit-open error surfaces the buffered-only in-memory set instead of
// failing — callers (the index aggregator's own startup) should treat an
// empty history as "nothing persisted yet", not a fatal condition.
func (s *IndexStore) Load() ([]model.IndexCandle, error) {
	var out []model.IndexCandle
	err := s.cb.Execute(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), defaultCallTimeout)
		defer cancel()
		members, err := s.client.ZRangeWithScores(ctx, indexCandlesKey, 0, -1).Result()
		if err != nil {
			return fmt.Errorf("zrange %s: %w", indexCandlesKey, err)
		}
		out = make([]model.IndexCandle, 0, len(members))
		for _, m := range members {
			str, ok := m.Member.(string)
			if !ok {
				continue
			}
			var c model.IndexCandle
			if err := json.Unmarshal([]byte(str), &c); err != nil {
				log.Printf("[redis] index store: skipping unparseable member: %v", err)
				continue
			}
			out = append(out, c)
		}
		return nil
	})
	if err == ErrCircuitOpen {
		return s.bufferedSnapshot(), nil
	}
	return out, err
}

// Put writes (or replaces, at the same score) one candle. Replacement is
// delete-then-add: sorted sets dedup by member value, not score, and the
// JSON encoding of a revised candle is a different member string than the
// one it supersedes.
func (s *IndexStore) Put(c model.IndexCandle) error {
	err := s.cb.Execute(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), defaultCallTimeout)
		defer cancel()
		return s.putLocked(ctx, c)
	})
	if err == ErrCircuitOpen {
		s.buffer(c)
		return nil
	}
	return err
}

func (s *IndexStore) putLocked(ctx context.Context, c model.IndexCandle) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal index candle: %w", err)
	}

	existing, err := s.client.ZRangeByScore(ctx, indexCandlesKey, &goredis.ZRangeBy{
		Min: fmt.Sprintf("%d", c.StartTime),
		Max: fmt.Sprintf("%d", c.StartTime),
	}).Result()
	if err != nil {
		return fmt.Errorf("zrangebyscore %s: %w", indexCandlesKey, err)
	}

	pipe := s.client.TxPipeline()
	if len(existing) > 0 {
		pipe.ZRem(ctx, indexCandlesKey, existing)
	}
	pipe.ZAdd(ctx, indexCandlesKey, &goredis.Z{Score: float64(c.StartTime), Member: string(data)})
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("zadd %s: %w", indexCandlesKey, err)
	}
	return nil
}

// Trim deletes the lowest-ranked members beyond maxEntries, keeping only
// the most recent maxEntries candles.
func (s *IndexStore) Trim(maxEntries int) error {
	if maxEntries <= 0 {
		return nil
	}
	err := s.cb.Execute(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), defaultCallTimeout)
		defer cancel()
		count, err := s.client.ZCard(ctx, indexCandlesKey).Result()
		if err != nil {
			return fmt.Errorf("zcard %s: %w", indexCandlesKey, err)
		}
		if count <= int64(maxEntries) {
			return nil
		}
		// ZRANGE ranks ascending by score; the lowest-ranked members are
		// the oldest candles.
		toDrop := count - int64(maxEntries)
		return s.client.ZRemRangeByRank(ctx, indexCandlesKey, 0, toDrop-1).Err()
	})
	if err == ErrCircuitOpen {
		return nil // buffered Puts are capped separately; trimming can wait
	}
	return err
}

// DeleteByScore removes the member at the given score, if any.
func (s *IndexStore) DeleteByScore(score int64) error {
	err := s.cb.Execute(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), defaultCallTimeout)
		defer cancel()
		members, err := s.client.ZRangeByScore(ctx, indexCandlesKey, &goredis.ZRangeBy{
			Min: fmt.Sprintf("%d", score),
			Max: fmt.Sprintf("%d", score),
		}).Result()
		if err != nil {
			return fmt.Errorf("zrangebyscore %s: %w", indexCandlesKey, err)
		}
		if len(members) == 0 {
			return nil
		}
		return s.client.ZRem(ctx, indexCandlesKey, members).Err()
	})
	if err == ErrCircuitOpen {
		s.mu.Lock()
		kept := s.buffered[:0]
		for _, c := range s.buffered {
			if c.StartTime != score {
				kept = append(kept, c)
			}
		}
		s.buffered = kept
		s.mu.Unlock()
		return nil
	}
	return err
}

// Close releases the underlying Redis connection.
func (s *IndexStore) Close() error {
	return s.client.Close()
}

// CircuitState reports the breaker's current state, for health checks and
// metrics.
func (s *IndexStore) CircuitState() State {
	return s.cb.CurrentState()
}

// PendingCount returns the number of candles buffered in memory awaiting
// replay once the circuit closes.
func (s *IndexStore) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buffered)
}

func (s *IndexStore) buffer(c model.IndexCandle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	replaced := false
	for i, existing := range s.buffered {
		if existing.StartTime == c.StartTime {
			s.buffered[i] = c
			replaced = true
			break
		}
	}
	if !replaced {
		if len(s.buffered) >= defaultMaxBuffered {
			s.buffered = s.buffered[1:]
		}
		s.buffered = append(s.buffered, c)
	}
	if s.OnBuffer != nil {
		s.OnBuffer(len(s.buffered))
	}
}

func (s *IndexStore) bufferedSnapshot() []model.IndexCandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.IndexCandle, len(s.buffered))
	copy(out, s.buffered)
	return out
}

// flush replays every buffered candle through the real Put path once the
// circuit closes again.
func (s *IndexStore) flush() {
	s.mu.Lock()
	if len(s.buffered) == 0 {
		s.mu.Unlock()
		return
	}
	toFlush := s.buffered
	s.buffered = nil
	s.mu.Unlock()

	flushed := 0
	for _, c := range toFlush {
		if err := s.Put(c); err != nil {
			log.Printf("[redis] index store: flush of buffered candle %d failed: %v", c.StartTime, err)
			continue
		}
		flushed++
	}
	log.Printf("[redis] index store: flushed %d buffered candles", flushed)
}
