// Package store composes the Redis-backed IndexStore with the SQLite
// durability mirror into the single model.IndexStore the index aggregator
// consumes, per SPEC_FULL.md §3/§7's dual-writer architecture.
package store

import (
	"log/slog"

	"trading-systemv1/internal/model"
)

// mirror is the narrow subset of *sqlite.Mirror's API this package depends
// on, kept as an interface so this file never imports database/sql.
type mirror interface {
	Load() ([]model.IndexCandle, error)
	Put(model.IndexCandle) error
	Trim(maxEntries int) error
	DeleteByScore(score int64) error
	Close() error
}

// DualStore writes through to a primary model.IndexStore (Redis, itself
// already circuit-breaker-protected) and mirrors every write to a local
// SQLite mirror, whether or not the primary write succeeded; the primary's
// error is the one returned. Load prefers the primary when it returns a
// non-empty history and falls back to the mirror otherwise.
type DualStore struct {
	primary model.IndexStore
	mirror  mirror
	log     *slog.Logger
}

func NewDualStore(primary model.IndexStore, mirror mirror, log *slog.Logger) *DualStore {
	return &DualStore{primary: primary, mirror: mirror, log: log}
}

func (d *DualStore) Load() ([]model.IndexCandle, error) {
	history, err := d.primary.Load()
	if err == nil && len(history) > 0 {
		return history, nil
	}
	if err != nil {
		d.log.Warn("dual store: primary load failed, falling back to mirror", slog.Any("err", err))
	}
	return d.mirror.Load()
}

func (d *DualStore) Put(c model.IndexCandle) error {
	err := d.primary.Put(c)
	if merr := d.mirror.Put(c); merr != nil {
		d.log.Warn("dual store: mirror put failed", slog.Any("err", merr))
	}
	return err
}

func (d *DualStore) Trim(maxEntries int) error {
	err := d.primary.Trim(maxEntries)
	if merr := d.mirror.Trim(maxEntries); merr != nil {
		d.log.Warn("dual store: mirror trim failed", slog.Any("err", merr))
	}
	return err
}

func (d *DualStore) DeleteByScore(score int64) error {
	err := d.primary.DeleteByScore(score)
	if merr := d.mirror.DeleteByScore(score); merr != nil {
		d.log.Warn("dual store: mirror delete failed", slog.Any("err", merr))
	}
	return err
}

func (d *DualStore) Close() error {
	primaryErr := d.primary.Close()
	mirrorErr := d.mirror.Close()
	if primaryErr != nil {
		return primaryErr
	}
	return mirrorErr
}
