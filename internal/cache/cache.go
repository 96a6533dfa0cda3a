// Package cache implements the verification cache: canonical item to most
// recent successful outcome, reusable within a freshness window.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/cembakir/veriflow/internal/domain"
	"github.com/cembakir/veriflow/internal/repository"
	"go.uber.org/zap"
)

const (
	// DefaultFreshnessWindow is how long a cached outcome stays reusable.
	DefaultFreshnessWindow = 24 * time.Hour

	// defaultLookupChunk keeps IN-list sizes below storage limits.
	defaultLookupChunk = 500
)

type Store struct {
	repo   repository.CacheRepository
	window time.Duration
	chunk  int
	logger *zap.Logger
	now    func() time.Time
}

func NewStore(repo repository.CacheRepository, window time.Duration, logger *zap.Logger) *Store {
	if window <= 0 {
		window = DefaultFreshnessWindow
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Store{
		repo:   repo,
		window: window,
		chunk:  defaultLookupChunk,
		logger: logger,
		now:    time.Now,
	}
}

// Get returns the cached outcome for one canonical item, or false on a miss.
func (s *Store) Get(ctx context.Context, item string) (*domain.Outcome, bool) {
	entry, err := s.repo.GetFresh(ctx, item, s.now().Add(-s.window))
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("cache lookup failed", zap.String("item", item), zap.Error(err))
		}
		return nil, false
	}
	outcome := entry.Outcome
	return &outcome, true
}

// GetMany returns the freshest cached outcome per canonical item. Lookups are
// chunked; a failing chunk is logged and skipped so one bad query cannot turn
// the whole batch into cache misses plus an error.
func (s *Store) GetMany(ctx context.Context, items []string) map[string]domain.Outcome {
	hits := make(map[string]domain.Outcome, len(items))
	since := s.now().Add(-s.window)

	for start := 0; start < len(items); start += s.chunk {
		end := min(start+s.chunk, len(items))

		entries, err := s.repo.GetManyFresh(ctx, items[start:end], since)
		if err != nil {
			s.logger.Warn("cache chunk lookup failed",
				zap.Int("chunkStart", start),
				zap.Int("chunkSize", end-start),
				zap.Error(err),
			)
			continue
		}

		for _, entry := range entries {
			hits[entry.Item] = entry.Outcome
		}
	}

	return hits
}

// Put records a successful outcome. Writes are best-effort: a failure is
// logged and never propagated, because caching must not fail the verification
// it is caching.
func (s *Store) Put(ctx context.Context, item string, outcome domain.Outcome) {
	entry := &domain.CacheEntry{
		Item:      item,
		Outcome:   outcome,
		CheckedAt: s.now().UTC(),
	}

	if err := s.repo.Upsert(ctx, entry); err != nil {
		s.logger.Warn("cache write failed", zap.String("item", item), zap.Error(err))
	}
}
