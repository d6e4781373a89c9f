// Package service orchestrates activity lookups: cache first, then at
// most one background fetch per identity, gated by the rate-limit
// tracker. Results are delivered asynchronously so the caller never
// blocks on network I/O.
package service

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/kvasirlabs/gh-activity/internal/apperror"
	"github.com/kvasirlabs/gh-activity/internal/cache"
	"github.com/kvasirlabs/gh-activity/internal/models"
	"github.com/kvasirlabs/gh-activity/internal/ratelimit"
)

const (
	// DefaultMaxConcurrentFetches bounds simultaneous outbound fetches
	// across distinct identities.
	DefaultMaxConcurrentFetches = 4

	// fetchTimeout bounds one network round trip. Fetches run on a
	// background context so an abandoned caller doesn't cancel them.
	fetchTimeout = 30 * time.Second
)

// ActivityFetcher performs one fetch for a user. The returned QuotaState
// must reflect the latest rate-limit headers regardless of outcome.
type ActivityFetcher interface {
	FetchActivity(ctx context.Context, login string) (*models.ActivityBatch, models.QuotaState, error)
}

// Result is the outcome of one activity request. Exactly one of Batch or
// Err is meaningful, except for the degrade path: a failed fetch with a
// stale cache entry delivers the stale batch with Stale set and no error.
type Result struct {
	Batch *models.ActivityBatch
	Stale bool
	Err   error
}

// Service is the single entry point for activity lookups.
type Service struct {
	fetcher ActivityFetcher
	cache   *cache.Cache
	tracker *ratelimit.Tracker
	logger  *slog.Logger

	// group enforces at most one in-flight fetch per identity; late
	// callers attach to the existing flight instead of dispatching.
	group singleflight.Group
	sem   *semaphore.Weighted
}

// New creates a service. maxConcurrent bounds parallel fetches across
// identities; values below 1 fall back to the default.
func New(fetcher ActivityFetcher, c *cache.Cache, tracker *ratelimit.Tracker, logger *slog.Logger, maxConcurrent int) *Service {
	if maxConcurrent < 1 {
		maxConcurrent = DefaultMaxConcurrentFetches
	}
	return &Service{
		fetcher: fetcher,
		cache:   c,
		tracker: tracker,
		logger:  logger,
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
	}
}

// Request resolves a user's activity, serving from cache when fresh and
// otherwise fetching in the background. The returned channel delivers
// exactly one Result. If ctx ends before the fetch completes, the caller
// receives a cancellation error while the fetch still runs to completion
// and populates the cache.
func (s *Service) Request(ctx context.Context, login string) <-chan Result {
	return s.request(ctx, login, false)
}

// Refresh is Request without the freshness short-circuit: the cache is
// bypassed on the way in but still updated by the fetch. In-flight
// deduplication and rate checks apply as usual.
func (s *Service) Refresh(ctx context.Context, login string) <-chan Result {
	return s.request(ctx, login, true)
}

// Quota returns the latest server-reported rate-limit state for display.
func (s *Service) Quota() models.QuotaState {
	return s.tracker.Snapshot()
}

func (s *Service) request(ctx context.Context, login string, force bool) <-chan Result {
	out := make(chan Result, 1)

	identity := models.NormalizeIdentity(login)
	if identity == "" {
		out <- Result{Err: apperror.Validation("username is required")}
		return out
	}

	if !force {
		if batch, ok := s.cache.Lookup(identity); ok && s.cache.IsFresh(batch) {
			out <- Result{Batch: batch}
			return out
		}
	}

	flight := s.group.DoChan(identity, func() (interface{}, error) {
		return s.fetch(identity)
	})

	go func() {
		select {
		case res := <-flight:
			out <- s.deliver(identity, res.Val, res.Err)
		case <-ctx.Done():
			out <- Result{Err: apperror.Cancelled()}
		}
	}()

	return out
}

// fetch runs once per in-flight identity. It checks the quota, performs
// the network round trip under the concurrency ceiling, feeds rate-limit
// headers back to the tracker on every outcome, and stores successful
// results. A failed fetch never touches the cache.
func (s *Service) fetch(identity string) (*models.ActivityBatch, error) {
	if !s.tracker.CanProceed() {
		return nil, apperror.RateLimited(s.tracker.TimeUntilReset())
	}

	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, apperror.Transport(err)
	}
	defer s.sem.Release(1)

	start := time.Now()
	batch, quota, err := s.fetcher.FetchActivity(ctx, identity)
	s.tracker.UpdateFromQuota(quota)
	if err != nil {
		s.logger.Warn("activity fetch failed",
			slog.String("user", identity),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	s.cache.Store(identity, batch)
	s.logger.Info("activity fetched",
		slog.String("user", identity),
		slog.Int("events", len(batch.Records)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return batch, nil
}

// deliver translates a completed flight into the caller-facing Result.
// On failure a stale cache entry, when present, is served tagged as
// stale instead of surfacing the error.
func (s *Service) deliver(identity string, val interface{}, err error) Result {
	if err == nil {
		// Attached callers share one flight; clone per delivery so no
		// caller holds a mutable reference to another's view.
		return Result{Batch: val.(*models.ActivityBatch).Clone()}
	}

	if stale, ok := s.cache.Lookup(identity); ok {
		s.logger.Warn("serving stale activity after failed fetch",
			slog.String("user", identity),
			slog.Duration("age", stale.Age(time.Now())),
		)
		return Result{Batch: stale, Stale: true}
	}

	return Result{Err: err}
}
