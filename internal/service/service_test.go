package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kvasirlabs/gh-activity/internal/apperror"
	"github.com/kvasirlabs/gh-activity/internal/cache"
	"github.com/kvasirlabs/gh-activity/internal/models"
	"github.com/kvasirlabs/gh-activity/internal/ratelimit"
)

// mockFetcher is a hand-written ActivityFetcher. It counts calls, can
// fail on demand, and can block until released to keep a flight open.
type mockFetcher struct {
	mu    sync.Mutex
	calls int
	err   error
	quota models.QuotaState
	block chan struct{} // when non-nil, FetchActivity waits until closed
}

func (m *mockFetcher) FetchActivity(_ context.Context, login string) (*models.ActivityBatch, models.QuotaState, error) {
	m.mu.Lock()
	m.calls++
	block := m.block
	err := m.err
	quota := m.quota
	m.mu.Unlock()

	if block != nil {
		<-block
	}
	if err != nil {
		return nil, quota, err
	}
	return &models.ActivityBatch{
		Identity: login,
		User:     &models.UserProfile{Login: login},
		Records: []models.ActivityRecord{
			{Kind: models.KindPush, Summary: "Pushed 1 commit(s) to " + login + "/repo"},
		},
		FetchedAt: time.Now(),
	}, quota, nil
}

func (m *mockFetcher) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *mockFetcher) setErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func newTestService(t *testing.T, fetcher *mockFetcher, window time.Duration) (*Service, *ratelimit.Tracker) {
	t.Helper()
	c, err := cache.New(8, window)
	require.NoError(t, err)
	tracker := ratelimit.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(fetcher, c, tracker, logger, 4), tracker
}

func TestFreshCacheHitIssuesNoFetch(t *testing.T) {
	fetcher := &mockFetcher{}
	svc, _ := newTestService(t, fetcher, time.Hour)

	first := <-svc.Request(context.Background(), "octocat")
	require.NoError(t, first.Err)
	require.Equal(t, 1, fetcher.callCount())

	for i := 0; i < 3; i++ {
		res := <-svc.Request(context.Background(), "octocat")
		require.NoError(t, res.Err)
		assert.False(t, res.Stale)
		assert.Equal(t, "octocat", res.Batch.Identity)
	}
	assert.Equal(t, 1, fetcher.callCount(), "fresh hits must not fetch")
}

func TestConcurrentRequestsShareOneFlight(t *testing.T) {
	fetcher := &mockFetcher{block: make(chan struct{})}
	svc, _ := newTestService(t, fetcher, 0) // nothing is ever fresh

	const n = 5
	channels := make([]<-chan Result, n)
	for i := 0; i < n; i++ {
		// Request joins the flight synchronously, so all callers are
		// attached before the fetch is released.
		channels[i] = svc.Request(context.Background(), "octocat")
	}
	close(fetcher.block)

	for _, ch := range channels {
		res := <-ch
		require.NoError(t, res.Err)
		assert.Equal(t, "octocat", res.Batch.Identity)
	}
	assert.Equal(t, 1, fetcher.callCount(), "concurrent requests for one identity must share one fetch")
}

func TestIdentityIsCaseInsensitive(t *testing.T) {
	fetcher := &mockFetcher{}
	svc, _ := newTestService(t, fetcher, time.Hour)

	res := <-svc.Request(context.Background(), "Alice")
	require.NoError(t, res.Err)
	assert.Equal(t, "alice", res.Batch.Identity)

	res = <-svc.Request(context.Background(), "alice")
	require.NoError(t, res.Err)

	res = <-svc.Request(context.Background(), "  ALICE  ")
	require.NoError(t, res.Err)

	assert.Equal(t, 1, fetcher.callCount())
}

func TestExhaustedQuotaFailsFast(t *testing.T) {
	fetcher := &mockFetcher{}
	svc, tracker := newTestService(t, fetcher, time.Hour)
	tracker.Update(0, 60, time.Now().Add(30*time.Minute))

	res := <-svc.Request(context.Background(), "octocat")
	require.ErrorIs(t, res.Err, apperror.ErrRateLimited)

	retryAfter, ok := apperror.RetryAfter(res.Err)
	require.True(t, ok)
	assert.Greater(t, retryAfter, 25*time.Minute)
	assert.Equal(t, 0, fetcher.callCount(), "no fetch may be dispatched while the quota is exhausted")
}

func TestQuotaResetRolloverAllowsFetch(t *testing.T) {
	fetcher := &mockFetcher{}
	svc, tracker := newTestService(t, fetcher, time.Hour)
	tracker.Update(0, 60, time.Now().Add(-time.Minute))

	res := <-svc.Request(context.Background(), "octocat")
	require.NoError(t, res.Err)
	assert.Equal(t, 1, fetcher.callCount())
}

func TestStaleDegradeOnFailedFetch(t *testing.T) {
	fetcher := &mockFetcher{}
	svc, _ := newTestService(t, fetcher, 0) // every entry is stale immediately

	res := <-svc.Request(context.Background(), "octocat")
	require.NoError(t, res.Err)
	require.Equal(t, 1, fetcher.callCount())

	fetcher.setErr(apperror.Transport(io.ErrUnexpectedEOF))

	res = <-svc.Request(context.Background(), "octocat")
	require.NoError(t, res.Err, "stale degrade delivers data, not an error")
	require.NotNil(t, res.Batch)
	assert.True(t, res.Stale)
	assert.Equal(t, "octocat", res.Batch.Identity)
}

func TestFailureWithoutStaleDataSurfacesError(t *testing.T) {
	fetcher := &mockFetcher{err: apperror.NotFound("nobody")}
	svc, _ := newTestService(t, fetcher, time.Hour)

	res := <-svc.Request(context.Background(), "nobody")
	require.ErrorIs(t, res.Err, apperror.ErrNotFound)
	assert.Nil(t, res.Batch)
}

func TestFailedFetchKeepsCacheEntry(t *testing.T) {
	fetcher := &mockFetcher{}
	svc, _ := newTestService(t, fetcher, 0)

	<-svc.Request(context.Background(), "octocat")
	fetcher.setErr(apperror.Transport(io.ErrUnexpectedEOF))
	<-svc.Request(context.Background(), "octocat")

	// The good entry survives the failed fetch.
	batch, ok := svc.cache.Lookup("octocat")
	require.True(t, ok)
	assert.Len(t, batch.Records, 1)
}

func TestFailedFetchStillUpdatesTracker(t *testing.T) {
	resetAt := time.Now().Add(20 * time.Minute)
	fetcher := &mockFetcher{
		err:   apperror.RateLimited(20 * time.Minute),
		quota: models.QuotaState{Remaining: 0, Limit: 60, ResetAt: resetAt, Known: true},
	}
	svc, tracker := newTestService(t, fetcher, time.Hour)

	res := <-svc.Request(context.Background(), "octocat")
	require.ErrorIs(t, res.Err, apperror.ErrRateLimited)

	assert.False(t, tracker.CanProceed(), "rate headers from a failed fetch must reach the tracker")
	assert.Equal(t, 0, svc.Quota().Remaining)
	assert.Equal(t, 60, svc.Quota().Limit)
}

func TestCancelledCallerGetsCancelledAndFetchCompletes(t *testing.T) {
	fetcher := &mockFetcher{block: make(chan struct{})}
	svc, _ := newTestService(t, fetcher, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	ch := svc.Request(ctx, "octocat")
	cancel()

	res := <-ch
	require.ErrorIs(t, res.Err, apperror.ErrCancelled)

	// The fetch is not torn down with the caller: it finishes and still
	// populates the cache.
	close(fetcher.block)
	require.Eventually(t, func() bool {
		_, ok := svc.cache.Lookup("octocat")
		return ok
	}, time.Second, 5*time.Millisecond)
}

func TestRefreshBypassesFreshCache(t *testing.T) {
	fetcher := &mockFetcher{}
	svc, _ := newTestService(t, fetcher, time.Hour)

	<-svc.Request(context.Background(), "octocat")
	require.Equal(t, 1, fetcher.callCount())

	res := <-svc.Refresh(context.Background(), "octocat")
	require.NoError(t, res.Err)
	assert.Equal(t, 2, fetcher.callCount())
}

func TestEmptyUsernameRejected(t *testing.T) {
	fetcher := &mockFetcher{}
	svc, _ := newTestService(t, fetcher, time.Hour)

	res := <-svc.Request(context.Background(), "   ")
	require.ErrorIs(t, res.Err, apperror.ErrValidation)
	assert.Equal(t, 0, fetcher.callCount())
}

func TestDeliveredBatchesAreIndependent(t *testing.T) {
	fetcher := &mockFetcher{block: make(chan struct{})}
	svc, _ := newTestService(t, fetcher, 0)

	first := svc.Request(context.Background(), "octocat")
	second := svc.Request(context.Background(), "octocat")
	close(fetcher.block)

	a := <-first
	b := <-second
	require.NoError(t, a.Err)
	require.NoError(t, b.Err)

	a.Batch.Records[0].Summary = "mutated"
	assert.NotEqual(t, "mutated", b.Batch.Records[0].Summary)
}
