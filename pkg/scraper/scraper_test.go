package scraper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"igdownloader/pkg/apify"
	"igdownloader/pkg/config"
	igerrors "igdownloader/pkg/errors"
	"igdownloader/pkg/logger"
	"igdownloader/pkg/models"
)

// MockBackend is a mock implementation of Backend
type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) FetchPosts(ctx context.Context, postURL string) ([]apify.RawPost, error) {
	args := m.Called(ctx, postURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]apify.RawPost), args.Error(1)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) Sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return nil
}

func imagePost(id string) []apify.RawPost {
	return []apify.RawPost{{
		ID:               id,
		Type:             apify.TypeImage,
		DisplayURL:       "https://cdn.example.com/" + id + ".jpg",
		DimensionsWidth:  1080,
		DimensionsHeight: 1080,
		OwnerUsername:    "alice",
	}}
}

func testConfig(cacheEnabled bool) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Apify.Token = "token"
	cfg.Cache.Enabled = cacheEnabled
	return cfg
}

type fixture struct {
	orch    *Orchestrator
	backend *MockBackend
	clock   *testClock
	sleeps  *sleepRecorder
	log     *logger.TestLogger
}

func newFixture(cfg *config.Config) *fixture {
	f := &fixture{
		backend: &MockBackend{},
		clock:   &testClock{now: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)},
		sleeps:  &sleepRecorder{},
		log:     logger.NewTestLogger(),
	}
	f.orch = New(cfg, f.backend, f.log, WithClock(f.clock.Now), WithSleep(f.sleeps.Sleep))
	return f
}

func TestFetchMediaSuccess(t *testing.T) {
	f := newFixture(testConfig(true))
	f.backend.On("FetchPosts", mock.Anything, "https://www.instagram.com/p/abc123/").
		Return(imagePost("abc"), nil).Once()

	resp := f.orch.FetchMedia(context.Background(), "https://www.instagram.com/p/abc123/")

	require.Nil(t, resp.Err)
	require.NotNil(t, resp.Data)
	assert.False(t, resp.Cached)
	assert.NotEmpty(t, resp.RequestID)
	assert.Equal(t, "@alice", resp.Data.Author)
	assert.Len(t, resp.Data.Media, 1)
	assert.Equal(t, 1, resp.RateLimit.RequestsThisMinute)
	f.backend.AssertExpectations(t)
}

func TestInvalidInputTouchesNothing(t *testing.T) {
	f := newFixture(testConfig(true))

	for _, input := range []string{"", "   ", "not a url", "ftp://www.instagram.com/p/abc/", "https://www.instagram.com/explore/"} {
		resp := f.orch.FetchMedia(context.Background(), input)
		require.NotNil(t, resp.Err, input)
		assert.Equal(t, igerrors.KindInvalidInput, resp.Err.Kind)
		assert.Equal(t, 400, resp.Err.StatusHint)
		assert.False(t, resp.Err.Retryable)
	}

	assert.Zero(t, f.orch.RateLimitStatus().RequestsThisMinute)
	assert.Zero(t, f.orch.CacheStats().Size)
	f.backend.AssertNotCalled(t, "FetchPosts", mock.Anything, mock.Anything)
}

func TestCacheHitSkipsRateLimit(t *testing.T) {
	f := newFixture(testConfig(true))
	f.backend.On("FetchPosts", mock.Anything, mock.Anything).Return(imagePost("abc"), nil).Once()

	first := f.orch.FetchMedia(context.Background(), "https://www.instagram.com/p/abc123/")
	require.Nil(t, first.Err)
	assert.False(t, first.Cached)

	second := f.orch.FetchMedia(context.Background(), "https://www.instagram.com/p/abc123/")
	require.Nil(t, second.Err)
	assert.True(t, second.Cached)
	assert.Same(t, first.Data, second.Data)

	assert.Equal(t, 1, f.orch.RateLimitStatus().RequestsThisMinute)
	f.backend.AssertNumberOfCalls(t, "FetchPosts", 1)
}

func TestCacheExpiryRefetches(t *testing.T) {
	f := newFixture(testConfig(true))
	f.backend.On("FetchPosts", mock.Anything, mock.Anything).Return(imagePost("abc"), nil)

	require.Nil(t, f.orch.FetchMedia(context.Background(), "https://www.instagram.com/p/abc123/").Err)

	f.clock.Advance(301 * time.Second)
	resp := f.orch.FetchMedia(context.Background(), "https://www.instagram.com/p/abc123/")
	require.Nil(t, resp.Err)
	assert.False(t, resp.Cached)
	f.backend.AssertNumberOfCalls(t, "FetchPosts", 2)
}

func TestCanonicalURLSharesCacheEntry(t *testing.T) {
	f := newFixture(testConfig(true))
	f.backend.On("FetchPosts", mock.Anything, "https://example.com/p/abc123/").
		Return(imagePost("abc"), nil).Once()

	first := f.orch.FetchMedia(context.Background(), "https://example.com/p/abc123/?utm=1")
	require.Nil(t, first.Err)
	assert.False(t, first.Cached)
	assert.Equal(t, "https://example.com/p/abc123/?utm=1", first.Data.SourceURL)

	second := f.orch.FetchMedia(context.Background(), "https://example.com/p/abc123/")
	require.Nil(t, second.Err)
	assert.True(t, second.Cached)

	stats := f.orch.CacheStats()
	assert.Equal(t, 1, stats.Size)
	f.backend.AssertExpectations(t)
}

func TestRateLimitDeniesNPlusOne(t *testing.T) {
	cfg := testConfig(false)
	cfg.RateLimit.RequestsPerMinute = 3
	f := newFixture(cfg)
	f.backend.On("FetchPosts", mock.Anything, mock.Anything).Return(imagePost("abc"), nil)

	for i := 0; i < 3; i++ {
		resp := f.orch.FetchMedia(context.Background(), fmt.Sprintf("https://www.instagram.com/p/post%d/", i))
		require.Nil(t, resp.Err, "request %d", i+1)
	}

	resp := f.orch.FetchMedia(context.Background(), "https://www.instagram.com/p/post9/")
	require.NotNil(t, resp.Err)
	assert.Equal(t, igerrors.KindRateLimited, resp.Err.Kind)
	assert.Equal(t, 429, resp.Err.StatusHint)
	assert.Equal(t, "Minute limit of 3 requests exceeded", resp.Err.Message)
	f.backend.AssertNumberOfCalls(t, "FetchPosts", 3)
	assert.True(t, f.log.HasMessage("Rate limit reached, request refused"))

	f.clock.Advance(time.Minute)
	assert.Nil(t, f.orch.FetchMedia(context.Background(), "https://www.instagram.com/p/post9/").Err)
}

func TestRetriesThenClassifies(t *testing.T) {
	f := newFixture(testConfig(false))
	f.backend.On("FetchPosts", mock.Anything, mock.Anything).
		Return(nil, errors.New("apify run: not found (404)"))

	resp := f.orch.FetchMedia(context.Background(), "https://www.instagram.com/reel/xyz/")
	require.NotNil(t, resp.Err)
	assert.Equal(t, igerrors.KindNotFound, resp.Err.Kind)
	assert.False(t, resp.Err.Retryable)

	f.backend.AssertNumberOfCalls(t, "FetchPosts", 3)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, f.sleeps.delays)
	assert.Equal(t, 1, f.orch.RateLimitStatus().RequestsThisMinute, "one request, however many attempts")
}

func TestRetryRecovers(t *testing.T) {
	f := newFixture(testConfig(true))
	f.backend.On("FetchPosts", mock.Anything, mock.Anything).Return(nil, errors.New("network error: reset")).Twice()
	f.backend.On("FetchPosts", mock.Anything, mock.Anything).Return(imagePost("abc"), nil).Once()

	resp := f.orch.FetchMedia(context.Background(), "https://www.instagram.com/p/abc/")
	require.Nil(t, resp.Err)
	f.backend.AssertNumberOfCalls(t, "FetchPosts", 3)
}

func TestTimeoutIsRetryable(t *testing.T) {
	f := newFixture(testConfig(false))
	f.backend.On("FetchPosts", mock.Anything, mock.Anything).Return(nil, errors.New("apify run: request timeout: deadline"))

	resp := f.orch.FetchMedia(context.Background(), "https://www.instagram.com/p/abc/")
	require.NotNil(t, resp.Err)
	assert.Equal(t, igerrors.KindTimeout, resp.Err.Kind)
	assert.True(t, resp.Err.Retryable)
}

func TestNoDataIsNotCached(t *testing.T) {
	f := newFixture(testConfig(true))
	f.backend.On("FetchPosts", mock.Anything, mock.Anything).Return([]apify.RawPost{}, nil)

	resp := f.orch.FetchMedia(context.Background(), "https://www.instagram.com/p/empty/")
	require.NotNil(t, resp.Err)
	assert.Equal(t, igerrors.KindNoData, resp.Err.Kind)
	assert.Equal(t, "NO_DATA_FOUND", resp.Err.Code)
	assert.Zero(t, f.orch.CacheStats().Size)
}

func TestCacheDisabled(t *testing.T) {
	f := newFixture(testConfig(false))
	f.backend.On("FetchPosts", mock.Anything, mock.Anything).Return(imagePost("abc"), nil)

	f.orch.FetchMedia(context.Background(), "https://www.instagram.com/p/abc/")
	resp := f.orch.FetchMedia(context.Background(), "https://www.instagram.com/p/abc/")

	assert.False(t, resp.Cached)
	f.backend.AssertNumberOfCalls(t, "FetchPosts", 2)
	assert.Equal(t, models.CacheStats{Keys: []string{}}, f.orch.CacheStats())
	assert.Zero(t, f.orch.SweepCache())
}

func TestConcurrentIdenticalRequestsShareOneCall(t *testing.T) {
	f := newFixture(testConfig(true))
	release := make(chan struct{})
	f.backend.On("FetchPosts", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { <-release }).
		Return(imagePost("abc"), nil)

	var wg sync.WaitGroup
	responses := make([]*Response, 5)
	for i := range responses {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			responses[i] = f.orch.FetchMedia(context.Background(), "https://www.instagram.com/p/abc/")
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, resp := range responses {
		require.Nil(t, resp.Err)
		require.NotNil(t, resp.Data)
	}
	f.backend.AssertNumberOfCalls(t, "FetchPosts", 1)
}

func TestCallerCancellationDoesNotAbortFetch(t *testing.T) {
	f := newFixture(testConfig(false))

	var seen context.Context
	f.backend.On("FetchPosts", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { seen = args.Get(0).(context.Context) }).
		Return(imagePost("abc"), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp := f.orch.FetchMedia(ctx, "https://www.instagram.com/p/abc/")
	require.Nil(t, resp.Err)
	require.NotNil(t, seen)
	assert.NoError(t, seen.Err())
}

func TestClearAndSweepCache(t *testing.T) {
	f := newFixture(testConfig(true))
	f.backend.On("FetchPosts", mock.Anything, mock.Anything).Return(imagePost("abc"), nil)

	f.orch.FetchMedia(context.Background(), "https://www.instagram.com/p/one/")
	f.orch.FetchMedia(context.Background(), "https://www.instagram.com/p/two/")
	assert.Equal(t, 2, f.orch.CacheStats().Size)

	f.clock.Advance(10 * time.Minute)
	assert.Equal(t, 2, f.orch.SweepCache())

	f.orch.FetchMedia(context.Background(), "https://www.instagram.com/p/one/")
	f.orch.ClearCache()
	assert.Zero(t, f.orch.CacheStats().Size)
}
