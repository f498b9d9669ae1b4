package scraper

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"igdownloader/pkg/apify"
	"igdownloader/pkg/cache"
	"igdownloader/pkg/config"
	igerrors "igdownloader/pkg/errors"
	"igdownloader/pkg/logger"
	"igdownloader/pkg/models"
	"igdownloader/pkg/normalize"
	"igdownloader/pkg/ratelimit"
	"igdownloader/pkg/retry"
	"igdownloader/pkg/validator"
)

// Backend fetches raw post records for a canonical post URL
type Backend interface {
	FetchPosts(ctx context.Context, postURL string) ([]apify.RawPost, error)
}

// Response is the envelope returned for every FetchMedia call. Exactly one of
// Data and Err is set.
type Response struct {
	RequestID string
	Data      *models.DownloadResult
	Err       *igerrors.Error
	Cached    bool
	Duration  time.Duration
	RateLimit models.RateLimitInfo
}

// Option customizes an Orchestrator
type Option func(*Orchestrator)

// WithClock replaces time.Now for the limiter, the cache and duration reporting
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithSleep replaces the pause between backend attempts
func WithSleep(sleep retry.SleepFunc) Option {
	return func(o *Orchestrator) { o.sleep = sleep }
}

// Orchestrator resolves post URLs into DownloadResults: validate, consult the
// cache, check the rate limit, call the backend with retries, normalize, store.
type Orchestrator struct {
	validator  *validator.Validator
	backend    Backend
	limiter    *ratelimit.FixedWindow
	cache      *cache.Cache[*models.DownloadResult]
	ttl        time.Duration
	normalizer *normalize.Normalizer
	retry      *retry.Config
	flights    singleflight.Group
	logger     logger.Logger
	now        func() time.Time
	sleep      retry.SleepFunc
}

// New wires an Orchestrator from configuration. The cache is only created when
// cfg.Cache.Enabled is set.
func New(cfg *config.Config, backend Backend, log logger.Logger, opts ...Option) *Orchestrator {
	if log == nil {
		log = logger.GetLogger()
	}

	o := &Orchestrator{
		backend: backend,
		logger:  log.WithField("component", "orchestrator"),
		now:     time.Now,
		sleep:   retry.Wait,
	}
	for _, opt := range opts {
		opt(o)
	}

	o.validator = validator.New(cfg.Validator.AllowedHosts)
	o.limiter = ratelimit.NewFixedWindow(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.RequestsPerHour, ratelimit.WithClock(o.now))
	o.normalizer = normalize.New(log)
	o.ttl = time.Duration(cfg.Cache.TTLSeconds) * time.Second

	if cfg.Cache.Enabled {
		o.cache = cache.New[*models.DownloadResult](cfg.Cache.SoftLimit).WithClock(o.now)
	}

	base := cfg.Retry.BaseDelay
	if base <= 0 {
		base = time.Second
	}
	o.retry = &retry.Config{
		MaxAttempts: cfg.Retry.MaxAttempts,
		Backoff:     &retry.ExponentialBackoff{BaseDelay: base, Multiplier: 2},
		Sleep:       o.sleep,
		Logger:      o.logger,
	}

	return o
}

// FetchMedia resolves a post URL. Failures are returned inside the Response,
// never as a separate error.
//
// The backend work runs on a context detached from ctx, so a caller that goes
// away does not cut a retry sequence short.
func (o *Orchestrator) FetchMedia(ctx context.Context, rawURL string) *Response {
	start := o.now()
	resp := &Response{RequestID: uuid.NewString()}
	log := o.logger.WithField("request_id", resp.RequestID)

	defer func() {
		resp.Duration = o.now().Sub(start)
		resp.RateLimit = o.limiter.Snapshot()
	}()

	valid, err := o.validator.Validate(rawURL)
	if err != nil {
		var rejected *validator.Rejected
		reason := err.Error()
		if errors.As(err, &rejected) {
			reason = rejected.Reason
		}
		log.DebugWithFields("rejected url", map[string]interface{}{"reason": reason})
		resp.Err = igerrors.InvalidInput(reason)
		return resp
	}

	key := cache.Key(valid.Canonical)
	if o.cache != nil {
		if hit, ok := o.cache.Get(key); ok {
			log.DebugWithFields("cache hit", map[string]interface{}{"key": key})
			resp.Data = hit
			resp.Cached = true
			return resp
		}
	}

	detached := context.WithoutCancel(ctx)
	v, err, shared := o.flights.Do(key, func() (interface{}, error) {
		return o.fetchFresh(detached, valid, key, log)
	})
	if shared {
		log.DebugWithFields("joined in-flight request", map[string]interface{}{"key": key})
	}
	if err != nil {
		resp.Err = igerrors.Classify(err)
		return resp
	}

	resp.Data = v.(*models.DownloadResult)
	return resp
}

func (o *Orchestrator) fetchFresh(ctx context.Context, valid validator.ValidURL, key string, log logger.Logger) (*models.DownloadResult, error) {
	decision := o.limiter.CheckAndReserve()
	if !decision.Allowed {
		logger.LogRateLimit(log, decision.Window, decision.Limit)
		return nil, igerrors.RateLimited(decision.Reason)
	}

	posts, err := retry.DoWithResult(ctx, func(ctx context.Context) ([]apify.RawPost, error) {
		return o.backend.FetchPosts(ctx, valid.Canonical)
	}, o.retry)
	if err != nil {
		classified := igerrors.Classify(err)
		log.ErrorWithFields("backend fetch failed", map[string]interface{}{
			"url":       valid.Canonical,
			"kind":      string(classified.Kind),
			"retryable": classified.Retryable,
			"error":     err.Error(),
		})
		return nil, classified
	}

	result := o.normalizer.Normalize(posts, valid.Original)
	if result == nil {
		return nil, igerrors.NoData()
	}

	if o.cache != nil {
		o.cache.Put(key, result, o.ttl)
	}

	log.InfoWithFields("resolved post", map[string]interface{}{
		"url":         valid.Canonical,
		"media_count": len(result.Media),
	})
	return result, nil
}

// CacheStats reports the cache contents. A disabled cache reports zero entries.
func (o *Orchestrator) CacheStats() models.CacheStats {
	if o.cache == nil {
		return models.CacheStats{Keys: []string{}}
	}
	return o.cache.Stats()
}

// ClearCache drops every cached result
func (o *Orchestrator) ClearCache() {
	if o.cache != nil {
		o.cache.Clear()
	}
}

// SweepCache removes expired results and returns how many were dropped
func (o *Orchestrator) SweepCache() int {
	if o.cache == nil {
		return 0
	}
	return o.cache.Sweep()
}

// RateLimitStatus returns the current counters of the backend limiter
func (o *Orchestrator) RateLimitStatus() models.RateLimitInfo {
	return o.limiter.Snapshot()
}
