// Package downloader saves the media items of a resolved post with a fixed
// number of concurrent workers.
package downloader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"igdownloader/internal/relay"
	"igdownloader/pkg/logger"
	"igdownloader/pkg/metadata"
	"igdownloader/pkg/models"
	"igdownloader/pkg/retry"
)

// ErrPoolStopped is returned by Submit once Stop has been called
var ErrPoolStopped = errors.New("worker pool is shutting down")

// Job is one media item to download
type Job struct {
	Item   models.MediaItem
	Source *models.DownloadResult
}

// Result is the outcome of a Job
type Result struct {
	Job      Job
	Path     string
	Skipped  bool
	Err      error
	Duration time.Duration
	Size     int
}

// MediaFetcher downloads the bytes behind a media URL
type MediaFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// MediaStorage persists downloaded media
type MediaStorage interface {
	IsSaved(itemID string) bool
	Save(r io.Reader, itemID, format string) (string, error)
}

// SidecarWriter persists item metadata next to the media
type SidecarWriter interface {
	Save(s *metadata.Sidecar) error
}

// Limiter paces outgoing downloads
type Limiter interface {
	Wait(ctx context.Context) error
}

// WorkerPool manages concurrent download workers
type WorkerPool struct {
	numWorkers int
	jobQueue   chan Job
	results    chan Result
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc

	fetcher  MediaFetcher
	storage  MediaStorage
	sidecars SidecarWriter
	limiter  Limiter
	retry    *retry.Config
	logger   logger.Logger
	now      func() time.Time

	mu      sync.Mutex
	stopped bool
}

// Option configures a WorkerPool
type Option func(*WorkerPool)

// WithSidecars writes a metadata sidecar for every saved item
func WithSidecars(w SidecarWriter) Option {
	return func(wp *WorkerPool) { wp.sidecars = w }
}

// WithLimiter paces downloads through l
func WithLimiter(l Limiter) Option {
	return func(wp *WorkerPool) { wp.limiter = l }
}

// WithRetry replaces the download retry policy. RetryIf and OnRetry are
// filled in by the pool when left nil.
func WithRetry(cfg *retry.Config) Option {
	return func(wp *WorkerPool) { wp.retry = cfg }
}

// DefaultRetryConfig retries a failed media download twice, starting at 500ms
func DefaultRetryConfig() *retry.Config {
	return &retry.Config{
		MaxAttempts: 3,
		Backoff: &retry.ExponentialBackoff{
			BaseDelay:    500 * time.Millisecond,
			MaxDelay:     4 * time.Second,
			Multiplier:   2,
			JitterFactor: 0.2,
		},
	}
}

// shouldRetryDownload gives up on answers that will not change: 4xx from the
// media host and bodies over the size cap
func shouldRetryDownload(err error) bool {
	var upstream *relay.UpstreamError
	if errors.As(err, &upstream) {
		return upstream.StatusCode < 400 || upstream.StatusCode >= 500
	}
	if errors.Is(err, relay.ErrTooLarge) || errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

// NewWorkerPool creates a pool bound to ctx; cancelling ctx abandons queued jobs
func NewWorkerPool(ctx context.Context, numWorkers int, fetcher MediaFetcher, storage MediaStorage, log logger.Logger, opts ...Option) *WorkerPool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	if log == nil {
		log = logger.GetLogger()
	}
	ctx, cancel := context.WithCancel(ctx)

	wp := &WorkerPool{
		numWorkers: numWorkers,
		jobQueue:   make(chan Job, numWorkers*2),
		results:    make(chan Result, numWorkers),
		ctx:        ctx,
		cancel:     cancel,
		fetcher:    fetcher,
		storage:    storage,
		logger:     log.WithField("component", "downloader"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(wp)
	}
	if wp.retry == nil {
		wp.retry = DefaultRetryConfig()
	}
	policy := *wp.retry
	wp.retry = &policy
	if wp.retry.RetryIf == nil {
		wp.retry.RetryIf = shouldRetryDownload
	}
	return wp
}

// Start launches the workers
func (wp *WorkerPool) Start() {
	wp.logger.InfoWithFields("Starting worker pool", map[string]interface{}{
		"num_workers": wp.numWorkers,
	})

	for i := 0; i < wp.numWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop waits for queued jobs to finish and closes Results
func (wp *WorkerPool) Stop() {
	wp.mu.Lock()
	if wp.stopped {
		wp.mu.Unlock()
		return
	}
	wp.stopped = true
	close(wp.jobQueue)
	wp.mu.Unlock()

	wp.wg.Wait()
	close(wp.results)
	wp.cancel()

	wp.logger.Info("Worker pool stopped")
}

// Submit queues a job, blocking while the queue is full
func (wp *WorkerPool) Submit(job Job) error {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	if wp.stopped {
		return ErrPoolStopped
	}

	select {
	case wp.jobQueue <- job:
		wp.logger.DebugWithFields("Job submitted to queue", map[string]interface{}{
			"item_id": job.Item.ID,
		})
		return nil
	case <-wp.ctx.Done():
		return ErrPoolStopped
	}
}

// Results delivers one Result per submitted job
func (wp *WorkerPool) Results() <-chan Result {
	return wp.results
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for job := range wp.jobQueue {
		result := wp.processJob(job, id)

		select {
		case wp.results <- result:
		case <-wp.ctx.Done():
			// drain so Stop can return
			continue
		}
	}
}

func (wp *WorkerPool) processJob(job Job, workerID int) Result {
	start := time.Now()
	result := Result{Job: job}
	item := job.Item

	if wp.storage.IsSaved(item.ID) {
		wp.logger.DebugWithFields("Media already saved", map[string]interface{}{
			"worker_id": workerID,
			"item_id":   item.ID,
		})
		result.Skipped = true
		result.Duration = time.Since(start)
		return result
	}

	fail := func(err error) Result {
		result.Err = err
		result.Duration = time.Since(start)
		logger.LogDownload(wp.logger, item.ID, string(item.Kind), result.Size, err)
		return result
	}

	if err := wp.ctx.Err(); err != nil {
		return fail(err)
	}
	if wp.limiter != nil {
		if err := wp.limiter.Wait(wp.ctx); err != nil {
			return fail(fmt.Errorf("rate limit wait: %w", err))
		}
	}

	data, err := retry.DoWithResult(wp.ctx, func(ctx context.Context) ([]byte, error) {
		return wp.fetcher.Fetch(ctx, item.DownloadURL)
	}, wp.retryFor(item.ID, workerID))
	if err != nil {
		return fail(fmt.Errorf("download failed: %w", err))
	}
	result.Size = len(data)

	path, err := wp.storage.Save(bytes.NewReader(data), item.ID, item.Format)
	if err != nil {
		return fail(fmt.Errorf("save failed: %w", err))
	}
	result.Path = path

	if wp.sidecars != nil {
		sidecar := metadata.FromItem(job.Source, item, int64(len(data)), wp.now().UTC())
		if err := wp.sidecars.Save(sidecar); err != nil {
			wp.logger.WithError(err).WithField("item_id", item.ID).Warn("Failed to write metadata sidecar")
		}
	}

	result.Duration = time.Since(start)
	logger.LogDownload(wp.logger, item.ID, string(item.Kind), result.Size, nil)
	return result
}

func (wp *WorkerPool) retryFor(itemID string, workerID int) *retry.Config {
	cfg := *wp.retry
	if cfg.OnRetry == nil {
		cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
			wp.logger.WarnWithFields("Retrying media download", map[string]interface{}{
				"worker_id": workerID,
				"item_id":   itemID,
				"attempt":   attempt,
				"delay_ms":  delay.Milliseconds(),
				"error":     err.Error(),
			})
		}
	}
	return &cfg
}

// DownloadAll saves every item of result and returns the per-item outcomes in
// submission order
func DownloadAll(ctx context.Context, result *models.DownloadResult, numWorkers int, fetcher MediaFetcher, storage MediaStorage, log logger.Logger, opts ...Option) []Result {
	if result == nil || len(result.Media) == 0 {
		return nil
	}

	wp := NewWorkerPool(ctx, numWorkers, fetcher, storage, log, opts...)
	wp.Start()

	index := make(map[string]int, len(result.Media))
	out := make([]Result, len(result.Media))
	for i, item := range result.Media {
		index[item.ID] = i
		out[i] = Result{Job: Job{Item: item, Source: result}, Err: ErrPoolStopped}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for r := range wp.Results() {
			out[index[r.Job.Item.ID]] = r
		}
	}()

	for _, item := range result.Media {
		if err := wp.Submit(Job{Item: item, Source: result}); err != nil {
			break
		}
	}

	wp.Stop()
	<-done
	return out
}
