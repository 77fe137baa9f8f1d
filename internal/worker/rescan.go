// Package worker runs background scan passes: content updated since the last
// tick is rescanned against the owner's active rules so new pending
// suggestions appear without a manual request.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ignite/autolink/internal/domain"
	"github.com/ignite/autolink/internal/pkg/logger"
)

// Scanner creates pending suggestions for one content item.
// suggestion.Service satisfies it.
type Scanner interface {
	ScanContent(ctx context.Context, ownerID, contentID string) ([]domain.Suggestion, error)
}

// ContentSource lists content changed after a cursor. Results are ordered by
// (UpdatedAt, ID) and start strictly after after.UpdatedAt and after.ID.
type ContentSource interface {
	ListUpdatedSince(ctx context.Context, after domain.ContentRef, limit int) ([]domain.ContentRef, error)
}

// RescanConfig holds configuration for the rescan worker.
type RescanConfig struct {
	PollInterval time.Duration // How often to look for updated content
	Concurrency  int           // Maximum content items scanned in parallel
	BatchSize    int           // Maximum items per tick
	Lookback     time.Duration // How far back the first tick looks
	MaxAttempts  int           // Ticks a failing item holds the watermark before it is skipped
}

// DefaultRescanConfig returns default configuration.
func DefaultRescanConfig() RescanConfig {
	return RescanConfig{
		PollInterval: time.Minute,
		Concurrency:  4,
		BatchSize:    100,
		Lookback:     time.Hour,
		MaxAttempts:  3,
	}
}

// RescanWorker periodically scans recently updated content.
type RescanWorker struct {
	source  ContentSource
	scanner Scanner
	feeds   *FeedWatcher
	cfg     RescanConfig

	// since is the (updated_at, id) watermark and attempts counts failed
	// scans of the item holding it back. Only the poll goroutine touches them.
	since    domain.ContentRef
	attempts map[string]int

	totalTicks   int64
	totalScanned int64
	totalCreated int64
	totalErrors  int64

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
	running bool
}

// NewRescanWorker creates a rescan worker. Zero config fields take defaults.
func NewRescanWorker(source ContentSource, scanner Scanner, cfg RescanConfig) *RescanWorker {
	def := DefaultRescanConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = def.Lookback
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	return &RescanWorker{
		source:   source,
		scanner:  scanner,
		cfg:      cfg,
		since:    domain.ContentRef{UpdatedAt: time.Now().Add(-cfg.Lookback)},
		attempts: make(map[string]int),
	}
}

// SetFeedWatcher adds feed polling to every tick.
func (w *RescanWorker) SetFeedWatcher(f *FeedWatcher) { w.feeds = f }

// Start begins the polling loop.
func (w *RescanWorker) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("rescan worker already running")
	}
	w.running = true
	w.ctx, w.cancel = context.WithCancel(context.Background())
	w.mu.Unlock()

	logger.Info("rescan worker starting",
		"poll_interval", w.cfg.PollInterval,
		"concurrency", w.cfg.Concurrency,
		"batch_size", w.cfg.BatchSize,
	)
	w.wg.Add(1)
	go w.pollLoop()
	return nil
}

// Stop cancels the loop and waits for in-flight scans.
func (w *RescanWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.cancel()
	w.mu.Unlock()

	w.wg.Wait()
	logger.Info("rescan worker stopped",
		"ticks", atomic.LoadInt64(&w.totalTicks),
		"scanned", atomic.LoadInt64(&w.totalScanned),
		"created", atomic.LoadInt64(&w.totalCreated),
		"errors", atomic.LoadInt64(&w.totalErrors),
	)
}

// IsRunning reports whether the loop is active.
func (w *RescanWorker) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// Stats returns counters since start.
func (w *RescanWorker) Stats() map[string]int64 {
	return map[string]int64{
		"total_ticks":   atomic.LoadInt64(&w.totalTicks),
		"total_scanned": atomic.LoadInt64(&w.totalScanned),
		"total_created": atomic.LoadInt64(&w.totalCreated),
		"total_errors":  atomic.LoadInt64(&w.totalErrors),
	}
}

func (w *RescanWorker) pollLoop() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	w.tick()
	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.tick()
		}
	}
}

func (w *RescanWorker) tick() {
	if _, err := w.RunOnce(w.ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("rescan tick failed", "error", err)
	}
	if w.feeds != nil {
		if _, err := w.feeds.PollAll(w.ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("feed poll failed", "error", err)
		}
	}
}

// RunOnce scans one batch of updated content and advances the watermark.
// Per-item scan failures are counted and logged; they do not fail the batch,
// but the watermark stops before the first failed item so the next tick
// retries it. An item that keeps failing for MaxAttempts ticks, or whose
// content is gone, is skipped. It returns the number of items scanned.
func (w *RescanWorker) RunOnce(ctx context.Context) (int, error) {
	atomic.AddInt64(&w.totalTicks, 1)
	refs, err := w.source.ListUpdatedSince(ctx, w.since, w.cfg.BatchSize)
	if err != nil {
		atomic.AddInt64(&w.totalErrors, 1)
		return 0, err
	}
	if len(refs) == 0 {
		return 0, nil
	}

	errs := scanAll(ctx, w.scanner, refs, w.cfg.Concurrency, &w.totalCreated, &w.totalErrors)
	scanned := 0
	for _, err := range errs {
		if err == nil {
			scanned++
		}
	}
	atomic.AddInt64(&w.totalScanned, int64(scanned))

	for i, ref := range refs {
		if err := errs[i]; err != nil && !w.giveUp(ref, err) {
			break
		}
		delete(w.attempts, ref.ID)
		w.since = ref
	}
	return scanned, ctx.Err()
}

// giveUp records a failed scan and reports whether the watermark may move
// past ref anyway.
func (w *RescanWorker) giveUp(ref domain.ContentRef, err error) bool {
	if errors.Is(err, domain.ErrNotFound) {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	w.attempts[ref.ID]++
	if w.attempts[ref.ID] < w.cfg.MaxAttempts {
		return false
	}
	logger.Error("rescan giving up", "content_id", ref.ID, "attempts", w.attempts[ref.ID], "error", err)
	return true
}

// scanAll scans refs with at most limit in flight. The result holds one
// error per ref, nil for items that completed.
func scanAll(ctx context.Context, scanner Scanner, refs []domain.ContentRef, limit int, created, failed *int64) []error {
	errs := make([]error, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, ref := range refs {
		i, ref := i, ref
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			out, err := scanner.ScanContent(gctx, ref.OwnerID, ref.ID)
			if err != nil {
				errs[i] = err
				atomic.AddInt64(failed, 1)
				logger.Warn("rescan failed", "content_id", ref.ID, "error", err)
				return nil
			}
			atomic.AddInt64(created, int64(len(out)))
			return nil
		})
	}
	_ = g.Wait()
	return errs
}
