package scanner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/consentry/internal/common"
	"github.com/ternarybob/consentry/internal/interfaces"
	"github.com/ternarybob/consentry/internal/models"
)

// pagePool is the slice of the browser pool the enterprise scanner needs.
// Satisfied by *BrowserPool; tests substitute a stub.
type pagePool interface {
	Start(ctx context.Context) error
	Stop()
	Acquire(ctx context.Context, urlIndex int) (context.Context, func(), error)
	MarkUnhealthy(browser context.Context)
	Healthy() int
	Size() int
	EffectiveConcurrency() int
}

// poolFactory builds the pool for one scan. Replaceable in tests.
type poolFactory func(config PoolConfig) pagePool

// EnterpriseScanner runs deep scans of up to 20,000 pages against a
// browser pool, in chunks that bound memory and form checkpoint
// boundaries. Scans with persistence enabled can resume from the last
// checkpoint after an interruption.
type EnterpriseScanner struct {
	config      *common.Config
	visitor     interfaces.PageVisitor
	classifier  interfaces.Classifier
	discoverer  *URLDiscoverer
	checkpoints *CheckpointStore
	newPool     poolFactory
	logger      arbor.ILogger
}

func NewEnterpriseScanner(config *common.Config, visitor interfaces.PageVisitor, cls interfaces.Classifier, checkpoints *CheckpointStore) *EnterpriseScanner {
	s := &EnterpriseScanner{
		config:      config,
		visitor:     visitor,
		classifier:  cls,
		discoverer:  NewURLDiscoverer(),
		checkpoints: checkpoints,
		logger:      common.GetLogger(),
	}
	s.newPool = func(pc PoolConfig) pagePool { return NewBrowserPool(pc) }
	return s
}

// scanState carries the per-scan bookkeeping across chunks.
type scanState struct {
	scanID      string
	totalURLs   int
	pending     []string // URLs not yet processed, global index = indexOffset + position
	indexOffset int
	completed   []string // processed URLs (visited or permanently failed)
	agg         *Aggregator

	concurrency   int // adaptive page-visit cap, within [P, PxK]
	prevChunkRate float64
	errorsCount   int
	successCount  int
	startedAt     time.Time
}

// Scan implements interfaces.PageScanner for enterprise mode.
func (s *EnterpriseScanner) Scan(ctx context.Context, req models.ScanRequest, sink interfaces.ProgressSink) (*models.ScanResult, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	req = applyDefaults(req, s.config)

	pool := s.newPool(PoolConfig{
		Browsers:        req.BrowserPoolSize,
		PagesPerBrowser: req.PagesPerBrowser,
		UserAgent:       req.UserAgent,
		Headless:        s.config.Scan.Headless,
		NoSandbox:       s.config.Scan.NoSandbox,
	})
	if err := pool.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start browser pool: %w", err)
	}
	defer pool.Stop()

	state, err := s.prepare(ctx, req, pool)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("scan_id", state.scanID).
		Str("domain", req.Domain).
		Int("total_urls", state.totalURLs).
		Int("pending", len(state.pending)).
		Int("chunk_size", req.ChunkSize).
		Int("concurrency", state.concurrency).
		Msg("Starting enterprise scan")

	publisher := newProgressPublisher(sink)
	defer publisher.Close()

	scanErr := s.runChunks(ctx, req, pool, state, publisher)
	state.agg.Flush()

	if req.EnablePersistence {
		s.writeCheckpoint(req, state)
	}

	result := s.buildResult(req, state, pool, scanErr)
	s.logger.Info().
		Str("scan_id", state.scanID).
		Int("pages_visited", result.TotalPagesScanned).
		Int("pages_failed", result.FailedPagesCount).
		Int("unique_cookies", result.UniqueCookies).
		Bool("cancelled", result.Cancelled).
		Msg("Enterprise scan complete")

	if scanErr != nil && errors.Is(scanErr, ErrPoolExhausted) {
		return result, scanErr
	}
	return result, nil
}

// prepare builds the scan state, either fresh (with link discovery) or
// from a checkpoint when resuming.
func (s *EnterpriseScanner) prepare(ctx context.Context, req models.ScanRequest, pool pagePool) (*scanState, error) {
	state := &scanState{
		agg:         NewAggregator(),
		concurrency: pool.EffectiveConcurrency(),
		startedAt:   time.Now(),
	}

	if req.ResumeScanID != "" {
		checkpoint, err := s.checkpoints.Load(req.ResumeScanID)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("no checkpoint found for scan %s", req.ResumeScanID)
			}
			return nil, fmt.Errorf("failed to load checkpoint: %w", err)
		}
		state.scanID = checkpoint.ScanID
		state.totalURLs = checkpoint.TotalURLs
		state.pending = checkpoint.PendingURLs
		state.completed = checkpoint.CompletedURLs
		state.indexOffset = len(checkpoint.CompletedURLs)
		state.agg.Seed(checkpoint.Cookies, checkpoint.CompletedURLs)
		s.logger.Info().
			Str("scan_id", state.scanID).
			Int("completed", len(state.completed)).
			Int("pending", len(state.pending)).
			Msg("Resuming enterprise scan from checkpoint")
		return state, nil
	}

	urls, err := s.discoverURLs(ctx, req, pool)
	if err != nil {
		return nil, err
	}
	state.scanID = common.NewScanID(req.Domain)
	state.totalURLs = len(urls)
	state.pending = urls
	return state, nil
}

// discoverURLs builds the full URL list through the pool's first browser.
func (s *EnterpriseScanner) discoverURLs(ctx context.Context, req models.ScanRequest, pool pagePool) ([]string, error) {
	urls, err := s.discoverer.BuildSeedList(req.Domain, req.CustomPages, true)
	if err != nil {
		return nil, err
	}
	if len(urls) < req.MaxPages {
		browser, release, err := pool.Acquire(ctx, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire browser for discovery: %w", err)
		}
		links, err := s.discoverer.DiscoverLinks(ctx, browser, req.Domain, urls, req.MaxPages-len(urls))
		release()
		if err != nil {
			s.logger.Warn().Err(err).Msg("Link discovery failed, scanning seed pages only")
		} else {
			urls = append(urls, links...)
		}
	}
	if len(urls) > req.MaxPages {
		urls = urls[:req.MaxPages]
	}
	return urls, nil
}

// runChunks processes the pending URLs chunk by chunk. The chunk boundary
// is a barrier: every page of chunk N completes before chunk N+1 starts.
func (s *EnterpriseScanner) runChunks(ctx context.Context, req models.ScanRequest, pool pagePool, state *scanState, publisher *progressPublisher) error {
	opts := visitOptions(req, s.config)
	interval := s.config.Scan.CheckpointInterval
	sinceCheckpoint := 0

	for chunkStart := 0; chunkStart < len(state.pending); chunkStart += req.ChunkSize {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		chunkEnd := chunkStart + req.ChunkSize
		if chunkEnd > len(state.pending) {
			chunkEnd = len(state.pending)
		}
		chunk := state.pending[chunkStart:chunkEnd]
		chunkStarted := time.Now()

		sem := make(chan struct{}, state.concurrency)
		results := make(chan models.PageResult, len(chunk))

		launched := 0
		var launchErr error
		for i, url := range chunk {
			if ctx.Err() != nil {
				break
			}
			globalIndex := state.indexOffset + chunkStart + i

			browser, release, err := pool.Acquire(ctx, globalIndex)
			if err != nil {
				launchErr = err
				break
			}

			sem <- struct{}{}
			launched++
			go func(browser context.Context, release func(), url string, index int) {
				defer func() {
					release()
					<-sem
				}()
				result := s.visitor.Visit(ctx, browser, url, index, opts)
				if !result.Success && isFatalErrorString(result.Error) {
					pool.MarkUnhealthy(browser)
				}
				results <- result
			}(browser, release, url, globalIndex)
		}

		// Chunk barrier.
		for i := 0; i < launched; i++ {
			result := <-results
			state.agg.Offer(result)
			state.completed = append(state.completed, result.URL)
			if result.Success {
				state.successCount++
			} else {
				state.errorsCount++
			}

			sinceCheckpoint++
			if req.EnablePersistence && interval > 0 && sinceCheckpoint >= interval {
				sinceCheckpoint = 0
				s.writeCheckpointAsync(req, state)
			}
		}

		s.publishChunkMetrics(pool, state, publisher)
		s.adaptConcurrency(pool, state, len(chunk), time.Since(chunkStarted))

		if req.EnablePersistence {
			sinceCheckpoint = 0
			s.writeCheckpointAsync(req, state)
		}
		if launchErr != nil {
			return launchErr
		}
	}
	return ctx.Err()
}

// adaptConcurrency compares the chunk's throughput with the previous one
// and moves the page-visit cap by 10% inside [P, PxK]. Config-gated.
func (s *EnterpriseScanner) adaptConcurrency(pool pagePool, state *scanState, chunkPages int, chunkDuration time.Duration) {
	if !s.config.Scan.AdaptiveConcurrency || chunkDuration <= 0 || chunkPages == 0 {
		return
	}
	rate := float64(chunkPages) / chunkDuration.Seconds()
	defer func() { state.prevChunkRate = rate }()

	if state.prevChunkRate <= 0 {
		return
	}

	lower, upper := pool.Size(), pool.EffectiveConcurrency()
	switch {
	case rate < state.prevChunkRate*0.8 && state.concurrency > lower:
		next := state.concurrency * 9 / 10
		if next < lower {
			next = lower
		}
		s.logger.Debug().
			Float64("rate", rate).
			Float64("prev_rate", state.prevChunkRate).
			Int("concurrency", next).
			Msg("Throughput declining, reducing concurrency")
		state.concurrency = next
	case rate > state.prevChunkRate && state.concurrency < upper:
		next := state.concurrency * 11 / 10
		if next <= state.concurrency {
			next = state.concurrency + 1
		}
		if next > upper {
			next = upper
		}
		state.concurrency = next
	}
}

func (s *EnterpriseScanner) publishChunkMetrics(pool pagePool, state *scanState, publisher *progressPublisher) {
	publisher.PublishMetrics(s.metrics(pool, state))
}

func (s *EnterpriseScanner) metrics(pool pagePool, state *scanState) models.EnterpriseMetrics {
	elapsed := time.Since(state.startedAt)
	scanned := len(state.completed)

	pagesPerSecond := 0.0
	if elapsed > 0 {
		pagesPerSecond = float64(scanned-state.indexOffset) / elapsed.Seconds()
	}
	remaining := state.totalURLs - scanned
	var estimated time.Duration
	if pagesPerSecond > 0 && remaining > 0 {
		estimated = time.Duration(float64(remaining)/pagesPerSecond) * time.Second
	}

	return models.EnterpriseMetrics{
		TotalPages:         state.totalURLs,
		ScannedPages:       scanned,
		SuccessfulPages:    state.successCount + state.indexOffset,
		FailedPages:        state.errorsCount,
		CookiesFound:       state.agg.UniqueCookies(),
		Elapsed:            elapsed,
		PagesPerSecond:     pagesPerSecond,
		EstimatedRemaining: estimated,
		ActiveBrowsers:     pool.Healthy(),
		CurrentConcurrency: state.concurrency,
		ErrorsCount:        state.errorsCount,
	}
}

// writeCheckpointAsync snapshots the scan state and queues an atomic
// write. Checkpoint failures never fail the scan.
func (s *EnterpriseScanner) writeCheckpointAsync(req models.ScanRequest, state *scanState) {
	s.checkpoints.SaveAsync(s.snapshot(req, state))
}

func (s *EnterpriseScanner) writeCheckpoint(req models.ScanRequest, state *scanState) {
	if err := s.checkpoints.Save(s.snapshot(req, state)); err != nil {
		s.logger.Warn().Str("scan_id", state.scanID).Err(err).Msg("Final checkpoint write failed")
	}
}

// snapshot builds a checkpoint value with completed and pending disjoint.
func (s *EnterpriseScanner) snapshot(req models.ScanRequest, state *scanState) *models.Checkpoint {
	completed := make([]string, len(state.completed))
	copy(completed, state.completed)

	done := make(map[string]bool, len(completed))
	for _, url := range completed {
		done[url] = true
	}
	pending := make([]string, 0, len(state.pending))
	for _, url := range state.pending {
		if !done[url] {
			pending = append(pending, url)
		}
	}

	metrics := s.metricsForSnapshot(state)
	return &models.Checkpoint{
		ScanID:        state.scanID,
		Domain:        req.Domain,
		TotalURLs:     state.totalURLs,
		CompletedURLs: completed,
		PendingURLs:   pending,
		Cookies:       state.agg.Cookies(),
		Metrics:       metrics,
	}
}

func (s *EnterpriseScanner) metricsForSnapshot(state *scanState) *models.EnterpriseMetrics {
	elapsed := time.Since(state.startedAt)
	m := models.EnterpriseMetrics{
		TotalPages:         state.totalURLs,
		ScannedPages:       len(state.completed),
		SuccessfulPages:    state.successCount + state.indexOffset,
		FailedPages:        state.errorsCount,
		CookiesFound:       state.agg.UniqueCookies(),
		Elapsed:            elapsed,
		CurrentConcurrency: state.concurrency,
		ErrorsCount:        state.errorsCount,
	}
	if elapsed > 0 {
		m.PagesPerSecond = float64(len(state.completed)-state.indexOffset) / elapsed.Seconds()
	}
	return &m
}

func (s *EnterpriseScanner) buildResult(req models.ScanRequest, state *scanState, pool pagePool, scanErr error) *models.ScanResult {
	completedAt := time.Now()
	duration := completedAt.Sub(state.startedAt)

	classified := classifyAll(s.classifier, state.agg.Cookies(), req.DomainConfigID, req.Domain)
	visited := state.agg.PagesVisited()
	failed := state.agg.PagesFailed()

	pagesPerSecond := 0.0
	if duration > 0 {
		pagesPerSecond = float64(len(visited)+len(failed)-state.indexOffset) / duration.Seconds()
	}

	metrics := s.metrics(pool, state)
	return &models.ScanResult{
		ScanID:            state.scanID,
		Domain:            req.Domain,
		ScanMode:          models.ScanModeEnterprise,
		TotalPagesScanned: len(visited),
		FailedPagesCount:  len(failed),
		UniqueCookies:     len(classified),
		Cookies:           classified,
		Storages:          state.agg.Storage(),
		PagesVisited:      visited,
		PagesFailed:       failed,
		Duration:          duration,
		PagesPerSecond:    pagesPerSecond,
		Cancelled:         errors.Is(scanErr, context.Canceled) || errors.Is(scanErr, context.DeadlineExceeded),
		Metrics:           &metrics,
		StartedAt:         state.startedAt,
		CompletedAt:       completedAt,
	}
}

// isFatalErrorString recognises a dead browser from a visitor error
// message, since PageResult carries errors as strings.
func isFatalErrorString(msg string) bool {
	return strings.Contains(msg, "browser closed") ||
		strings.Contains(msg, "websocket: close") ||
		strings.Contains(msg, "target closed") ||
		strings.Contains(msg, string(ErrorKindBrowserFatal))
}
