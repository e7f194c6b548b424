package scanner

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/consentry/internal/common"
	"github.com/ternarybob/consentry/internal/interfaces"
	"github.com/ternarybob/consentry/internal/models"
)

// browserFactory opens the single shared browser for a parallel scan and
// returns its context plus a shutdown function. Replaceable in tests.
type browserFactory func(ctx context.Context) (context.Context, func(), error)

// ParallelScanner runs quick and deep scans against one browser instance
// with a bounded number of concurrent page visits. URLs are processed in
// batches; a batch is awaited as a group so progress can be reported, but
// execution within a batch is fully concurrent.
type ParallelScanner struct {
	config     *common.Config
	visitor    interfaces.PageVisitor
	classifier interfaces.Classifier
	discoverer *URLDiscoverer
	newBrowser browserFactory
	logger     arbor.ILogger
}

func NewParallelScanner(config *common.Config, visitor interfaces.PageVisitor, cls interfaces.Classifier) *ParallelScanner {
	s := &ParallelScanner{
		config:     config,
		visitor:    visitor,
		classifier: cls,
		discoverer: NewURLDiscoverer(),
		logger:     common.GetLogger(),
	}
	s.newBrowser = s.startBrowser
	return s
}

// QuickScan visits the landing page plus customPages. Off-origin custom
// pages are kept.
func (s *ParallelScanner) QuickScan(ctx context.Context, domain string, customPages []string, sink interfaces.ProgressSink) (*models.ScanResult, error) {
	return s.Scan(ctx, models.ScanRequest{
		Domain:      domain,
		Mode:        models.ScanModeQuick,
		CustomPages: customPages,
	}, sink)
}

// DeepScan discovers same-origin links from the landing page up to
// maxPages. Off-origin custom pages are filtered out.
func (s *ParallelScanner) DeepScan(ctx context.Context, domain string, maxPages int, customPages []string, sink interfaces.ProgressSink) (*models.ScanResult, error) {
	return s.Scan(ctx, models.ScanRequest{
		Domain:      domain,
		Mode:        models.ScanModeDeep,
		MaxPages:    maxPages,
		CustomPages: customPages,
	}, sink)
}

// Scan implements interfaces.PageScanner for quick and deep modes.
func (s *ParallelScanner) Scan(ctx context.Context, req models.ScanRequest, sink interfaces.ProgressSink) (*models.ScanResult, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	req = applyDefaults(req, s.config)

	scanID := common.NewScanID(req.Domain)
	startedAt := time.Now()

	s.logger.Info().
		Str("scan_id", scanID).
		Str("domain", req.Domain).
		Str("mode", string(req.Mode)).
		Int("concurrency", req.Concurrency).
		Msg("Starting parallel scan")

	browser, shutdown, err := s.newBrowser(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}
	defer shutdown()

	urls, err := s.buildURLList(ctx, browser, req)
	if err != nil {
		return nil, err
	}

	publisher := newProgressPublisher(sink)
	defer publisher.Close()

	agg := NewAggregator()
	cancelled := s.runBatches(ctx, browser, req, scanID, urls, agg, publisher)
	agg.Flush()

	result := s.buildResult(scanID, req, agg, startedAt, cancelled)

	s.logger.Info().
		Str("scan_id", scanID).
		Int("pages_visited", result.TotalPagesScanned).
		Int("pages_failed", result.FailedPagesCount).
		Int("unique_cookies", result.UniqueCookies).
		Bool("cancelled", cancelled).
		Dur("duration", result.Duration).
		Msg("Parallel scan complete")
	return result, nil
}

// buildURLList assembles the pages to visit: seeds first, then for deep
// scans links discovered on the landing page, truncated to MaxPages.
func (s *ParallelScanner) buildURLList(ctx context.Context, browser context.Context, req models.ScanRequest) ([]string, error) {
	sameOriginOnly := req.Mode != models.ScanModeQuick
	urls, err := s.discoverer.BuildSeedList(req.Domain, req.CustomPages, sameOriginOnly)
	if err != nil {
		return nil, err
	}

	if req.Mode == models.ScanModeDeep && len(urls) < req.MaxPages {
		links, err := s.discoverer.DiscoverLinks(ctx, browser, req.Domain, urls, req.MaxPages-len(urls))
		if err != nil {
			s.logger.Warn().Err(err).Str("domain", req.Domain).Msg("Link discovery failed, scanning seed pages only")
		} else {
			urls = append(urls, links...)
		}
	}

	if len(urls) > req.MaxPages {
		urls = urls[:req.MaxPages]
	}
	return urls, nil
}

// runBatches walks the URL list in batches of Concurrency, each batch
// fully concurrent under the semaphore, and reports progress after every
// batch. Returns true if the scan was cancelled before finishing.
func (s *ParallelScanner) runBatches(ctx context.Context, browser context.Context, req models.ScanRequest, scanID string, urls []string, agg *Aggregator, publisher *progressPublisher) bool {
	opts := visitOptions(req, s.config)
	batchSize := req.Concurrency
	totalBatches := (len(urls) + batchSize - 1) / batchSize
	sem := make(chan struct{}, req.Concurrency)
	results := make(chan models.PageResult, batchSize)
	started := time.Now()

	scanned := 0
	for batch := 0; batch < totalBatches; batch++ {
		lo := batch * batchSize
		hi := lo + batchSize
		if hi > len(urls) {
			hi = len(urls)
		}

		launched := 0
		for i := lo; i < hi; i++ {
			if ctx.Err() != nil {
				break
			}
			sem <- struct{}{}
			launched++
			go func(url string, index int) {
				defer func() { <-sem }()
				results <- s.visitor.Visit(ctx, browser, url, index, opts)
			}(urls[i], i)
		}

		// Batch barrier: every launched page reports before the next
		// batch is scheduled.
		for i := 0; i < launched; i++ {
			agg.Offer(<-results)
		}
		scanned += launched

		elapsed := time.Since(started)
		avgBatch := elapsed / time.Duration(batch+1)
		estimated := avgBatch * time.Duration(totalBatches-batch-1)
		publisher.PublishProgress(models.ScanProgress{
			ScanID:             scanID,
			TotalPages:         len(urls),
			ScannedPages:       scanned,
			CurrentBatch:       batch + 1,
			TotalBatches:       totalBatches,
			CookiesFound:       agg.UniqueCookies(),
			ElapsedTime:        elapsed,
			EstimatedRemaining: estimated,
		})

		if ctx.Err() != nil {
			return true
		}
	}
	return false
}

func (s *ParallelScanner) buildResult(scanID string, req models.ScanRequest, agg *Aggregator, startedAt time.Time, cancelled bool) *models.ScanResult {
	completedAt := time.Now()
	duration := completedAt.Sub(startedAt)

	classified := classifyAll(s.classifier, agg.Cookies(), req.DomainConfigID, req.Domain)
	visited := agg.PagesVisited()
	failed := agg.PagesFailed()

	pagesPerSecond := 0.0
	if duration > 0 {
		pagesPerSecond = float64(len(visited)+len(failed)) / duration.Seconds()
	}

	return &models.ScanResult{
		ScanID:            scanID,
		Domain:            req.Domain,
		ScanMode:          req.Mode,
		TotalPagesScanned: len(visited),
		FailedPagesCount:  len(failed),
		UniqueCookies:     len(classified),
		Cookies:           classified,
		Storages:          agg.Storage(),
		PagesVisited:      visited,
		PagesFailed:       failed,
		Duration:          duration,
		PagesPerSecond:    pagesPerSecond,
		Cancelled:         cancelled,
		StartedAt:         startedAt,
		CompletedAt:       completedAt,
	}
}

// classifyAll labels every aggregated cookie. Classification never fails,
// so this cannot abort a scan.
func classifyAll(cls interfaces.Classifier, cookies []models.AggregatedCookie, domainConfigID, scanDomain string) []models.ClassifiedCookie {
	out := make([]models.ClassifiedCookie, 0, len(cookies))
	for _, cookie := range cookies {
		out = append(out, cls.Classify(cookie, domainConfigID, scanDomain))
	}
	return out
}

// startBrowser opens the shared browser instance with anti-automation
// hardening applied once.
func (s *ParallelScanner) startBrowser(ctx context.Context) (context.Context, func(), error) {
	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", s.config.Scan.Headless),
		chromedp.Flag("no-sandbox", s.config.Scan.NoSandbox),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(s.config.Scan.UserAgent),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	testCtx, cancelTest := context.WithTimeout(browserCtx, 30*time.Second)
	defer cancelTest()
	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank")); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, nil, fmt.Errorf("browser failed startup test: %w", err)
	}

	return browserCtx, func() {
		cancelBrowser()
		cancelAlloc()
	}, nil
}
