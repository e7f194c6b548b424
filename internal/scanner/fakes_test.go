package scanner

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ternarybob/consentry/internal/common"
	"github.com/ternarybob/consentry/internal/models"
)

// fakeVisitor returns scripted PageResults and records the in-flight
// high-water mark so tests can assert concurrency caps.
type fakeVisitor struct {
	mu       sync.Mutex
	pages    map[string]models.PageResult // keyed by URL; missing URLs succeed empty
	delay    time.Duration
	visited  []string
	lastOpts models.VisitOptions

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func newFakeVisitor(pages map[string]models.PageResult) *fakeVisitor {
	if pages == nil {
		pages = map[string]models.PageResult{}
	}
	return &fakeVisitor{pages: pages}
}

func (v *fakeVisitor) Visit(ctx context.Context, _ context.Context, url string, index int, opts models.VisitOptions) models.PageResult {
	current := v.inFlight.Add(1)
	for {
		peak := v.maxInFlight.Load()
		if current <= peak || v.maxInFlight.CompareAndSwap(peak, current) {
			break
		}
	}
	defer v.inFlight.Add(-1)

	if v.delay > 0 {
		// In-flight visits run to completion even when the scan context is
		// cancelled, matching the visitor contract.
		time.Sleep(v.delay)
	}

	v.mu.Lock()
	v.visited = append(v.visited, url)
	v.lastOpts = opts
	result, ok := v.pages[url]
	v.mu.Unlock()

	if !ok {
		result = models.PageResult{Success: true}
	}
	result.URL = url
	result.Index = index
	return result
}

func (v *fakeVisitor) visitedURLs() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]string, len(v.visited))
	copy(out, v.visited)
	return out
}

func (v *fakeVisitor) seenOpts() models.VisitOptions {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastOpts
}

// recordingSink captures progress and metrics updates.
type recordingSink struct {
	mu       sync.Mutex
	progress []models.ScanProgress
	metrics  []models.EnterpriseMetrics
}

func (s *recordingSink) OnProgress(p models.ScanProgress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = append(s.progress, p)
}

func (s *recordingSink) OnMetrics(m models.EnterpriseMetrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = append(s.metrics, m)
}

func (s *recordingSink) progressCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.progress)
}

func (s *recordingSink) lastProgress() models.ScanProgress {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.progress) == 0 {
		return models.ScanProgress{}
	}
	return s.progress[len(s.progress)-1]
}

func (s *recordingSink) metricsCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.metrics)
}

// stubPool satisfies pagePool without real browsers.
type stubPool struct {
	browsers  int
	pages     int
	unhealthy atomic.Int32
	acquired  atomic.Int32
	failAfter int32 // acquisitions before Acquire starts failing; 0 = never
}

func newStubPool(browsers, pages int) *stubPool {
	return &stubPool{browsers: browsers, pages: pages}
}

func (p *stubPool) Start(context.Context) error { return nil }
func (p *stubPool) Stop()                       {}

func (p *stubPool) Acquire(ctx context.Context, _ int) (context.Context, func(), error) {
	n := p.acquired.Add(1)
	if p.failAfter > 0 && n > p.failAfter {
		return nil, nil, ErrPoolExhausted
	}
	return context.Background(), func() {}, nil
}

func (p *stubPool) MarkUnhealthy(context.Context) { p.unhealthy.Add(1) }
func (p *stubPool) Healthy() int                  { return p.browsers - int(p.unhealthy.Load()) }
func (p *stubPool) Size() int                     { return p.browsers }
func (p *stubPool) EffectiveConcurrency() int     { return p.browsers * p.pages }

// testConfig returns defaults suitable for fast tests.
func testConfig(t interface{ TempDir() string }) *common.Config {
	cfg := common.DefaultConfig()
	cfg.Scan.CheckpointDir = t.TempDir()
	cfg.Scan.CheckpointInterval = 2
	cfg.Scan.SettleWait = time.Millisecond
	return cfg
}
