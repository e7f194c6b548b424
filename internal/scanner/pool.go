package scanner

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/consentry/internal/common"
)

// PoolConfig sizes the browser pool: P browsers, each admitting K
// concurrent pages. Effective concurrency is P x K.
type PoolConfig struct {
	Browsers        int // P, bounded 1-10
	PagesPerBrowser int // K, bounded 1-50
	UserAgent       string
	Headless        bool
	NoSandbox       bool
	StartupTimeout  time.Duration
}

// poolSlot is one pooled browser with its page-slot semaphore.
type poolSlot struct {
	browser     context.Context
	cancelCtx   context.CancelFunc
	cancelAlloc context.CancelFunc
	pages       chan struct{}
	unhealthy   atomic.Bool
}

// BrowserPool owns P browser instances created up front. Acquisition is
// round-robin on the caller's URL index; unhealthy slots are skipped. Start
// and Stop are serial; once started, acquisition takes no pool-wide lock.
type BrowserPool struct {
	mu      sync.Mutex
	config  PoolConfig
	slots   []*poolSlot
	started bool
	logger  arbor.ILogger
}

func NewBrowserPool(config PoolConfig) *BrowserPool {
	if config.StartupTimeout <= 0 {
		config.StartupTimeout = 30 * time.Second
	}
	return &BrowserPool{
		config: config,
		logger: common.GetLogger(),
	}
}

// Start creates every browser and verifies each with a startup navigation
// before returning. Idempotent.
func (p *BrowserPool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return nil
	}
	if p.config.Browsers < 1 || p.config.Browsers > 10 {
		return fmt.Errorf("browser pool size %d out of range [1,10]", p.config.Browsers)
	}
	if p.config.PagesPerBrowser < 1 || p.config.PagesPerBrowser > 50 {
		return fmt.Errorf("pages per browser %d out of range [1,50]", p.config.PagesPerBrowser)
	}

	p.logger.Info().
		Int("browsers", p.config.Browsers).
		Int("pages_per_browser", p.config.PagesPerBrowser).
		Bool("headless", p.config.Headless).
		Msg("Starting browser pool")

	started := time.Now()
	slots := make([]*poolSlot, 0, p.config.Browsers)
	for i := 0; i < p.config.Browsers; i++ {
		slot, err := p.createSlot(ctx, i)
		if err != nil {
			for _, s := range slots {
				s.close()
			}
			return fmt.Errorf("failed to start browser %d: %w", i, err)
		}
		slots = append(slots, slot)
	}

	p.slots = slots
	p.started = true
	p.logger.Info().
		Int("browsers", len(slots)).
		Dur("startup_time", time.Since(started)).
		Msg("Browser pool started")
	return nil
}

func (p *BrowserPool) createSlot(ctx context.Context, index int) (*poolSlot, error) {
	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", p.config.Headless),
		chromedp.Flag("no-sandbox", p.config.NoSandbox),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(p.config.UserAgent),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	testCtx, cancelTest := context.WithTimeout(browserCtx, p.config.StartupTimeout)
	defer cancelTest()
	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank")); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("browser failed startup test: %w", err)
	}

	pages := make(chan struct{}, p.config.PagesPerBrowser)
	for i := 0; i < p.config.PagesPerBrowser; i++ {
		pages <- struct{}{}
	}

	p.logger.Debug().Int("browser_index", index).Msg("Browser instance ready")
	return &poolSlot{
		browser:     browserCtx,
		cancelCtx:   cancelBrowser,
		cancelAlloc: cancelAlloc,
		pages:       pages,
	}, nil
}

// Acquire reserves one page slot, assigned round-robin from urlIndex.
// Unhealthy slots are skipped; if fewer than half the browsers remain
// healthy the scan cannot meaningfully continue and ErrPoolExhausted is
// returned. The release function must be called exactly once.
func (p *BrowserPool) Acquire(ctx context.Context, urlIndex int) (context.Context, func(), error) {
	if !p.isStarted() {
		return nil, nil, fmt.Errorf("browser pool not started")
	}

	n := len(p.slots)
	if p.Healthy()*2 < n {
		return nil, nil, ErrPoolExhausted
	}

	for probe := 0; probe < n; probe++ {
		slot := p.slots[(urlIndex+probe)%n]
		if slot.unhealthy.Load() {
			continue
		}
		select {
		case <-slot.pages:
			return slot.browser, func() {
				slot.pages <- struct{}{}
			}, nil
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		default:
			// Slot busy; probe the next browser.
		}
	}

	// Every healthy slot was saturated; block on the assigned one.
	slot := p.slots[urlIndex%n]
	if slot.unhealthy.Load() {
		slot = p.firstHealthy()
		if slot == nil {
			return nil, nil, ErrPoolExhausted
		}
	}
	select {
	case <-slot.pages:
		return slot.browser, func() {
			slot.pages <- struct{}{}
		}, nil
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
}

func (p *BrowserPool) firstHealthy() *poolSlot {
	for _, slot := range p.slots {
		if !slot.unhealthy.Load() {
			return slot
		}
	}
	return nil
}

// MarkUnhealthy removes the browser serving browserCtx from rotation.
func (p *BrowserPool) MarkUnhealthy(browserCtx context.Context) {
	for i, slot := range p.slots {
		if slot.browser == browserCtx {
			if slot.unhealthy.CompareAndSwap(false, true) {
				p.logger.Warn().Int("browser_index", i).Msg("Browser marked unhealthy")
			}
			return
		}
	}
}

// Healthy returns the number of browsers still in rotation.
func (p *BrowserPool) Healthy() int {
	healthy := 0
	for _, slot := range p.slots {
		if !slot.unhealthy.Load() {
			healthy++
		}
	}
	return healthy
}

// Size returns P.
func (p *BrowserPool) Size() int {
	return p.config.Browsers
}

// EffectiveConcurrency returns P x K.
func (p *BrowserPool) EffectiveConcurrency() int {
	return p.config.Browsers * p.config.PagesPerBrowser
}

func (p *BrowserPool) isStarted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started
}

// Stop closes every browser. Idempotent.
func (p *BrowserPool) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}
	for _, slot := range p.slots {
		slot.close()
	}
	p.slots = nil
	p.started = false
	p.logger.Info().Msg("Browser pool stopped")
}

func (s *poolSlot) close() {
	if s.cancelCtx != nil {
		s.cancelCtx()
	}
	if s.cancelAlloc != nil {
		s.cancelAlloc()
	}
}
