package interfaces

import (
	"context"

	"github.com/ternarybob/consentry/internal/models"
)

// PageVisitor drives one browser page through navigation, consent click,
// settle wait and extraction. browser is a chromedp browser context (or any
// context for fakes); a new tab is opened and closed inside Visit on every
// exit path. opts carries the per-scan settings from the request; zero
// fields fall back to the visitor's own configuration.
type PageVisitor interface {
	Visit(ctx context.Context, browser context.Context, url string, index int, opts models.VisitOptions) models.PageResult
}

// ProgressSink receives best-effort progress updates during a scan. A slow
// sink must never block scanning: scanners invoke these methods on a
// dedicated goroutine or drop updates when the sink cannot keep up.
type ProgressSink interface {
	OnProgress(progress models.ScanProgress)
	OnMetrics(metrics models.EnterpriseMetrics)
}

// PageScanner is the scan primitive the schedule coordinator dispatches to
type PageScanner interface {
	Scan(ctx context.Context, req models.ScanRequest, sink ProgressSink) (*models.ScanResult, error)
}
