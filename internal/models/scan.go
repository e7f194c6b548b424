package models

import (
	"time"
)

// ScanMode selects the scan strategy
type ScanMode string

const (
	ScanModeQuick      ScanMode = "quick"
	ScanModeDeep       ScanMode = "deep"
	ScanModeEnterprise ScanMode = "enterprise"
)

// ScanRequest is the typed input every scan starts from. Callers build it
// programmatically; numeric bounds are rejected (not clamped) during
// validation.
type ScanRequest struct {
	Domain            string   `json:"domain" validate:"required"`
	Mode              ScanMode `json:"mode" validate:"required,oneof=quick deep enterprise"`
	MaxPages          int      `json:"max_pages,omitempty" validate:"omitempty,min=1,max=20000"`
	Concurrency       int      `json:"concurrency,omitempty" validate:"omitempty,min=1,max=20"`
	BrowserPoolSize   int      `json:"browser_pool_size,omitempty" validate:"omitempty,min=1,max=10"`
	PagesPerBrowser   int      `json:"pages_per_browser,omitempty" validate:"omitempty,min=1,max=50"`
	ChunkSize         int      `json:"chunk_size,omitempty" validate:"omitempty,min=100,max=2000"`
	CustomPages       []string `json:"custom_pages,omitempty"`
	TimeoutMs         int      `json:"timeout_ms,omitempty" validate:"omitempty,min=5000,max=120000"`
	AcceptSelector    string   `json:"accept_selector,omitempty"`
	UserAgent         string   `json:"user_agent,omitempty"`
	EnablePersistence bool     `json:"enable_persistence,omitempty"`
	ResumeScanID      string   `json:"resume_scan_id,omitempty"`
	DomainConfigID    string   `json:"domain_config_id,omitempty"` // keys classifier overrides
}

// VisitOptions carries the per-scan visit settings derived from a
// ScanRequest. Zero values fall back to the visitor's configured defaults.
type VisitOptions struct {
	Timeout         time.Duration
	AcceptSelectors []string
	UserAgent       string
}

// PageResult is the outcome of visiting one URL. Created by the page
// visitor, consumed by the aggregator, then discarded.
type PageResult struct {
	URL             string              `json:"url"`
	Index           int                 `json:"index"` // position in the input URL list
	Success         bool                `json:"success"`
	Cookies         []CookieObservation `json:"cookies"`
	LocalStorage    map[string]string   `json:"local_storage,omitempty"`
	SessionStorage  map[string]string   `json:"session_storage,omitempty"`
	DurationSeconds float64             `json:"duration_seconds"`
	Retries         int                 `json:"retries"`
	Error           string              `json:"error,omitempty"` // present iff Success == false
}

// PageFailure records one page that exhausted its retries
type PageFailure struct {
	URL   string `json:"url"`
	Error string `json:"error"`
}

// StorageSnapshot holds merged localStorage/sessionStorage observations.
// Merge policy is last-writer-wins per key; storage is reported as
// observed, not canonical.
type StorageSnapshot struct {
	LocalStorage   map[string]string `json:"local_storage"`
	SessionStorage map[string]string `json:"session_storage"`
}

// ScanProgress is published after every batch of the parallel scanner.
// Delivery is best-effort; a slow sink must not block scanning.
type ScanProgress struct {
	ScanID             string        `json:"scan_id"`
	TotalPages         int           `json:"total_pages"`
	ScannedPages       int           `json:"scanned_pages"`
	CurrentBatch       int           `json:"current_batch"`
	TotalBatches       int           `json:"total_batches"`
	CookiesFound       int           `json:"cookies_found"`
	ElapsedTime        time.Duration `json:"elapsed_time"`
	EstimatedRemaining time.Duration `json:"estimated_remaining"`
}

// EnterpriseMetrics is the live per-chunk metric set of the enterprise
// scanner, observable through the progress sink.
type EnterpriseMetrics struct {
	TotalPages         int           `json:"total_pages"`
	ScannedPages       int           `json:"scanned_pages"`
	SuccessfulPages    int           `json:"successful_pages"`
	FailedPages        int           `json:"failed_pages"`
	CookiesFound       int           `json:"cookies_found"`
	Elapsed            time.Duration `json:"elapsed"`
	PagesPerSecond     float64       `json:"pages_per_second"`
	EstimatedRemaining time.Duration `json:"estimated_remaining"`
	ActiveBrowsers     int           `json:"active_browsers"`
	CurrentConcurrency int           `json:"current_concurrency"`
	ErrorsCount        int           `json:"errors_count"`
}

// ScanResult aggregates everything observed during one scan. Immutable
// once the scan reaches a terminal state.
type ScanResult struct {
	ScanID            string             `json:"scan_id"`
	Domain            string             `json:"domain"`
	ScanMode          ScanMode           `json:"scan_mode"`
	TotalPagesScanned int                `json:"total_pages_scanned"`
	FailedPagesCount  int                `json:"failed_pages_count"`
	UniqueCookies     int                `json:"unique_cookies"`
	Cookies           []ClassifiedCookie `json:"cookies"`
	Storages          StorageSnapshot    `json:"storages"`
	PagesVisited      []string           `json:"pages_visited"`
	PagesFailed       []PageFailure      `json:"pages_failed"`
	Duration          time.Duration      `json:"duration"`
	PagesPerSecond    float64            `json:"pages_per_second"`
	Cancelled         bool               `json:"cancelled,omitempty"`
	Metrics           *EnterpriseMetrics `json:"metrics,omitempty"`
	StartedAt         time.Time          `json:"started_at"`
	CompletedAt       time.Time          `json:"completed_at"`
}
