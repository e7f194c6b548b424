package models

import (
	"time"
)

// Checkpoint is the enterprise scanner's resumable state, written as
// canonical JSON (field order below is the on-disk key order) to
// <checkpointRoot>/<scanId>.json with atomic replace.
// Invariant: CompletedURLs and PendingURLs are disjoint and together
// never exceed TotalURLs.
type Checkpoint struct {
	ScanID        string             `json:"scanId"`
	Domain        string             `json:"domain"`
	TotalURLs     int                `json:"totalUrls"`
	CompletedURLs []string           `json:"completedUrls"`
	PendingURLs   []string           `json:"pendingUrls"`
	Cookies       []AggregatedCookie `json:"cookies"`
	Timestamp     time.Time          `json:"timestamp"`
	Metrics       *EnterpriseMetrics `json:"metrics,omitempty"`
}
