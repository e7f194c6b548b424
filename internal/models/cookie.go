package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// SameSite is the cookie SameSite attribute as reported by the browser
type SameSite string

const (
	SameSiteStrict      SameSite = "Strict"
	SameSiteLax         SameSite = "Lax"
	SameSiteNone        SameSite = "None"
	SameSiteUnspecified SameSite = "Unspecified"
)

// Category is the consent-compliance category assigned to a cookie
type Category string

const (
	CategoryNecessary   Category = "Necessary"
	CategoryFunctional  Category = "Functional"
	CategoryAnalytics   Category = "Analytics"
	CategoryAdvertising Category = "Advertising"
	CategoryUnknown     Category = "Unknown"
)

// ClassificationSource identifies which classifier layer produced a category
type ClassificationSource string

const (
	SourceOverride   ClassificationSource = "Override"
	SourceRule       ClassificationSource = "Rule"
	SourceVendorList ClassificationSource = "VendorList"
	SourceML         ClassificationSource = "ML"
	SourceFallback   ClassificationSource = "Fallback"
)

// DurationBucket groups cookies by lifetime for classification features
type DurationBucket string

const (
	DurationSession DurationBucket = "session"
	DurationShort   DurationBucket = "short"   // < 30 days
	DurationMedium  DurationBucket = "medium"  // 30-365 days
	DurationLong    DurationBucket = "long"    // > 365 days
	DurationExpired DurationBucket = "expired" // expires <= now, retained but flagged
)

// CookieObservation is a single cookie as captured on one page.
// (Name, Domain, Path) identifies a cookie within a single page.
// The raw Value stays in memory only; persistence uses ValueHash().
type CookieObservation struct {
	Name     string   `json:"name"`
	Value    string   `json:"-"`
	Domain   string   `json:"domain"`
	Path     string   `json:"path"`
	Expires  int64    `json:"expires"` // Unix seconds; 0 = session cookie
	HTTPOnly bool     `json:"http_only"`
	Secure   bool     `json:"secure"`
	SameSite SameSite `json:"same_site"`
	Size     int      `json:"size"` // byte length of the value
}

// IsSession reports whether the cookie is a session cookie (no expiry)
func (c CookieObservation) IsSession() bool {
	return c.Expires <= 0
}

// ValueHash returns the sha256 hex digest of the cookie value. Raw values
// never leave process memory.
func (c CookieObservation) ValueHash() string {
	sum := sha256.Sum256([]byte(c.Value))
	return hex.EncodeToString(sum[:])
}

// DurationBucketAt buckets the cookie lifetime relative to now
func (c CookieObservation) DurationBucketAt(now time.Time) DurationBucket {
	if c.IsSession() {
		return DurationSession
	}
	expires := time.Unix(c.Expires, 0)
	if !expires.After(now) {
		return DurationExpired
	}
	days := expires.Sub(now).Hours() / 24
	switch {
	case days < 30:
		return DurationShort
	case days <= 365:
		return DurationMedium
	default:
		return DurationLong
	}
}

// AggregatedCookie is the canonical record for one (Name, Domain) pair
// across all pages of a scan. FoundOnPages preserves insertion order and
// is deduplicated.
type AggregatedCookie struct {
	Name         string   `json:"name"`
	Domain       string   `json:"domain"`
	Path         string   `json:"path"`
	Expires      int64    `json:"expires"`
	HTTPOnly     bool     `json:"http_only"`
	Secure       bool     `json:"secure"`
	SameSite     SameSite `json:"same_site"`
	Size         int      `json:"size"`
	ValueHash    string   `json:"value_hash"`
	FoundOnPages []string `json:"found_on_pages"`
}

// ClassifiedCookie is an AggregatedCookie with its classification outcome.
// RequiresReview is set when Confidence < 0.50, when Category is Unknown,
// or when a model classification scored below its acceptance threshold.
type ClassifiedCookie struct {
	AggregatedCookie
	Category       Category             `json:"category"`
	Confidence     float64              `json:"confidence"`
	Source         ClassificationSource `json:"source"`
	Evidence       []string             `json:"evidence"`
	RequiresReview bool                 `json:"requires_review"`
}
