package classifier

import (
	"math"
	"strings"
	"time"

	"github.com/ternarybob/consentry/internal/models"
)

// featureVector is the fixed-order numeric input to the scoring model.
type featureVector struct {
	NameLength    float64 // len(name)/16, capped at 1
	Underscore    float64 // 1 if the name starts with '_'
	NameEntropy   float64 // Shannon entropy of the name / 4, capped at 1
	VendorPrefix  float64 // 1 if the name carries a known tracker prefix
	ThirdParty    float64 // 1 if cookie domain differs from the scan target
	Session       float64 // 1 for session cookies
	DurationYears float64 // lifetime in days / 365, capped at 1
	HTTPOnly      float64
	Secure        float64
	SameSiteNone  float64
	Size          float64 // value byte length / 64, capped at 1
}

// trackerPrefixes are name prefixes characteristic of tracking scripts.
var trackerPrefixes = []string{
	"_ga", "_gid", "_fb", "_hj", "_mp", "_pk", "amp_", "ajs_", "_uet", "_gcl", "_tt",
}

func extractFeatures(cookie models.AggregatedCookie, scanDomain string, now time.Time) featureVector {
	f := featureVector{
		NameLength:  capUnit(float64(len(cookie.Name)) / 16),
		NameEntropy: capUnit(shannonEntropy(cookie.Name) / 4),
		Size:        capUnit(float64(cookie.Size) / 64),
	}
	if strings.HasPrefix(cookie.Name, "_") {
		f.Underscore = 1
	}
	lower := strings.ToLower(cookie.Name)
	for _, prefix := range trackerPrefixes {
		if strings.HasPrefix(lower, prefix) {
			f.VendorPrefix = 1
			break
		}
	}
	if IsThirdParty(cookie.Domain, scanDomain) {
		f.ThirdParty = 1
	}
	if cookie.Expires <= 0 {
		f.Session = 1
	} else if expires := time.Unix(cookie.Expires, 0); expires.After(now) {
		days := expires.Sub(now).Hours() / 24
		f.DurationYears = capUnit(days / 365)
	}
	if cookie.HTTPOnly {
		f.HTTPOnly = 1
	}
	if cookie.Secure {
		f.Secure = 1
	}
	if cookie.SameSite == models.SameSiteNone {
		f.SameSiteNone = 1
	}
	return f
}

func capUnit(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}

// shannonEntropy returns the per-character Shannon entropy in bits.
func shannonEntropy(s string) float64 {
	if s == "" {
		return 0
	}
	counts := make(map[rune]int)
	total := 0
	for _, r := range s {
		counts[r]++
		total++
	}
	entropy := 0.0
	for _, count := range counts {
		p := float64(count) / float64(total)
		entropy -= p * math.Log2(p)
	}
	return entropy
}
