package classifier

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/consentry/internal/common"
	"github.com/ternarybob/consentry/internal/models"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestService() *Service {
	svc := NewService(NewOverrideStore())
	svc.now = func() time.Time { return testNow }
	return svc
}

func expiresIn(days int) int64 {
	return testNow.Add(time.Duration(days) * 24 * time.Hour).Unix()
}

func evidenceContains(evidence []string, substr string) bool {
	for _, line := range evidence {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}

func TestClassifySessionAuthCookie(t *testing.T) {
	svc := newTestService()

	cookie := models.AggregatedCookie{
		Name:     "sid",
		Domain:   "shop.example.com",
		Path:     "/",
		Expires:  0,
		HTTPOnly: true,
		Secure:   true,
		SameSite: models.SameSiteStrict,
	}

	got := svc.Classify(cookie, "cfg-1", "https://shop.example.com")

	assert.Equal(t, models.CategoryNecessary, got.Category)
	assert.Equal(t, models.SourceRule, got.Source)
	assert.Equal(t, ruleConfidence, got.Confidence)
	assert.False(t, got.RequiresReview)
	assert.True(t, evidenceContains(got.Evidence, "session+HttpOnly+Strict-pattern"),
		"evidence missing session+HttpOnly+Strict-pattern line: %v", got.Evidence)
}

func TestClassifyVendorListCookie(t *testing.T) {
	svc := newTestService()

	tests := []struct {
		name         string
		cookieName   string
		cookieDomain string
		wantCategory models.Category
		wantVendor   string
	}{
		{"google analytics", "_ga", "example.com", models.CategoryAnalytics, "Google Analytics"},
		{"ga4 measurement", "_ga_ABC123", "example.com", models.CategoryAnalytics, "Google Analytics 4"},
		{"doubleclick", "IDE", ".doubleclick.net", models.CategoryAdvertising, "DoubleClick"},
		{"meta pixel", "_fbp", "example.com", models.CategoryAdvertising, "Meta Pixel"},
		{"cloudflare bot management", "__cf_bm", "example.com", models.CategoryNecessary, "Cloudflare"},
		{"onetrust consent", "OptanonConsent", "example.com", models.CategoryFunctional, "OneTrust"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cookie := models.AggregatedCookie{
				Name:    tt.cookieName,
				Domain:  tt.cookieDomain,
				Expires: expiresIn(365),
			}
			got := svc.Classify(cookie, "cfg-1", "https://example.com")

			assert.Equal(t, tt.wantCategory, got.Category)
			assert.Equal(t, models.SourceVendorList, got.Source)
			assert.Equal(t, 1.0, got.Confidence)
			assert.True(t, evidenceContains(got.Evidence, tt.wantVendor),
				"evidence missing vendor %q: %v", tt.wantVendor, got.Evidence)
		})
	}
}

func TestClassifyModelHighConfidence(t *testing.T) {
	svc := newTestService()

	// Opaque third-party cookie: long-lived, SameSite=None, no vendor or
	// rule match. The model should land on Advertising above the
	// acceptance threshold.
	cookie := models.AggregatedCookie{
		Name:     "xn_42",
		Domain:   "cdn.trkr.io",
		Path:     "/",
		Expires:  expiresIn(180),
		Secure:   true,
		SameSite: models.SameSiteNone,
		Size:     32,
	}

	got := svc.Classify(cookie, "cfg-1", "https://shop.example.com")

	assert.Equal(t, models.CategoryAdvertising, got.Category)
	assert.Equal(t, models.SourceML, got.Source)
	assert.GreaterOrEqual(t, got.Confidence, mlAcceptThreshold)
	assert.False(t, got.RequiresReview)
	assert.True(t, evidenceContains(got.Evidence, "third-party"),
		"evidence missing third-party signal: %v", got.Evidence)
}

func TestClassifyModelMidBandRequiresReview(t *testing.T) {
	svc := newTestService()

	// Bland first-party persistent cookie: no layer above the model
	// matches, and the model scores in the review band.
	cookie := models.AggregatedCookie{
		Name:     "aaab",
		Domain:   "shop.example.com",
		Path:     "/",
		Expires:  expiresIn(10),
		SameSite: models.SameSiteLax,
		Size:     4,
	}

	got := svc.Classify(cookie, "cfg-1", "https://shop.example.com")

	require.Equal(t, models.SourceML, got.Source)
	assert.GreaterOrEqual(t, got.Confidence, mlFloorThreshold)
	assert.Less(t, got.Confidence, mlAcceptThreshold)
	assert.True(t, got.RequiresReview, "mid-band model score must flag review")
}

func TestClassifyOverridePrecedence(t *testing.T) {
	overrides := NewOverrideStore()
	overrides.Put(Override{
		DomainConfigID: "cfg-1",
		CookieName:     "_ga",
		Category:       models.CategoryNecessary,
		Note:           "legal signed off on analytics as strictly necessary",
	})
	svc := NewService(overrides)
	svc.now = func() time.Time { return testNow }

	cookie := models.AggregatedCookie{Name: "_ga", Domain: "example.com", Expires: expiresIn(365)}
	got := svc.Classify(cookie, "cfg-1", "https://example.com")

	assert.Equal(t, models.SourceOverride, got.Source)
	assert.Equal(t, models.CategoryNecessary, got.Category)
	assert.Equal(t, 1.0, got.Confidence)

	// A different domain config falls through to the vendor list.
	other := svc.Classify(cookie, "cfg-2", "https://example.com")
	assert.Equal(t, models.SourceVendorList, other.Source)
}

func TestOverrideStoreExactDomainWins(t *testing.T) {
	store := NewOverrideStore()
	store.Put(Override{DomainConfigID: "cfg-1", CookieName: "tok", Category: models.CategoryFunctional})
	store.Put(Override{DomainConfigID: "cfg-1", CookieName: "tok", Domain: "api.example.com", Category: models.CategoryNecessary})

	got := store.Lookup("cfg-1", "tok", "api.example.com")
	require.NotNil(t, got)
	assert.Equal(t, models.CategoryNecessary, got.Category, "exact-domain entry wins")

	fallthru := store.Lookup("cfg-1", "TOK", "other.example.com")
	require.NotNil(t, fallthru)
	assert.Equal(t, models.CategoryFunctional, fallthru.Category, "name-only entry used elsewhere")
}

func TestClassifyNeverFails(t *testing.T) {
	// A nil override store panics on lookup; Classify must contain it.
	svc := &Service{logger: common.GetLogger(), now: time.Now}

	got := svc.Classify(models.AggregatedCookie{Name: "x"}, "cfg-1", "https://example.com")

	assert.Equal(t, models.CategoryUnknown, got.Category)
	assert.Equal(t, models.SourceFallback, got.Source)
	assert.Zero(t, got.Confidence)
	assert.True(t, got.RequiresReview)
	assert.NotEmpty(t, got.Evidence)
}

func TestClassifyIdempotent(t *testing.T) {
	svc := newTestService()
	cookie := models.AggregatedCookie{
		Name:     "xn_42",
		Domain:   "cdn.trkr.io",
		Expires:  expiresIn(180),
		Secure:   true,
		SameSite: models.SameSiteNone,
		Size:     32,
	}

	first := svc.Classify(cookie, "cfg-1", "https://shop.example.com")
	second := svc.Classify(cookie, "cfg-1", "https://shop.example.com")

	assert.Equal(t, first, second, "classification not idempotent")
}

func TestClassifyInvariantsHold(t *testing.T) {
	svc := newTestService()

	cookies := []models.AggregatedCookie{
		{Name: "sid", Domain: "example.com", HTTPOnly: true, SameSite: models.SameSiteStrict},
		{Name: "_ga", Domain: "example.com", Expires: expiresIn(400)},
		{Name: "xn_42", Domain: "cdn.trkr.io", Expires: expiresIn(180), Secure: true, SameSite: models.SameSiteNone, Size: 32},
		{Name: "aaab", Domain: "example.com", Expires: expiresIn(10), Size: 4},
		{Name: "lang", Domain: "example.com", Expires: expiresIn(30)},
		{Name: "utm_source", Domain: "example.com", Expires: expiresIn(90)},
	}

	for _, cookie := range cookies {
		got := svc.Classify(cookie, "cfg-1", "https://example.com")

		assert.NotEmpty(t, got.Evidence, "%s: evidence is empty", cookie.Name)
		assert.GreaterOrEqual(t, got.Confidence, 0.0, cookie.Name)
		assert.LessOrEqual(t, got.Confidence, 1.0, cookie.Name)

		wantReview := got.Confidence < mlFloorThreshold ||
			got.Category == models.CategoryUnknown ||
			(got.Source == models.SourceML && got.Confidence < mlAcceptThreshold)
		assert.Equal(t, wantReview, got.RequiresReview,
			"%s: requiresReview (confidence %v, source %s)", cookie.Name, got.Confidence, got.Source)
	}
}

func TestClassifyExpiredCookieFlagged(t *testing.T) {
	svc := newTestService()

	cookie := models.AggregatedCookie{
		Name:    "_ga",
		Domain:  "example.com",
		Expires: testNow.Add(-48 * time.Hour).Unix(),
	}
	got := svc.Classify(cookie, "cfg-1", "https://example.com")

	assert.True(t, evidenceContains(got.Evidence, "expired"), "evidence missing expired note: %v", got.Evidence)
	assert.Equal(t, models.CategoryAnalytics, got.Category, "expired cookie still classifies")
}

func TestMatchRulesKnownDomains(t *testing.T) {
	tests := []struct {
		name   string
		cookie models.AggregatedCookie
		want   models.Category
	}{
		{"analytics domain", models.AggregatedCookie{Name: "zzz9", Domain: "static.hotjar.com"}, models.CategoryAnalytics},
		{"advertising domain", models.AggregatedCookie{Name: "zzz9", Domain: "ib.adnxs.com"}, models.CategoryAdvertising},
		{"cdn domain", models.AggregatedCookie{Name: "zzz9", Domain: "d1.cloudfront.net"}, models.CategoryNecessary},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Expires set so the cookie is persistent and the session
			// heuristic cannot interfere.
			tt.cookie.Expires = expiresIn(30)
			match := matchRules(tt.cookie)
			require.NotNil(t, match)
			assert.Equal(t, tt.want, match.Category)
		})
	}
}
