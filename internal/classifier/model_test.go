package classifier

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/consentry/internal/models"
)

func TestExtractFeatures(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	cookie := models.AggregatedCookie{
		Name:     "_ga",
		Domain:   ".tracker.example",
		Expires:  now.Add(2 * 365 * 24 * time.Hour).Unix(),
		Secure:   true,
		SameSite: models.SameSiteNone,
		Size:     128,
	}

	f := extractFeatures(cookie, "https://shop.example.com", now)

	assert.Equal(t, 1.0, f.Underscore)
	assert.Equal(t, 1.0, f.VendorPrefix, "_ga carries a tracker prefix")
	assert.Equal(t, 1.0, f.ThirdParty)
	assert.Equal(t, 0.0, f.Session)
	assert.Equal(t, 1.0, f.DurationYears, "two-year lifetime caps at 1")
	assert.Equal(t, 1.0, f.Size, "128-byte value caps at 1")
	assert.Equal(t, 1.0, f.Secure)
	assert.Equal(t, 1.0, f.SameSiteNone)
	assert.Equal(t, 0.0, f.HTTPOnly)
}

func TestExtractFeaturesSessionCookie(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	f := extractFeatures(models.AggregatedCookie{
		Name:     "sid",
		Domain:   ".example.com",
		HTTPOnly: true,
	}, "https://example.com", now)

	assert.Equal(t, 1.0, f.Session)
	assert.Equal(t, 0.0, f.DurationYears)
	assert.Equal(t, 0.0, f.ThirdParty)
	assert.Equal(t, 0.0, f.Underscore)
	assert.Equal(t, 1.0, f.HTTPOnly)
}

func TestShannonEntropy(t *testing.T) {
	assert.Zero(t, shannonEntropy(""))
	assert.Zero(t, shannonEntropy("aaaa"), "single symbol carries no information")
	assert.InDelta(t, 1.0, shannonEntropy("abab"), 1e-9)
	assert.Greater(t, shannonEntropy("x9$kQ2mz"), shannonEntropy("aabbaabb"))
}

func TestPredictDeterministic(t *testing.T) {
	f := extractFeatures(models.AggregatedCookie{
		Name:     "xn_42",
		Domain:   ".cdn.trkr.io",
		Expires:  time.Now().Add(180 * 24 * time.Hour).Unix(),
		Secure:   true,
		SameSite: models.SameSiteNone,
		Size:     32,
	}, "https://shop.example.com", time.Now())

	first := predict(f)
	require.NotNil(t, first)
	for i := 0; i < 100; i++ {
		p := predict(f)
		require.NotNil(t, p)
		assert.Equal(t, first.Category, p.Category)
		assert.Equal(t, first.Confidence, p.Confidence)
	}
}

func TestPredictThirdPartyTrackerScoresAdvertising(t *testing.T) {
	f := featureVector{
		ThirdParty:    1,
		SameSiteNone:  1,
		DurationYears: 0.5,
		Secure:        1,
		Size:          0.5,
	}
	p := predict(f)
	require.NotNil(t, p)
	assert.Equal(t, models.CategoryAdvertising, p.Category)
	assert.GreaterOrEqual(t, p.Confidence, mlAcceptThreshold)
	require.NotEmpty(t, p.Evidence)
	assert.Contains(t, p.Evidence[0], "third-party")
}

func TestPredictSessionHTTPOnlyScoresNecessary(t *testing.T) {
	f := featureVector{Session: 1, HTTPOnly: 1, Secure: 1}
	p := predict(f)
	require.NotNil(t, p)
	assert.Equal(t, models.CategoryNecessary, p.Category)
	assert.GreaterOrEqual(t, p.Confidence, mlAcceptThreshold)
}

func TestSigmoidBounds(t *testing.T) {
	assert.InDelta(t, 0.5, sigmoid(0), 1e-9)
	for _, z := range []float64{-50, -5, -0.5, 0.5, 5, 50} {
		s := sigmoid(z)
		assert.Greater(t, s, 0.0)
		assert.Less(t, s, 1.0)
	}
	assert.Greater(t, sigmoid(1), sigmoid(-1))
}
