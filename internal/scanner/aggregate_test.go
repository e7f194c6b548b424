package scanner

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/consentry/internal/models"
)

func pageWithCookies(url string, index int, cookies ...models.CookieObservation) models.PageResult {
	return models.PageResult{
		URL:     url,
		Index:   index,
		Success: true,
		Cookies: cookies,
	}
}

func TestAggregatorCanonicalIsLowestIndex(t *testing.T) {
	// The same cookie appears on pages 0 and 2 with different paths; the
	// page-0 observation must provide the canonical properties even when
	// page 2 completes first.
	first := models.CookieObservation{Name: "sid", Domain: ".example.com", Path: "/", Value: "a"}
	later := models.CookieObservation{Name: "sid", Domain: ".example.com", Path: "/about", Value: "b"}

	agg := NewAggregator()
	agg.Offer(pageWithCookies("https://example.com/about", 2, later))
	agg.Offer(pageWithCookies("https://example.com/", 0, first))
	agg.Offer(pageWithCookies("https://example.com/contact", 1))

	cookies := agg.Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "/", cookies[0].Path, "canonical path comes from the lowest index")
	assert.Equal(t, []string{"https://example.com/", "https://example.com/about"}, cookies[0].FoundOnPages)
}

func TestAggregatorDeterministicUnderAnyOrder(t *testing.T) {
	results := make([]models.PageResult, 20)
	for i := range results {
		url := fmt.Sprintf("https://example.com/p%02d", i)
		results[i] = pageWithCookies(url, i,
			models.CookieObservation{Name: "shared", Domain: ".example.com", Path: fmt.Sprintf("/p%02d", i)},
			models.CookieObservation{Name: fmt.Sprintf("c%02d", i), Domain: ".example.com"},
		)
	}

	reference := NewAggregator()
	for _, r := range results {
		reference.Offer(r)
	}
	want := reference.Cookies()

	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 10; trial++ {
		shuffled := make([]models.PageResult, len(results))
		copy(shuffled, results)
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})

		agg := NewAggregator()
		for _, r := range shuffled {
			agg.Offer(r)
		}
		require.Equal(t, want, agg.Cookies(), "trial %d: aggregation differed under shuffled completion order", trial)
	}
}

func TestAggregatorUniqueIdentity(t *testing.T) {
	agg := NewAggregator()
	for i := 0; i < 5; i++ {
		agg.Offer(pageWithCookies(fmt.Sprintf("https://example.com/%d", i), i,
			models.CookieObservation{Name: "sid", Domain: ".example.com"},
			models.CookieObservation{Name: "sid", Domain: ".other.com"},
		))
	}

	cookies := agg.Cookies()
	seen := make(map[cookieKey]bool)
	for _, c := range cookies {
		key := cookieKey{Name: c.Name, Domain: c.Domain}
		require.False(t, seen[key], "duplicate identity %+v in aggregated cookies", key)
		seen[key] = true
	}
	assert.Len(t, cookies, 2)
}

func TestAggregatorFailedPagesDisjoint(t *testing.T) {
	agg := NewAggregator()
	agg.Offer(pageWithCookies("https://example.com/", 0))
	agg.Offer(models.PageResult{URL: "https://example.com/broken", Index: 1, Success: false, Error: "navigation timeout"})

	visited := agg.PagesVisited()
	failed := agg.PagesFailed()
	require.Len(t, visited, 1)
	require.Len(t, failed, 1)
	for _, f := range failed {
		assert.NotContains(t, visited, f.URL, "url in both visited and failed")
	}
}

func TestAggregatorStorageLastWriterWins(t *testing.T) {
	agg := NewAggregator()
	agg.Offer(models.PageResult{
		URL: "https://example.com/", Index: 0, Success: true,
		LocalStorage: map[string]string{"k": "first", "only": "a"},
	})
	agg.Offer(models.PageResult{
		URL: "https://example.com/b", Index: 1, Success: true,
		LocalStorage: map[string]string{"k": "second"},
	})

	storage := agg.Storage()
	assert.Equal(t, "second", storage.LocalStorage["k"], "last writer wins per key")
	assert.Equal(t, "a", storage.LocalStorage["only"])
}

func TestAggregatorFlushAppliesBufferedGaps(t *testing.T) {
	agg := NewAggregator()
	// Index 0 never arrives (cancelled before completion).
	agg.Offer(pageWithCookies("https://example.com/b", 1,
		models.CookieObservation{Name: "c1", Domain: ".example.com"}))
	agg.Offer(pageWithCookies("https://example.com/c", 2,
		models.CookieObservation{Name: "c2", Domain: ".example.com"}))

	require.Zero(t, agg.UniqueCookies(), "cookies applied before flush despite gap at index 0")
	agg.Flush()
	assert.Equal(t, 2, agg.UniqueCookies())
	assert.Len(t, agg.PagesVisited(), 2)
}

func TestAggregatorSeedFromCheckpoint(t *testing.T) {
	seedCookies := []models.AggregatedCookie{
		{Name: "sid", Domain: ".example.com", Path: "/", FoundOnPages: []string{"https://example.com/"}},
	}
	completed := []string{"https://example.com/", "https://example.com/a"}

	agg := NewAggregator()
	agg.Seed(seedCookies, completed)

	// Next result arrives at the post-checkpoint index.
	agg.Offer(pageWithCookies("https://example.com/b", 2,
		models.CookieObservation{Name: "sid", Domain: ".example.com", Path: "/ignored"}))

	cookies := agg.Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "/", cookies[0].Path, "seeded canonical overwritten")
	assert.Equal(t, []string{"https://example.com/", "https://example.com/b"}, cookies[0].FoundOnPages)
	assert.Len(t, agg.PagesVisited(), 3, "2 seeded + 1 new")
}
