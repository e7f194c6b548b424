package scanner

import (
	"sort"

	"github.com/ternarybob/consentry/internal/models"
)

// cookieKey is the aggregation identity of a cookie within one scan.
type cookieKey struct {
	Name   string
	Domain string
}

// Aggregator folds PageResults into the scan-level cookie and storage view.
// It is owned by exactly one goroutine; results are handed to it over a
// channel, never through shared state.
//
// Determinism: the canonical record for a (name, domain) pair is the one
// from the lowest URL index. Offer buffers out-of-order results and applies
// them in index order, so the outcome is independent of completion order.
type Aggregator struct {
	cookies map[cookieKey]*models.AggregatedCookie
	order   []cookieKey

	localStorage   map[string]string
	sessionStorage map[string]string

	pagesVisited []string
	pagesFailed  []models.PageFailure

	nextIndex int
	pending   map[int]models.PageResult
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		cookies:        make(map[cookieKey]*models.AggregatedCookie),
		localStorage:   make(map[string]string),
		sessionStorage: make(map[string]string),
		pending:        make(map[int]models.PageResult),
	}
}

// Seed pre-loads aggregation state from a checkpoint: previously aggregated
// cookies keep their canonical properties, and completed URLs are injected
// as successful stubs so page counters stay correct. The next expected
// index moves past the stubs.
func (a *Aggregator) Seed(cookies []models.AggregatedCookie, completedURLs []string) {
	for i := range cookies {
		c := cookies[i]
		key := cookieKey{Name: c.Name, Domain: c.Domain}
		if _, exists := a.cookies[key]; !exists {
			a.cookies[key] = &c
			a.order = append(a.order, key)
		}
	}
	a.pagesVisited = append(a.pagesVisited, completedURLs...)
	a.nextIndex += len(completedURLs)
}

// Offer hands one completed page to the aggregator. Results may arrive in
// any order; application is strictly by URL index.
func (a *Aggregator) Offer(result models.PageResult) {
	a.pending[result.Index] = result
	for {
		next, ok := a.pending[a.nextIndex]
		if !ok {
			return
		}
		delete(a.pending, a.nextIndex)
		a.apply(next)
		a.nextIndex++
	}
}

// Flush applies any still-buffered results in index order. Needed after a
// cancelled scan, where some indices never arrive and in-order application
// would otherwise stall on the gap.
func (a *Aggregator) Flush() {
	if len(a.pending) == 0 {
		return
	}
	indices := make([]int, 0, len(a.pending))
	for idx := range a.pending {
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	for _, idx := range indices {
		a.apply(a.pending[idx])
	}
	a.pending = make(map[int]models.PageResult)
}

func (a *Aggregator) apply(result models.PageResult) {
	if !result.Success {
		a.pagesFailed = append(a.pagesFailed, models.PageFailure{
			URL:   result.URL,
			Error: result.Error,
		})
		return
	}
	a.pagesVisited = append(a.pagesVisited, result.URL)

	for _, obs := range result.Cookies {
		key := cookieKey{Name: obs.Name, Domain: obs.Domain}
		existing, ok := a.cookies[key]
		if !ok {
			a.cookies[key] = &models.AggregatedCookie{
				Name:         obs.Name,
				Domain:       obs.Domain,
				Path:         obs.Path,
				Expires:      obs.Expires,
				HTTPOnly:     obs.HTTPOnly,
				Secure:       obs.Secure,
				SameSite:     obs.SameSite,
				Size:         obs.Size,
				ValueHash:    obs.ValueHash(),
				FoundOnPages: []string{result.URL},
			}
			a.order = append(a.order, key)
			continue
		}
		if !containsString(existing.FoundOnPages, result.URL) {
			existing.FoundOnPages = append(existing.FoundOnPages, result.URL)
		}
	}

	// Storage merges last-writer-wins per key; reported as observed.
	for k, v := range result.LocalStorage {
		a.localStorage[k] = v
	}
	for k, v := range result.SessionStorage {
		a.sessionStorage[k] = v
	}
}

// Cookies returns the aggregated cookies in first-seen order.
func (a *Aggregator) Cookies() []models.AggregatedCookie {
	out := make([]models.AggregatedCookie, 0, len(a.order))
	for _, key := range a.order {
		out = append(out, *a.cookies[key])
	}
	return out
}

func (a *Aggregator) Storage() models.StorageSnapshot {
	return models.StorageSnapshot{
		LocalStorage:   a.localStorage,
		SessionStorage: a.sessionStorage,
	}
}

func (a *Aggregator) PagesVisited() []string {
	return a.pagesVisited
}

func (a *Aggregator) PagesFailed() []models.PageFailure {
	return a.pagesFailed
}

// UniqueCookies returns the current distinct (name, domain) count.
func (a *Aggregator) UniqueCookies() int {
	return len(a.order)
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
