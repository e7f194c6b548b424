package classifier

import (
	"sync"

	"github.com/ternarybob/consentry/internal/models"
)

// Override is a manual per-domain-config classification that takes absolute
// precedence over every other layer. Domain "" matches the cookie name on
// any domain.
type Override struct {
	DomainConfigID string
	CookieName     string
	Domain         string
	Category       models.Category
	Note           string
}

// OverrideStore holds manual overrides keyed by domain config. Lookups
// prefer an exact (name, domain) match over a name-only match.
type OverrideStore struct {
	mu      sync.RWMutex
	entries map[string][]Override // DomainConfigID -> overrides
}

func NewOverrideStore() *OverrideStore {
	return &OverrideStore{entries: make(map[string][]Override)}
}

// Put registers an override, replacing an existing entry with the same
// (name, domain) pair.
func (s *OverrideStore) Put(override Override) {
	s.mu.Lock()
	defer s.mu.Unlock()

	override.CookieName = normalizedName(override.CookieName)
	list := s.entries[override.DomainConfigID]
	for i, existing := range list {
		if existing.CookieName == override.CookieName && existing.Domain == override.Domain {
			list[i] = override
			return
		}
	}
	s.entries[override.DomainConfigID] = append(list, override)
}

// Lookup returns the override for (name, domain) under domainConfigID, or
// nil. An exact domain match wins over a domain-agnostic entry.
func (s *OverrideStore) Lookup(domainConfigID, name, domain string) *Override {
	s.mu.RLock()
	defer s.mu.RUnlock()

	name = normalizedName(name)
	var nameOnly *Override
	for i := range s.entries[domainConfigID] {
		entry := &s.entries[domainConfigID][i]
		if entry.CookieName != name {
			continue
		}
		if entry.Domain == domain {
			return entry
		}
		if entry.Domain == "" && nameOnly == nil {
			nameOnly = entry
		}
	}
	return nameOnly
}
