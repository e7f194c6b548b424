package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistrableDomain(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{"example.com", "example.com"},
		{"www.example.com", "example.com"},
		{"a.b.c.example.com", "example.com"},
		{".example.com", "example.com"},
		{"example.com:8080", "example.com"},
		{"shop.example.co.uk", "example.co.uk"},
		{"example.co.uk", "example.co.uk"},
		{"cdn.site.com.au", "site.com.au"},
		{"localhost", "localhost"},
		{"EXAMPLE.COM", "example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			assert.Equal(t, tt.want, RegistrableDomain(tt.host))
		})
	}
}

func TestIsThirdParty(t *testing.T) {
	tests := []struct {
		name         string
		cookieDomain string
		scanTarget   string
		want         bool
	}{
		{"same registrable domain", ".example.com", "https://www.example.com", false},
		{"subdomain is first-party", "api.example.com", "https://example.com/page", false},
		{"different domain", ".doubleclick.net", "https://example.com", true},
		{"bare host target", "tracker.io", "example.com", true},
		{"uk suffix same site", ".shop.example.co.uk", "https://www.example.co.uk", false},
		{"uk suffix different site", ".other.co.uk", "https://example.co.uk", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsThirdParty(tt.cookieDomain, tt.scanTarget),
				"IsThirdParty(%q, %q)", tt.cookieDomain, tt.scanTarget)
		})
	}
}
