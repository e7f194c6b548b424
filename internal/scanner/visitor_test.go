package scanner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/consentry/internal/common"
)

func TestConsentClickQuery(t *testing.T) {
	tests := []struct {
		name     string
		selector string
		query    string
		xpath    bool
	}{
		{
			name:     "has-text double quotes",
			selector: `button:has-text("Accept")`,
			query:    `//button[contains(., "Accept")]`,
			xpath:    true,
		},
		{
			name:     "has-text single quotes",
			selector: `button:has-text('Alle akzeptieren')`,
			query:    `//button[contains(., "Alle akzeptieren")]`,
			xpath:    true,
		},
		{
			name:     "has-text on anchor",
			selector: `a:has-text("I agree")`,
			query:    `//a[contains(., "I agree")]`,
			xpath:    true,
		},
		{
			name:     "css id selector unchanged",
			selector: "#onetrust-accept-btn-handler",
			query:    "#onetrust-accept-btn-handler",
			xpath:    false,
		},
		{
			name:     "css class selector unchanged",
			selector: "button.cmp-accept",
			query:    "button.cmp-accept",
			xpath:    false,
		},
		{
			name:     "explicit xpath passed through",
			selector: `//button[@id="accept-all"]`,
			query:    `//button[@id="accept-all"]`,
			xpath:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, xpath := consentClickQuery(tt.selector)
			assert.Equal(t, tt.query, query)
			assert.Equal(t, tt.xpath, xpath)
		})
	}
}

// The shipped default selector uses the has-text form, which
// document.querySelector rejects. It must translate to XPath or the consent
// click silently fails on every page.
func TestDefaultAcceptSelectorIsClickable(t *testing.T) {
	selectors := common.DefaultConfig().Scan.AcceptSelectors
	require.NotEmpty(t, selectors)

	query, xpath := consentClickQuery(selectors[0])
	assert.True(t, xpath)
	assert.Equal(t, `//button[contains(., "Accept")]`, query)
}
