package classifier

import (
	"strings"

	"github.com/ternarybob/consentry/internal/models"
)

// vendorEntry maps a cookie name pattern plus an optional domain suffix to
// a known vendor. Name matching is exact unless the pattern ends with '*',
// which matches as a prefix. DomainSuffix "" matches any domain: most
// vendor cookies are set first-party by embedded scripts.
type vendorEntry struct {
	NamePattern  string
	DomainSuffix string
	Vendor       string
	Category     models.Category
}

// vendorRegistry is the static embedded vendor list consulted before the
// rule engine. Matches classify with confidence 1.0.
var vendorRegistry = []vendorEntry{
	// Google Analytics / Tag Manager
	{NamePattern: "_ga", Vendor: "Google Analytics", Category: models.CategoryAnalytics},
	{NamePattern: "_ga_*", Vendor: "Google Analytics 4", Category: models.CategoryAnalytics},
	{NamePattern: "_gid", Vendor: "Google Analytics", Category: models.CategoryAnalytics},
	{NamePattern: "_gat", Vendor: "Google Analytics", Category: models.CategoryAnalytics},
	{NamePattern: "_gat_*", Vendor: "Google Analytics", Category: models.CategoryAnalytics},
	{NamePattern: "__utma", Vendor: "Google Analytics (legacy)", Category: models.CategoryAnalytics},
	{NamePattern: "__utmb", Vendor: "Google Analytics (legacy)", Category: models.CategoryAnalytics},
	{NamePattern: "__utmc", Vendor: "Google Analytics (legacy)", Category: models.CategoryAnalytics},
	{NamePattern: "__utmz", Vendor: "Google Analytics (legacy)", Category: models.CategoryAnalytics},

	// Google advertising
	{NamePattern: "_gcl_au", Vendor: "Google Ads", Category: models.CategoryAdvertising},
	{NamePattern: "_gcl_*", Vendor: "Google Ads", Category: models.CategoryAdvertising},
	{NamePattern: "IDE", DomainSuffix: "doubleclick.net", Vendor: "Google DoubleClick", Category: models.CategoryAdvertising},
	{NamePattern: "test_cookie", DomainSuffix: "doubleclick.net", Vendor: "Google DoubleClick", Category: models.CategoryAdvertising},
	{NamePattern: "NID", DomainSuffix: "google.com", Vendor: "Google", Category: models.CategoryAdvertising},
	{NamePattern: "__gads", Vendor: "Google Ad Manager", Category: models.CategoryAdvertising},
	{NamePattern: "__gpi", Vendor: "Google Ad Manager", Category: models.CategoryAdvertising},

	// Meta / Facebook
	{NamePattern: "_fbp", Vendor: "Meta Pixel", Category: models.CategoryAdvertising},
	{NamePattern: "_fbc", Vendor: "Meta Pixel", Category: models.CategoryAdvertising},
	{NamePattern: "fr", DomainSuffix: "facebook.com", Vendor: "Meta", Category: models.CategoryAdvertising},

	// Microsoft
	{NamePattern: "MUID", DomainSuffix: "", Vendor: "Microsoft", Category: models.CategoryAdvertising},
	{NamePattern: "_uetsid", Vendor: "Microsoft Advertising", Category: models.CategoryAdvertising},
	{NamePattern: "_uetvid", Vendor: "Microsoft Advertising", Category: models.CategoryAdvertising},
	{NamePattern: "ANONCHK", DomainSuffix: "clarity.ms", Vendor: "Microsoft Clarity", Category: models.CategoryAnalytics},
	{NamePattern: "_clck", Vendor: "Microsoft Clarity", Category: models.CategoryAnalytics},
	{NamePattern: "_clsk", Vendor: "Microsoft Clarity", Category: models.CategoryAnalytics},

	// Product analytics
	{NamePattern: "_hjid", Vendor: "Hotjar", Category: models.CategoryAnalytics},
	{NamePattern: "_hjSession*", Vendor: "Hotjar", Category: models.CategoryAnalytics},
	{NamePattern: "_hj*", Vendor: "Hotjar", Category: models.CategoryAnalytics},
	{NamePattern: "mp_*", Vendor: "Mixpanel", Category: models.CategoryAnalytics},
	{NamePattern: "amp_*", Vendor: "Amplitude", Category: models.CategoryAnalytics},
	{NamePattern: "ajs_anonymous_id", Vendor: "Segment", Category: models.CategoryAnalytics},
	{NamePattern: "ajs_user_id", Vendor: "Segment", Category: models.CategoryAnalytics},
	{NamePattern: "_pk_id*", Vendor: "Matomo", Category: models.CategoryAnalytics},
	{NamePattern: "_pk_ses*", Vendor: "Matomo", Category: models.CategoryAnalytics},

	// Marketing platforms
	{NamePattern: "__hstc", Vendor: "HubSpot", Category: models.CategoryAnalytics},
	{NamePattern: "__hssc", Vendor: "HubSpot", Category: models.CategoryAnalytics},
	{NamePattern: "__hssrc", Vendor: "HubSpot", Category: models.CategoryAnalytics},
	{NamePattern: "hubspotutk", Vendor: "HubSpot", Category: models.CategoryAnalytics},
	{NamePattern: "_ttp", Vendor: "TikTok Pixel", Category: models.CategoryAdvertising},
	{NamePattern: "_tt_enable_cookie", Vendor: "TikTok Pixel", Category: models.CategoryAdvertising},
	{NamePattern: "_pin_unauth", Vendor: "Pinterest", Category: models.CategoryAdvertising},
	{NamePattern: "li_sugr", DomainSuffix: "linkedin.com", Vendor: "LinkedIn", Category: models.CategoryAdvertising},
	{NamePattern: "bcookie", DomainSuffix: "linkedin.com", Vendor: "LinkedIn", Category: models.CategoryAdvertising},
	{NamePattern: "cto_bundle", Vendor: "Criteo", Category: models.CategoryAdvertising},

	// Infrastructure / CDN (strictly necessary)
	{NamePattern: "__cf_bm", Vendor: "Cloudflare", Category: models.CategoryNecessary},
	{NamePattern: "cf_clearance", Vendor: "Cloudflare", Category: models.CategoryNecessary},
	{NamePattern: "__cfduid", Vendor: "Cloudflare (legacy)", Category: models.CategoryNecessary},
	{NamePattern: "AWSALB", Vendor: "AWS Application Load Balancer", Category: models.CategoryNecessary},
	{NamePattern: "AWSALBCORS", Vendor: "AWS Application Load Balancer", Category: models.CategoryNecessary},
	{NamePattern: "ak_bmsc", Vendor: "Akamai Bot Manager", Category: models.CategoryNecessary},
	{NamePattern: "bm_sv", Vendor: "Akamai Bot Manager", Category: models.CategoryNecessary},

	// Consent platforms (functional: they remember the consent choice)
	{NamePattern: "OptanonConsent", Vendor: "OneTrust", Category: models.CategoryFunctional},
	{NamePattern: "OptanonAlertBoxClosed", Vendor: "OneTrust", Category: models.CategoryFunctional},
	{NamePattern: "CookieConsent", Vendor: "Cookiebot", Category: models.CategoryFunctional},
	{NamePattern: "euconsent-v2", Vendor: "IAB TCF", Category: models.CategoryFunctional},
	{NamePattern: "cc_cookie", Vendor: "CookieConsent", Category: models.CategoryFunctional},
}

// lookupVendor returns the first vendor entry matching the cookie name and
// domain, or nil.
func lookupVendor(name, domain string) *vendorEntry {
	domain = strings.TrimPrefix(strings.ToLower(domain), ".")
	for i := range vendorRegistry {
		entry := &vendorRegistry[i]
		if !matchVendorName(entry.NamePattern, name) {
			continue
		}
		if entry.DomainSuffix != "" && !strings.HasSuffix(domain, entry.DomainSuffix) {
			continue
		}
		return entry
	}
	return nil
}

func matchVendorName(pattern, name string) bool {
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(name, strings.TrimSuffix(pattern, "*"))
	}
	return name == pattern
}
