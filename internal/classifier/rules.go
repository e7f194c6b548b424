package classifier

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ternarybob/consentry/internal/models"
)

// ruleConfidence is the fixed confidence assigned by rule-engine matches.
const ruleConfidence = 0.95

// categoryRule matches cookie names against a category. Rules are evaluated
// in order; the first match wins.
type categoryRule struct {
	Category  models.Category
	Patterns  []*regexp.Regexp
	HumanName string
}

func compile(patterns ...string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		compiled = append(compiled, regexp.MustCompile(p))
	}
	return compiled
}

var categoryRules = []categoryRule{
	{
		Category:  models.CategoryNecessary,
		HumanName: "session/auth cookie name",
		Patterns: compile(
			`(?i)^(sid|ssid|sess(ion)?_?id?)$`,
			`(?i)^(php)?sessid$`,
			`(?i)^jsessionid$`,
			`(?i)^asp\.net_sessionid$`,
			`(?i)^connect\.sid$`,
			`(?i)(csrf|xsrf)`,
			`(?i)^(auth|login)_?(token|session)?$`,
			`(?i)^remember_?(me|token)$`,
		),
	},
	{
		Category:  models.CategoryNecessary,
		HumanName: "load-balancer affinity cookie name",
		Patterns: compile(
			`(?i)^(awselb|route|srv_?id|lb_?cookie)`,
			`(?i)sticky`,
		),
	},
	{
		Category:  models.CategoryFunctional,
		HumanName: "preference cookie name",
		Patterns: compile(
			`(?i)^(lang(uage)?|locale|i18n)`,
			`(?i)^(currency|country|region|timezone|tz)$`,
			`(?i)^(theme|dark_?mode|font_?size)$`,
			`(?i)(consent|gdpr|ccpa|privacy_?settings)`,
			`(?i)^(cart|basket)_?(id)?$`,
		),
	},
	{
		Category:  models.CategoryAnalytics,
		HumanName: "analytics cookie name",
		Patterns: compile(
			`(?i)^_?(ga|gid|gat)`,
			`(?i)(analytics|statistic|metric)`,
			`(?i)^_?(visitor|session)_?(id|count)`,
			`(?i)^(ab_?test|experiment|variant)`,
			`(?i)^(heatmap|scroll_?depth)`,
		),
	},
	{
		Category:  models.CategoryAdvertising,
		HumanName: "advertising cookie name",
		Patterns: compile(
			`(?i)(^|_)(ads?|advert)`,
			`(?i)(retarget|remarket)`,
			`(?i)^(fr|ide|anid|uid|uuid)$`,
			`(?i)(doubleclick|adsense|criteo|taboola|outbrain)`,
			`(?i)(campaign|affiliate|utm_)`,
		),
	},
}

// Domain sets for domain-based rule matches: a cookie set by one of these
// hosts classifies by domain alone even when the name is opaque.
var (
	analyticsDomains = map[string]struct{}{
		"google-analytics.com": {},
		"analytics.google.com": {},
		"hotjar.com":           {},
		"mixpanel.com":         {},
		"amplitude.com":        {},
		"segment.io":           {},
		"segment.com":          {},
		"matomo.cloud":         {},
		"clarity.ms":           {},
		"newrelic.com":         {},
		"fullstory.com":        {},
	}
	advertisingDomains = map[string]struct{}{
		"doubleclick.net":       {},
		"googlesyndication.com": {},
		"googleadservices.com":  {},
		"facebook.com":          {},
		"facebook.net":          {},
		"adnxs.com":             {},
		"criteo.com":            {},
		"taboola.com":           {},
		"outbrain.com":          {},
		"pubmatic.com":          {},
		"rubiconproject.com":    {},
		"bing.com":              {},
		"tiktok.com":            {},
		"linkedin.com":          {},
		"twitter.com":           {},
		"pinterest.com":         {},
	}
	infrastructureDomains = map[string]struct{}{
		"cloudflare.com": {},
		"akamai.net":     {},
		"fastly.net":     {},
		"cloudfront.net": {},
	}
)

// ruleMatch is a rule-engine outcome with its evidence line.
type ruleMatch struct {
	Category models.Category
	Evidence string
}

// matchRules runs the rule engine over one cookie. Name rules are checked
// first, then domain rules, then the session+HttpOnly heuristic.
func matchRules(cookie models.AggregatedCookie) *ruleMatch {
	for _, rule := range categoryRules {
		for _, pattern := range rule.Patterns {
			if pattern.MatchString(cookie.Name) {
				return &ruleMatch{
					Category: rule.Category,
					Evidence: fmt.Sprintf("rule: %s matched %q (pattern %s)", rule.HumanName, cookie.Name, pattern.String()),
				}
			}
		}
	}

	reg := RegistrableDomain(cookie.Domain)
	if _, ok := analyticsDomains[reg]; ok {
		return &ruleMatch{
			Category: models.CategoryAnalytics,
			Evidence: fmt.Sprintf("rule: set by known analytics domain %s", reg),
		}
	}
	if _, ok := advertisingDomains[reg]; ok {
		return &ruleMatch{
			Category: models.CategoryAdvertising,
			Evidence: fmt.Sprintf("rule: set by known advertising domain %s", reg),
		}
	}
	if _, ok := infrastructureDomains[reg]; ok {
		return &ruleMatch{
			Category: models.CategoryNecessary,
			Evidence: fmt.Sprintf("rule: set by known infrastructure domain %s", reg),
		}
	}

	// Session cookies locked down with HttpOnly and a strict SameSite policy
	// behave like first-party security cookies.
	if cookie.Expires <= 0 && cookie.HTTPOnly && cookie.SameSite != models.SameSiteNone {
		return &ruleMatch{
			Category: models.CategoryNecessary,
			Evidence: fmt.Sprintf("rule: session+HttpOnly+Strict-pattern attributes on %q", cookie.Name),
		}
	}

	return nil
}

// normalizedName lowercases and trims a cookie name for override lookups.
func normalizedName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
