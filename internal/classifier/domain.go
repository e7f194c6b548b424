package classifier

import (
	"net/url"
	"strings"
)

// multiLabelSuffixes is a small embedded set of public suffixes that span
// two DNS labels. RegistrableDomain approximates public-suffix policy with
// last-two-labels, extended to three for these entries.
var multiLabelSuffixes = map[string]struct{}{
	"co.uk":  {},
	"org.uk": {},
	"ac.uk":  {},
	"gov.uk": {},
	"com.au": {},
	"net.au": {},
	"org.au": {},
	"co.nz":  {},
	"co.jp":  {},
	"ne.jp":  {},
	"or.jp":  {},
	"com.br": {},
	"com.cn": {},
	"com.mx": {},
	"co.in":  {},
	"co.za":  {},
	"com.sg": {},
	"com.tr": {},
}

// RegistrableDomain returns the public-suffix-plus-one portion of host.
// A leading dot (cookie-domain form) and any port are stripped first.
func RegistrableDomain(host string) string {
	host = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(host)), ".")
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}

	labels := strings.Split(host, ".")
	if len(labels) <= 2 {
		return host
	}

	lastTwo := strings.Join(labels[len(labels)-2:], ".")
	if _, ok := multiLabelSuffixes[lastTwo]; ok {
		return strings.Join(labels[len(labels)-3:], ".")
	}
	return lastTwo
}

// IsThirdParty reports whether cookieDomain belongs to a different
// registrable domain than the scan target. scanTarget may be a bare host
// or an absolute URL.
func IsThirdParty(cookieDomain, scanTarget string) bool {
	targetHost := scanTarget
	if parsed, err := url.Parse(scanTarget); err == nil && parsed.Host != "" {
		targetHost = parsed.Host
	}
	cookieReg := RegistrableDomain(cookieDomain)
	targetReg := RegistrableDomain(targetHost)
	if cookieReg == "" || targetReg == "" {
		return false
	}
	return cookieReg != targetReg
}
