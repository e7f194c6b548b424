package scanner

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/consentry/internal/classifier"
	"github.com/ternarybob/consentry/internal/common"
)

// URLDiscoverer builds the page list for a scan: the landing page, any
// custom pages, and for deep scans links extracted from the landing page
// until maxPages is reached.
type URLDiscoverer struct {
	logger arbor.ILogger
}

func NewURLDiscoverer() *URLDiscoverer {
	return &URLDiscoverer{logger: common.GetLogger()}
}

// BuildSeedList resolves customPages against domain and returns the
// ordered, deduplicated starting set. When sameOriginOnly is set (deep
// scans), pages on a different registrable domain are dropped; quick scans
// keep them.
func (d *URLDiscoverer) BuildSeedList(domain string, customPages []string, sameOriginOnly bool) ([]string, error) {
	base, err := url.Parse(domain)
	if err != nil {
		return nil, fmt.Errorf("failed to parse domain %q: %w", domain, err)
	}

	seen := make(map[string]bool)
	urls := make([]string, 0, 1+len(customPages))
	appendURL := func(u string) {
		if !seen[u] {
			seen[u] = true
			urls = append(urls, u)
		}
	}
	appendURL(base.String())

	for _, page := range customPages {
		resolved, err := resolveAgainst(base, page)
		if err != nil {
			d.logger.Warn().Str("page", page).Err(err).Msg("Skipping unresolvable custom page")
			continue
		}
		if sameOriginOnly && classifier.IsThirdParty(hostOf(resolved), domain) {
			d.logger.Debug().Str("page", resolved).Msg("Dropping off-origin custom page from deep scan")
			continue
		}
		appendURL(resolved)
	}
	return urls, nil
}

// DiscoverLinks opens the landing page once in the given browser context
// and extracts same-origin <a href> targets in DOM order, deduplicated,
// excluding URLs already in seeds. At most maxLinks are returned.
func (d *URLDiscoverer) DiscoverLinks(ctx context.Context, browser context.Context, domain string, seeds []string, maxLinks int) ([]string, error) {
	if maxLinks <= 0 {
		return nil, nil
	}

	tab, cancelTab := chromedp.NewContext(browser)
	defer cancelTab()

	var html string
	if err := chromedp.Run(tab,
		chromedp.Navigate(domain),
		chromedp.OuterHTML("html", &html),
	); err != nil {
		return nil, fmt.Errorf("failed to load landing page for discovery: %w", err)
	}

	links, err := d.ExtractLinks(html, domain)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(seeds))
	for _, s := range seeds {
		seen[s] = true
	}
	out := make([]string, 0, maxLinks)
	for _, link := range links {
		if len(out) >= maxLinks {
			break
		}
		if !seen[link] {
			seen[link] = true
			out = append(out, link)
		}
	}

	d.logger.Debug().
		Str("domain", domain).
		Int("links_found", len(links)).
		Int("links_used", len(out)).
		Msg("Link discovery complete")
	return out, nil
}

// ExtractLinks parses HTML and returns absolute same-origin links in
// document order, deduplicated.
func (d *URLDiscoverer) ExtractLinks(html, sourceURL string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML for link extraction: %w", err)
	}

	base, err := url.Parse(sourceURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse source URL %q: %w", sourceURL, err)
	}

	seen := make(map[string]bool)
	var links []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || shouldSkipHref(href) {
			return
		}
		resolved, err := resolveAgainst(base, href)
		if err != nil {
			return
		}
		if classifier.IsThirdParty(hostOf(resolved), sourceURL) {
			return
		}
		if !seen[resolved] {
			seen[resolved] = true
			links = append(links, resolved)
		}
	})
	return links, nil
}

func shouldSkipHref(href string) bool {
	href = strings.ToLower(strings.TrimSpace(href))
	return href == "" ||
		strings.HasPrefix(href, "#") ||
		strings.HasPrefix(href, "javascript:") ||
		strings.HasPrefix(href, "mailto:") ||
		strings.HasPrefix(href, "tel:") ||
		strings.HasPrefix(href, "data:")
}

// resolveAgainst resolves ref (absolute or relative) against base and
// normalises away the fragment.
func resolveAgainst(base *url.URL, ref string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", err
	}
	resolved := base.ResolveReference(parsed)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", resolved.Scheme)
	}
	resolved.Fragment = ""
	return resolved.String(), nil
}

func hostOf(rawURL string) string {
	if parsed, err := url.Parse(rawURL); err == nil {
		return parsed.Host
	}
	return rawURL
}
