package scanner

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/consentry/internal/common"
	"github.com/ternarybob/consentry/internal/models"
)

// storageDumpJS serialises one Storage object to a flat map. Access errors
// (sandboxed frames, disabled storage) surface as an evaluation error and
// are swallowed per storage area.
const storageDumpJS = `(() => {
	const out = {};
	const s = %STORE%;
	for (let i = 0; i < s.length; i++) {
		const k = s.key(i);
		out[k] = s.getItem(k);
	}
	return out;
})()`

// VisitorConfig tunes one ChromeVisitor.
type VisitorConfig struct {
	Timeout         time.Duration
	SettleWait      time.Duration
	AcceptSelectors []string
	MaxRetries      int
	Limiter         *PolitenessLimiter
}

// ChromeVisitor drives one page visit per call against a shared browser
// context: navigate, best-effort consent click, settle, extract cookies and
// web storage. A fresh tab is opened per visit and closed on every exit
// path.
type ChromeVisitor struct {
	config VisitorConfig
	retry  *RetryPolicy
	logger arbor.ILogger
}

func NewChromeVisitor(config VisitorConfig) *ChromeVisitor {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.SettleWait <= 0 {
		config.SettleWait = 1500 * time.Millisecond
	}
	return &ChromeVisitor{
		config: config,
		retry:  NewRetryPolicy(config.MaxRetries),
		logger: common.GetLogger(),
	}
}

// Visit implements interfaces.PageVisitor. Navigation errors retry with
// backoff up to MaxRetries; any other failure returns a failed PageResult
// immediately. The scan as a whole never fails because one page did.
func (v *ChromeVisitor) Visit(ctx context.Context, browser context.Context, url string, index int, opts models.VisitOptions) models.PageResult {
	started := time.Now()

	var lastErr error
	attempt := 0
	for {
		if err := v.config.Limiter.Wait(ctx, url); err != nil {
			lastErr = err
			break
		}

		result, err := v.visitOnce(browser, url, opts)
		if err == nil {
			result.URL = url
			result.Index = index
			result.Success = true
			result.Retries = attempt
			result.DurationSeconds = time.Since(started).Seconds()
			return result
		}
		lastErr = err

		if !v.retry.ShouldRetry(attempt, err) {
			break
		}
		backoff := v.retry.Backoff(attempt)
		v.logger.Debug().
			Str("url", url).
			Int("attempt", attempt+1).
			Dur("backoff", backoff).
			Err(err).
			Msg("Page visit failed, retrying")

		select {
		case <-ctx.Done():
			return failedResult(url, index, attempt, started, ctx.Err())
		case <-time.After(backoff):
		}
		attempt++
	}

	return failedResult(url, index, attempt, started, lastErr)
}

func failedResult(url string, index, retries int, started time.Time, err error) models.PageResult {
	msg := "page visit failed"
	if err != nil {
		msg = err.Error()
	}
	return models.PageResult{
		URL:             url,
		Index:           index,
		Success:         false,
		Retries:         retries,
		DurationSeconds: time.Since(started).Seconds(),
		Error:           msg,
	}
}

// visitOnce performs a single attempt inside a fresh tab. An in-flight
// attempt runs to completion or its own timeout; scan cancellation only
// stops new pages from being scheduled.
func (v *ChromeVisitor) visitOnce(browser context.Context, url string, opts models.VisitOptions) (models.PageResult, error) {
	tab, cancelTab := chromedp.NewContext(browser)
	defer cancelTab()

	timeout := v.config.Timeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}
	visitCtx, cancel := context.WithTimeout(tab, timeout)
	defer cancel()

	actions := []chromedp.Action{network.Enable()}
	if opts.UserAgent != "" {
		actions = append(actions, emulation.SetUserAgentOverride(opts.UserAgent))
	}
	actions = append(actions, chromedp.Navigate(url))

	if err := chromedp.Run(visitCtx, actions...); err != nil {
		if browserFatal(err) {
			return models.PageResult{}, newPageError(ErrorKindBrowserFatal, url, err)
		}
		return models.PageResult{}, newPageError(ErrorKindNavigation, url, err)
	}

	selectors := v.config.AcceptSelectors
	if len(opts.AcceptSelectors) > 0 {
		selectors = opts.AcceptSelectors
	}
	v.tryAcceptConsent(visitCtx, url, selectors)

	// Scroll to the bottom and back to trigger lazily-loaded trackers, then
	// give late-set cookies time to land.
	_ = chromedp.Run(visitCtx,
		chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
		chromedp.Sleep(v.config.SettleWait/2),
		chromedp.Evaluate(`window.scrollTo(0, 0)`, nil),
		chromedp.Sleep(v.config.SettleWait/2),
	)

	var rawCookies []*network.Cookie
	if err := chromedp.Run(visitCtx, chromedp.ActionFunc(func(c context.Context) error {
		var err error
		rawCookies, err = network.GetCookies().Do(c)
		return err
	})); err != nil {
		if browserFatal(err) {
			return models.PageResult{}, newPageError(ErrorKindBrowserFatal, url, err)
		}
		return models.PageResult{}, newPageError(ErrorKindExtraction, url, err)
	}

	result := models.PageResult{
		Cookies:        convertCookies(rawCookies),
		LocalStorage:   v.dumpStorage(visitCtx, "localStorage"),
		SessionStorage: v.dumpStorage(visitCtx, "sessionStorage"),
	}
	return result, nil
}

// tryAcceptConsent clicks accept-button selectors in order, at most one
// second per attempt. Failures are expected on pages without a banner and
// are swallowed.
func (v *ChromeVisitor) tryAcceptConsent(ctx context.Context, url string, selectors []string) {
	for _, selector := range selectors {
		query, xpath := consentClickQuery(selector)
		by := chromedp.ByQuery
		if xpath {
			by = chromedp.BySearch
		}
		clickCtx, cancel := context.WithTimeout(ctx, time.Second)
		err := chromedp.Run(clickCtx, chromedp.Click(query, by))
		cancel()
		if err == nil {
			v.logger.Debug().Str("url", url).Str("selector", selector).Msg("Consent banner accepted")
			return
		}
	}
}

var hasTextPattern = regexp.MustCompile(`^([a-zA-Z][a-zA-Z0-9-]*)\s*:has-text\(\s*(?:"([^"]*)"|'([^']*)')\s*\)$`)

// consentClickQuery translates an accept selector into a chromedp query.
// The tag:has-text("...") form has no querySelector equivalent and maps to
// an XPath text-contains match; selectors starting with "//" are passed
// through as XPath; everything else is a CSS selector.
func consentClickQuery(selector string) (query string, xpath bool) {
	if m := hasTextPattern.FindStringSubmatch(selector); m != nil {
		text := m[2]
		if text == "" {
			text = m[3]
		}
		return fmt.Sprintf(`//%s[contains(., "%s")]`, m[1], text), true
	}
	if strings.HasPrefix(selector, "//") {
		return selector, true
	}
	return selector, false
}

// dumpStorage reads one web-storage area; errors yield an empty map.
func (v *ChromeVisitor) dumpStorage(ctx context.Context, store string) map[string]string {
	js := strings.Replace(storageDumpJS, "%STORE%", store, 1)

	var out map[string]string
	if err := chromedp.Run(ctx, chromedp.Evaluate(js, &out)); err != nil {
		v.logger.Debug().Str("store", store).Err(err).Msg("Storage extraction failed")
		return map[string]string{}
	}
	if out == nil {
		out = map[string]string{}
	}
	return out
}

// convertCookies maps CDP cookies into observations. Expires is seconds
// since epoch; CDP reports -1 for session cookies.
func convertCookies(raw []*network.Cookie) []models.CookieObservation {
	cookies := make([]models.CookieObservation, 0, len(raw))
	for _, c := range raw {
		expires := int64(0)
		if c.Expires > 0 {
			expires = int64(c.Expires)
		}
		cookies = append(cookies, models.CookieObservation{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: convertSameSite(c.SameSite),
			Size:     len(c.Value),
		})
	}
	return cookies
}

func convertSameSite(s network.CookieSameSite) models.SameSite {
	switch s {
	case network.CookieSameSiteStrict:
		return models.SameSiteStrict
	case network.CookieSameSiteLax:
		return models.SameSiteLax
	case network.CookieSameSiteNone:
		return models.SameSiteNone
	default:
		return models.SameSiteUnspecified
	}
}
