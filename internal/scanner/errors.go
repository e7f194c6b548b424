package scanner

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrPoolExhausted is returned when too few healthy browsers remain to
// continue a scan. The partial result accumulated so far is still returned.
var ErrPoolExhausted = errors.New("browser pool below minimum health")

// ErrorKind buckets page-level failures for retry decisions.
type ErrorKind string

const (
	// ErrorKindNavigation covers timeouts, DNS, TLS and fetch failures.
	// Retryable.
	ErrorKindNavigation ErrorKind = "navigation"
	// ErrorKindExtraction covers cookie/storage API failures after a
	// successful navigation. Not retryable.
	ErrorKindExtraction ErrorKind = "extraction"
	// ErrorKindBrowserFatal covers an unexpectedly closed browser context.
	// The owning pool slot is marked unhealthy.
	ErrorKindBrowserFatal ErrorKind = "browser_fatal"
)

// PageError carries the failure kind through the visitor's retry loop.
type PageError struct {
	Kind ErrorKind
	URL  string
	Err  error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("%s error visiting %s: %v", e.Kind, e.URL, e.Err)
}

func (e *PageError) Unwrap() error {
	return e.Err
}

func newPageError(kind ErrorKind, url string, err error) *PageError {
	return &PageError{Kind: kind, URL: url, Err: err}
}

// retryable reports whether a page error should re-enter the visit loop.
func retryable(err error) bool {
	var pageErr *PageError
	if errors.As(err, &pageErr) {
		return pageErr.Kind == ErrorKindNavigation
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

// browserFatal reports whether the error indicates a dead browser context.
func browserFatal(err error) bool {
	var pageErr *PageError
	if errors.As(err, &pageErr) && pageErr.Kind == ErrorKindBrowserFatal {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "browser closed") ||
		strings.Contains(msg, "websocket: close") ||
		strings.Contains(msg, "target closed")
}
