package scanner

import (
	"fmt"
	"net/url"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ternarybob/consentry/internal/common"
	"github.com/ternarybob/consentry/internal/models"
)

var validate = validator.New()

// ValidateRequest rejects a malformed ScanRequest before any browser work
// starts. Out-of-bounds values are rejected, not clamped.
func ValidateRequest(req models.ScanRequest) error {
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("invalid scan request: %w", err)
	}

	parsed, err := url.Parse(req.Domain)
	if err != nil {
		return fmt.Errorf("invalid scan request: domain does not parse: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid scan request: domain must be an absolute http(s) URL, got %q", req.Domain)
	}
	if parsed.Host == "" {
		return fmt.Errorf("invalid scan request: domain %q has no host", req.Domain)
	}

	if req.Mode == models.ScanModeEnterprise && req.ResumeScanID != "" && !req.EnablePersistence {
		return fmt.Errorf("invalid scan request: resume_scan_id requires enable_persistence")
	}
	return nil
}

// applyDefaults fills unset request fields from configuration.
func applyDefaults(req models.ScanRequest, cfg *common.Config) models.ScanRequest {
	if req.MaxPages == 0 {
		if req.Mode == models.ScanModeQuick {
			req.MaxPages = 1 + len(req.CustomPages)
		} else {
			req.MaxPages = 100
		}
	}
	if req.Concurrency == 0 {
		req.Concurrency = cfg.Scan.DefaultConcurrency
	}
	if req.BrowserPoolSize == 0 {
		req.BrowserPoolSize = cfg.Scan.BrowserPoolSize
	}
	if req.PagesPerBrowser == 0 {
		req.PagesPerBrowser = cfg.Scan.PagesPerBrowser
	}
	if req.ChunkSize == 0 {
		req.ChunkSize = cfg.Scan.ChunkSize
	}
	if req.TimeoutMs == 0 {
		req.TimeoutMs = cfg.Scan.TimeoutMs
	}
	if req.UserAgent == "" {
		req.UserAgent = cfg.Scan.UserAgent
	}
	return req
}

// visitOptions derives the per-page visit settings from a defaulted
// request. A request-level accept selector is tried before the configured
// fallbacks.
func visitOptions(req models.ScanRequest, cfg *common.Config) models.VisitOptions {
	opts := models.VisitOptions{
		Timeout:         time.Duration(req.TimeoutMs) * time.Millisecond,
		UserAgent:       req.UserAgent,
		AcceptSelectors: cfg.Scan.AcceptSelectors,
	}
	if req.AcceptSelector != "" {
		selectors := make([]string, 0, 1+len(cfg.Scan.AcceptSelectors))
		selectors = append(selectors, req.AcceptSelector)
		opts.AcceptSelectors = append(selectors, cfg.Scan.AcceptSelectors...)
	}
	return opts
}
