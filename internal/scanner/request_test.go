package scanner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ternarybob/consentry/internal/common"
	"github.com/ternarybob/consentry/internal/models"
)

func TestValidateRequest(t *testing.T) {
	tests := []struct {
		name    string
		req     models.ScanRequest
		wantErr bool
	}{
		{"valid quick", models.ScanRequest{Domain: "https://example.com", Mode: models.ScanModeQuick}, false},
		{"valid enterprise", models.ScanRequest{Domain: "https://example.com", Mode: models.ScanModeEnterprise, MaxPages: 20000, ChunkSize: 2000}, false},
		{"missing domain", models.ScanRequest{Mode: models.ScanModeQuick}, true},
		{"missing mode", models.ScanRequest{Domain: "https://example.com"}, true},
		{"bad mode", models.ScanRequest{Domain: "https://example.com", Mode: "turbo"}, true},
		{"no scheme", models.ScanRequest{Domain: "example.com", Mode: models.ScanModeQuick}, true},
		{"ftp scheme", models.ScanRequest{Domain: "ftp://example.com", Mode: models.ScanModeQuick}, true},
		{"max pages over limit", models.ScanRequest{Domain: "https://example.com", Mode: models.ScanModeDeep, MaxPages: 20001}, true},
		{"concurrency over limit", models.ScanRequest{Domain: "https://example.com", Mode: models.ScanModeDeep, Concurrency: 21}, true},
		{"pool size over limit", models.ScanRequest{Domain: "https://example.com", Mode: models.ScanModeEnterprise, BrowserPoolSize: 11}, true},
		{"chunk size under limit", models.ScanRequest{Domain: "https://example.com", Mode: models.ScanModeEnterprise, ChunkSize: 99}, true},
		{"timeout under limit", models.ScanRequest{Domain: "https://example.com", Mode: models.ScanModeQuick, TimeoutMs: 4999}, true},
		{"resume without persistence", models.ScanRequest{Domain: "https://example.com", Mode: models.ScanModeEnterprise, ResumeScanID: "scan_1_abcdef01"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRequest(tt.req)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestVisitOptionsFromRequest(t *testing.T) {
	cfg := common.DefaultConfig()

	req := applyDefaults(models.ScanRequest{
		Domain: "https://example.com",
		Mode:   models.ScanModeQuick,
	}, cfg)
	opts := visitOptions(req, cfg)
	assert.Equal(t, time.Duration(cfg.Scan.TimeoutMs)*time.Millisecond, opts.Timeout)
	assert.Equal(t, cfg.Scan.UserAgent, opts.UserAgent)
	assert.Equal(t, cfg.Scan.AcceptSelectors, opts.AcceptSelectors)

	req = applyDefaults(models.ScanRequest{
		Domain:         "https://example.com",
		Mode:           models.ScanModeQuick,
		TimeoutMs:      45000,
		UserAgent:      "AuditBot/1.0",
		AcceptSelector: "#cmp-accept",
	}, cfg)
	opts = visitOptions(req, cfg)
	assert.Equal(t, 45*time.Second, opts.Timeout)
	assert.Equal(t, "AuditBot/1.0", opts.UserAgent)
	assert.Equal(t, append([]string{"#cmp-accept"}, cfg.Scan.AcceptSelectors...), opts.AcceptSelectors)
}
