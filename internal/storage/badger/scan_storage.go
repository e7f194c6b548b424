package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/consentry/internal/interfaces"
	"github.com/ternarybob/consentry/internal/models"
)

// ScanStorage implements the ScanStorage interface for Badger. Cookie
// values reach this layer in hashed form only; the raw value field is
// excluded from serialization at the model level.
type ScanStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewScanStorage creates a new ScanStorage instance
func NewScanStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ScanStorage {
	return &ScanStorage{
		db:     db,
		logger: logger,
	}
}

func (s *ScanStorage) SaveScanResult(ctx context.Context, result *models.ScanResult) error {
	if result.ScanID == "" {
		return fmt.Errorf("scan ID is required")
	}

	if err := s.db.Store().Upsert(result.ScanID, result); err != nil {
		return fmt.Errorf("failed to save scan result %s: %w", result.ScanID, err)
	}

	s.logger.Debug().
		Str("scan_id", result.ScanID).
		Str("domain", result.Domain).
		Int("unique_cookies", result.UniqueCookies).
		Msg("Scan result persisted")
	return nil
}

func (s *ScanStorage) GetScanResult(ctx context.Context, scanID string) (*models.ScanResult, error) {
	var result models.ScanResult
	if err := s.db.Store().Get(scanID, &result); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("scan result not found: %s", scanID)
		}
		return nil, fmt.Errorf("failed to get scan result %s: %w", scanID, err)
	}
	return &result, nil
}

func (s *ScanStorage) ListScanResults(ctx context.Context, domain string, limit int) ([]*models.ScanResult, error) {
	query := badgerhold.Where("Domain").Eq(domain).SortBy("StartedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var results []models.ScanResult
	if err := s.db.Store().Find(&results, query); err != nil {
		return nil, fmt.Errorf("failed to list scan results for %s: %w", domain, err)
	}

	out := make([]*models.ScanResult, len(results))
	for i := range results {
		out[i] = &results[i]
	}
	return out, nil
}
