package interfaces

import (
	"github.com/ternarybob/consentry/internal/models"
)

// Classifier assigns a category, confidence and evidence to one aggregated
// cookie. scanDomain is the scan target used for third-party detection;
// domainConfigID keys the per-domain override table. Classify never fails:
// internal errors yield an Unknown/Fallback classification.
type Classifier interface {
	Classify(cookie models.AggregatedCookie, domainConfigID string, scanDomain string) models.ClassifiedCookie
}
