package classifier

import (
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/consentry/internal/common"
	"github.com/ternarybob/consentry/internal/models"
)

// Service resolves a category for each aggregated cookie through a fixed
// pipeline: manual override, vendor list, rule engine, scoring model, and
// finally an Unknown fallback. Classification never fails; every outcome
// carries at least one evidence line.
type Service struct {
	overrides *OverrideStore
	logger    arbor.ILogger
	now       func() time.Time
}

func NewService(overrides *OverrideStore) *Service {
	if overrides == nil {
		overrides = NewOverrideStore()
	}
	return &Service{
		overrides: overrides,
		logger:    common.GetLogger(),
		now:       time.Now,
	}
}

// Classify assigns a category to one cookie. A panic in any layer is
// contained and yields the Unknown fallback.
func (s *Service) Classify(cookie models.AggregatedCookie, domainConfigID string, scanDomain string) (result models.ClassifiedCookie) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn().
				Str("cookie", cookie.Name).
				Str("domain", cookie.Domain).
				Msg(fmt.Sprintf("classification panic recovered: %v", r))
			result = s.fallback(cookie, fmt.Sprintf("classifier error: %v", r))
		}
	}()

	result = s.classify(cookie, domainConfigID, scanDomain)
	return result
}

func (s *Service) classify(cookie models.AggregatedCookie, domainConfigID string, scanDomain string) models.ClassifiedCookie {
	now := s.now()

	if override := s.overrides.Lookup(domainConfigID, cookie.Name, cookie.Domain); override != nil {
		evidence := fmt.Sprintf("override: manual classification for %q", cookie.Name)
		if override.Note != "" {
			evidence = fmt.Sprintf("override: %s", override.Note)
		}
		return s.finish(cookie, override.Category, 1.0, models.SourceOverride, []string{evidence}, now)
	}

	if vendor := lookupVendor(cookie.Name, cookie.Domain); vendor != nil {
		evidence := fmt.Sprintf("vendor list: %q is a known %s cookie", cookie.Name, vendor.Vendor)
		return s.finish(cookie, vendor.Category, 1.0, models.SourceVendorList, []string{evidence}, now)
	}

	if match := matchRules(cookie); match != nil {
		evidence := []string{match.Evidence}
		if match.Category == models.CategoryNecessary && cookie.Expires <= 0 && cookie.HTTPOnly {
			evidence = append(evidence, fmt.Sprintf("attributes: session+HttpOnly+Strict-pattern on %q", cookie.Name))
		}
		return s.finish(cookie, match.Category, ruleConfidence, models.SourceRule, evidence, now)
	}

	features := extractFeatures(cookie, scanDomain, now)
	if prediction := predict(features); prediction != nil {
		evidence := prediction.Evidence
		if prediction.Confidence < mlAcceptThreshold {
			evidence = append(evidence, fmt.Sprintf("model: score %.2f below %.2f acceptance, flagged for review", prediction.Confidence, mlAcceptThreshold))
		}
		return s.finish(cookie, prediction.Category, prediction.Confidence, models.SourceML, evidence, now)
	}

	return s.fallback(cookie, "model score below classification floor")
}

func (s *Service) fallback(cookie models.AggregatedCookie, reason string) models.ClassifiedCookie {
	return s.finish(cookie, models.CategoryUnknown, 0.0, models.SourceFallback, []string{"fallback: " + reason}, s.now())
}

// finish applies the cross-cutting invariants: the review flag, the
// expired-cookie note, and the non-empty evidence guarantee. Model
// classifications below the acceptance threshold are flagged for review
// even when the score clears the floor.
func (s *Service) finish(cookie models.AggregatedCookie, category models.Category, confidence float64, source models.ClassificationSource, evidence []string, now time.Time) models.ClassifiedCookie {
	if len(evidence) == 0 {
		evidence = []string{fmt.Sprintf("classified as %s by %s", category, source)}
	}
	if cookie.Expires > 0 && !time.Unix(cookie.Expires, 0).After(now) {
		evidence = append(evidence, "note: cookie already expired at scan time")
	}
	requiresReview := confidence < mlFloorThreshold || category == models.CategoryUnknown
	if source == models.SourceML && confidence < mlAcceptThreshold {
		requiresReview = true
	}
	return models.ClassifiedCookie{
		AggregatedCookie: cookie,
		Category:         category,
		Confidence:       confidence,
		Source:           source,
		Evidence:         evidence,
		RequiresReview:   requiresReview,
	}
}
