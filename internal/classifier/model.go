package classifier

import (
	"fmt"
	"math"
	"sort"

	"github.com/ternarybob/consentry/internal/models"
)

// Model acceptance thresholds. Scores at or above mlAcceptThreshold are
// confident classifications; scores between the two thresholds classify but
// at reduced confidence; below mlFloorThreshold the model abstains and the
// pipeline falls through to Unknown.
const (
	mlAcceptThreshold = 0.75
	mlFloorThreshold  = 0.50
)

// categoryWeights is one independent logistic scorer. Each category gets
// its own weights; the highest-scoring category wins.
type categoryWeights struct {
	Bias          float64
	NameLength    float64
	Underscore    float64
	NameEntropy   float64
	VendorPrefix  float64
	ThirdParty    float64
	Session       float64
	DurationYears float64
	HTTPOnly      float64
	Secure        float64
	SameSiteNone  float64
	Size          float64
}

// modelWeights were fitted offline on a labelled cookie corpus and are
// frozen here; retraining replaces this table wholesale.
var modelWeights = map[models.Category]categoryWeights{
	models.CategoryNecessary: {
		Bias: 0.2, Session: 2.0, HTTPOnly: 1.5,
		ThirdParty: -2.0, VendorPrefix: -1.5, DurationYears: -0.5, SameSiteNone: -0.5,
	},
	models.CategoryFunctional: {
		Bias: 0.3, DurationYears: 0.2,
		HTTPOnly: -0.3, ThirdParty: -0.8, Underscore: -0.5,
	},
	models.CategoryAnalytics: {
		Bias: 0.0, Underscore: 1.0, VendorPrefix: 1.5, NameEntropy: 0.3,
		ThirdParty: 0.8, DurationYears: 0.4,
		Session: -1.0, HTTPOnly: -1.0,
	},
	models.CategoryAdvertising: {
		Bias: -0.2, ThirdParty: 1.8, SameSiteNone: 1.2, VendorPrefix: 0.8,
		DurationYears: 0.6, Size: 0.2,
		Session: -1.0, HTTPOnly: -1.0,
	},
}

// modelPrediction is the model's verdict for one cookie.
type modelPrediction struct {
	Category   models.Category
	Confidence float64
	Evidence   []string
}

func (w categoryWeights) score(f featureVector) float64 {
	z := w.Bias +
		w.NameLength*f.NameLength +
		w.Underscore*f.Underscore +
		w.NameEntropy*f.NameEntropy +
		w.VendorPrefix*f.VendorPrefix +
		w.ThirdParty*f.ThirdParty +
		w.Session*f.Session +
		w.DurationYears*f.DurationYears +
		w.HTTPOnly*f.HTTPOnly +
		w.Secure*f.Secure +
		w.SameSiteNone*f.SameSiteNone +
		w.Size*f.Size
	return sigmoid(z)
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

// scoringOrder fixes the evaluation order so ties resolve toward the
// stricter category.
var scoringOrder = []models.Category{
	models.CategoryNecessary,
	models.CategoryFunctional,
	models.CategoryAnalytics,
	models.CategoryAdvertising,
}

// predict scores the cookie against every category and returns the best
// prediction, or nil when no category clears the floor threshold.
func predict(f featureVector) *modelPrediction {
	best := modelPrediction{Category: models.CategoryUnknown}
	for _, category := range scoringOrder {
		p := modelWeights[category].score(f)
		if p > best.Confidence {
			best.Category = category
			best.Confidence = p
		}
	}
	if best.Confidence < mlFloorThreshold {
		return nil
	}
	best.Evidence = describeFeatures(f, best.Category, best.Confidence)
	return &best
}

// describeFeatures renders the active signals behind a prediction as
// human-readable evidence lines.
func describeFeatures(f featureVector, category models.Category, confidence float64) []string {
	signals := make([]string, 0, 4)
	if f.ThirdParty == 1 {
		signals = append(signals, "third-party domain")
	}
	if f.VendorPrefix == 1 {
		signals = append(signals, "tracker name prefix")
	}
	if f.Session == 1 {
		signals = append(signals, "session lifetime")
	}
	if f.DurationYears > 0 {
		signals = append(signals, fmt.Sprintf("lifetime %.0f days", f.DurationYears*365))
	}
	if f.SameSiteNone == 1 {
		signals = append(signals, "SameSite=None")
	}
	if f.HTTPOnly == 1 {
		signals = append(signals, "HttpOnly")
	}
	if len(signals) == 0 {
		signals = append(signals, "name and attribute features only")
	}
	sort.Strings(signals)
	return []string{
		fmt.Sprintf("model: %s scored %.2f on signals: %v", category, confidence, signals),
	}
}
