package model

// ConfidenceLevel buckets a confidence score for display and routing.
type ConfidenceLevel string

// Confidence levels consumed by external review tooling.
const (
	ConfidenceHigh   ConfidenceLevel = "High"
	ConfidenceMedium ConfidenceLevel = "Medium"
	ConfidenceLow    ConfidenceLevel = "Low"
)

// Confidence thresholds for level mapping and auto-approval.
const (
	HighConfidenceThreshold     = 0.90
	MediumConfidenceThreshold   = 0.70
	DefaultAutoApproveThreshold = 0.95
)

// Prediction is the result of classifying a single transaction. It is
// ephemeral: recomputed on demand and persisted only by the surrounding
// store, never owned by the classifier.
type Prediction struct {
	TransactionID string
	Category      string
	Confidence    float64
	Contributions map[string]float64
}

// Level maps the confidence score to a human-readable level.
func (p *Prediction) Level() ConfidenceLevel {
	switch {
	case p.Confidence >= HighConfidenceThreshold:
		return ConfidenceHigh
	case p.Confidence >= MediumConfidenceThreshold:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// AutoApprovable reports whether the prediction may be applied without
// human review at the given threshold.
func (p *Prediction) AutoApprovable(threshold float64) bool {
	if threshold <= 0 {
		threshold = DefaultAutoApproveThreshold
	}
	return p.Confidence >= threshold
}

// ReviewOutcome records what happened when a human reviewed a prediction.
// The selector uses recent outcomes to adapt its sampling strategy.
type ReviewOutcome struct {
	TransactionID      string
	OriginalConfidence float64
	WasCorrected       bool
}
