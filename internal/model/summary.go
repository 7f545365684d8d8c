package model

import "time"

// TrainingSummary reports how a training run went. Operational tooling
// displays it; the core does not interpret it further.
type TrainingSummary struct {
	TrainedAt            time.Time
	PrecisionPerCategory map[string]float64
	RecallPerCategory    map[string]float64
	TopFeatures          map[string]float64
	ModelVersion         string
	Accuracy             float64
	MacroF1              float64
	StructuredWeight     float64
	TextWeight           float64
	Samples              int
	Categories           int
}
