package validate

import (
	"log/slog"

	"gonum.org/v1/gonum/floats"
)

// Default ensemble weights, used when the holdout search cannot run.
const (
	DefaultStructuredWeight = 0.7
	DefaultTextWeight       = 0.3
)

// Weight grid bounds for the holdout search.
const (
	weightGridMin  = 0.30
	weightGridMax  = 0.85
	weightGridStep = 0.05
)

// Weights holds the convex combination applied to the two classifiers'
// probability rows.
type Weights struct {
	Structured float64
	Text       float64
}

// DefaultWeights returns the fallback combination favoring the
// structured classifier.
func DefaultWeights() Weights {
	return Weights{Structured: DefaultStructuredWeight, Text: DefaultTextWeight}
}

// FuseRow combines one aligned probability row pair.
func (w Weights) FuseRow(structured, text []float64) []float64 {
	fused := make([]float64, len(structured))
	for k := range fused {
		fused[k] = w.Structured*structured[k] + w.Text*text[k]
	}
	return fused
}

// SearchWeights grid-searches the structured weight over holdout
// predictions from both classifiers, maximizing macro-F1 of the fused
// rows. Ties keep the first (lowest) weight so results are stable run to
// run. Rows must share one class ordering given by classes.
func SearchWeights(structured, text [][]float64, yTrue []int, classes []string) Weights {
	if len(structured) == 0 || len(structured) != len(text) || len(structured) != len(yTrue) {
		return DefaultWeights()
	}

	best := DefaultWeights()
	bestF1 := -1.0
	for w := weightGridMin; w <= weightGridMax+1e-9; w += weightGridStep {
		candidate := Weights{Structured: w, Text: 1 - w}

		yPred := make([]int, len(yTrue))
		for i := range yTrue {
			yPred[i] = floats.MaxIdx(candidate.FuseRow(structured[i], text[i]))
		}
		f1, _, _ := macroF1(yPred, yTrue, classes)

		if f1 > bestF1 {
			bestF1 = f1
			best = candidate
		}
	}

	slog.Debug("ensemble weight search finished",
		"structured_weight", best.Structured,
		"text_weight", best.Text,
		"macro_f1", bestF1,
		"holdout_samples", len(yTrue),
	)
	return best
}
