package validate

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// eceBins is the number of equal-width confidence bins used for the
// expected calibration error.
const eceBins = 10

// logLossEpsilon guards against log(0) for overconfident wrong answers.
const logLossEpsilon = 1e-15

// Metrics aggregates classification quality over a labeled evaluation
// set. Per-class maps are keyed by category name.
type Metrics struct {
	PrecisionPerClass map[string]float64
	RecallPerClass    map[string]float64
	Accuracy          float64
	MacroF1           float64
	LogLoss           float64
	Brier             float64
	ECE               float64
	Samples           int
}

// Evaluate computes all metrics for probability rows against true class
// indices. Rows are ordered by classes; yTrue holds indices into classes.
func Evaluate(probRows [][]float64, yTrue []int, classes []string) Metrics {
	m := Metrics{
		PrecisionPerClass: make(map[string]float64, len(classes)),
		RecallPerClass:    make(map[string]float64, len(classes)),
		Samples:           len(yTrue),
	}
	if len(yTrue) == 0 {
		return m
	}

	yPred := make([]int, len(probRows))
	confidences := make([]float64, len(probRows))
	for i, row := range probRows {
		yPred[i] = floats.MaxIdx(row)
		confidences[i] = row[yPred[i]]
	}

	m.Accuracy = accuracy(yPred, yTrue)
	m.MacroF1, m.PrecisionPerClass, m.RecallPerClass = macroF1(yPred, yTrue, classes)
	m.LogLoss = logLoss(probRows, yTrue)
	m.Brier = brier(probRows, yTrue)
	m.ECE = expectedCalibrationError(confidences, yPred, yTrue)
	return m
}

func accuracy(yPred, yTrue []int) float64 {
	correct := 0
	for i := range yTrue {
		if yPred[i] == yTrue[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(yTrue))
}

// macroF1 averages per-class F1 over every class present in the truth or
// the predictions. Classes the model never predicts score zero precision
// and drag the macro average down, which is the point.
func macroF1(yPred, yTrue []int, classes []string) (float64, map[string]float64, map[string]float64) {
	precision := make(map[string]float64, len(classes))
	recall := make(map[string]float64, len(classes))

	var f1Sum float64
	for k, name := range classes {
		var tp, fp, fn float64
		for i := range yTrue {
			switch {
			case yPred[i] == k && yTrue[i] == k:
				tp++
			case yPred[i] == k:
				fp++
			case yTrue[i] == k:
				fn++
			}
		}

		var p, r float64
		if tp+fp > 0 {
			p = tp / (tp + fp)
		}
		if tp+fn > 0 {
			r = tp / (tp + fn)
		}
		precision[name] = p
		recall[name] = r
		if p+r > 0 {
			f1Sum += 2 * p * r / (p + r)
		}
	}
	return f1Sum / float64(len(classes)), precision, recall
}

func logLoss(probRows [][]float64, yTrue []int) float64 {
	var sum float64
	for i, row := range probRows {
		p := row[yTrue[i]]
		if p < logLossEpsilon {
			p = logLossEpsilon
		}
		sum -= math.Log(p)
	}
	return sum / float64(len(yTrue))
}

// brier is the multiclass Brier score: mean squared distance between the
// probability row and the one-hot truth.
func brier(probRows [][]float64, yTrue []int) float64 {
	var sum float64
	for i, row := range probRows {
		for k, p := range row {
			target := 0.0
			if yTrue[i] == k {
				target = 1.0
			}
			sum += (p - target) * (p - target)
		}
	}
	return sum / float64(len(yTrue))
}

// expectedCalibrationError bins predictions by top-class confidence and
// sums the weighted gaps between each bin's mean confidence and its
// accuracy.
func expectedCalibrationError(confidences []float64, yPred, yTrue []int) float64 {
	binConf := make([]float64, eceBins)
	binAcc := make([]float64, eceBins)
	binCount := make([]float64, eceBins)

	for i, conf := range confidences {
		bin := int(conf * eceBins)
		if bin >= eceBins {
			bin = eceBins - 1
		}
		binConf[bin] += conf
		if yPred[i] == yTrue[i] {
			binAcc[bin]++
		}
		binCount[bin]++
	}

	total := float64(len(confidences))
	var ece float64
	for b := 0; b < eceBins; b++ {
		if binCount[b] == 0 {
			continue
		}
		gap := math.Abs(binConf[b]/binCount[b] - binAcc[b]/binCount[b])
		ece += binCount[b] / total * gap
	}
	return ece
}
