package structclf

import (
	"errors"
	"math"
	"sort"
)

// errCalibrationInfeasible signals that isotonic calibration cannot be
// fitted for a class, typically because the calibration split holds too
// few samples of it. Recovered locally by the sigmoid fallback; never
// surfaced to callers.
var errCalibrationInfeasible = errors.New("isotonic calibration infeasible")

// Calibration methods.
const (
	methodIsotonic = "isotonic"
	methodSigmoid  = "sigmoid"
	methodIdentity = "identity"
)

// minIsotonicSamples is the practical minimum number of calibration pairs
// per class for isotonic regression to produce a usable step function.
const minIsotonicSamples = 4

// Calibrator maps one class's raw probability to a calibrated one. Exactly
// one method is active; fields are exported for gob serialization.
type Calibrator struct {
	Method     string
	Thresholds []float64 // isotonic: input breakpoints, ascending
	Values     []float64 // isotonic: calibrated value per breakpoint
	A          float64   // sigmoid: slope
	B          float64   // sigmoid: intercept
}

// Calibrate applies the fitted mapping to a raw probability.
func (c *Calibrator) Calibrate(p float64) float64 {
	switch c.Method {
	case methodIsotonic:
		return c.isotonicInterpolate(p)
	case methodSigmoid:
		return 1 / (1 + math.Exp(c.A*p+c.B))
	default:
		return p
	}
}

// isotonicInterpolate evaluates the step function with linear
// interpolation between breakpoints, clamped at the ends.
func (c *Calibrator) isotonicInterpolate(p float64) float64 {
	n := len(c.Thresholds)
	if n == 0 {
		return p
	}
	if p <= c.Thresholds[0] {
		return c.Values[0]
	}
	if p >= c.Thresholds[n-1] {
		return c.Values[n-1]
	}

	idx := sort.SearchFloat64s(c.Thresholds, p)
	lo, hi := idx-1, idx
	span := c.Thresholds[hi] - c.Thresholds[lo]
	if span == 0 {
		return c.Values[lo]
	}
	frac := (p - c.Thresholds[lo]) / span
	return c.Values[lo] + frac*(c.Values[hi]-c.Values[lo])
}

// fitCalibrator fits isotonic regression on (rawProb, outcome) pairs and
// falls back to sigmoid calibration when isotonic is infeasible.
func fitCalibrator(probs []float64, outcomes []float64) Calibrator {
	cal, err := fitIsotonic(probs, outcomes)
	if err == nil {
		return cal
	}
	return fitSigmoid(probs, outcomes)
}

// fitIsotonic runs the pool-adjacent-violators algorithm on outcomes
// ordered by raw probability.
func fitIsotonic(probs []float64, outcomes []float64) (Calibrator, error) {
	if len(probs) < minIsotonicSamples {
		return Calibrator{}, errCalibrationInfeasible
	}

	positives, negatives := 0, 0
	for _, y := range outcomes {
		if y > 0.5 {
			positives++
		} else {
			negatives++
		}
	}
	if positives == 0 || negatives == 0 {
		return Calibrator{}, errCalibrationInfeasible
	}

	order := make([]int, len(probs))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool {
		if probs[order[i]] != probs[order[j]] {
			return probs[order[i]] < probs[order[j]]
		}
		return outcomes[order[i]] < outcomes[order[j]]
	})

	type block struct {
		sum    float64
		weight float64
		minX   float64
		maxX   float64
	}

	var blocks []block
	for _, idx := range order {
		blocks = append(blocks, block{
			sum:    outcomes[idx],
			weight: 1,
			minX:   probs[idx],
			maxX:   probs[idx],
		})
		// Pool adjacent violators.
		for len(blocks) >= 2 {
			last := len(blocks) - 1
			if blocks[last-1].sum/blocks[last-1].weight <= blocks[last].sum/blocks[last].weight {
				break
			}
			blocks[last-1] = block{
				sum:    blocks[last-1].sum + blocks[last].sum,
				weight: blocks[last-1].weight + blocks[last].weight,
				minX:   blocks[last-1].minX,
				maxX:   blocks[last].maxX,
			}
			blocks = blocks[:last]
		}
	}

	thresholds := make([]float64, 0, 2*len(blocks))
	values := make([]float64, 0, 2*len(blocks))
	for _, bl := range blocks {
		v := bl.sum / bl.weight
		thresholds = append(thresholds, bl.minX)
		values = append(values, v)
		if bl.maxX > bl.minX {
			thresholds = append(thresholds, bl.maxX)
			values = append(values, v)
		}
	}

	return Calibrator{Method: methodIsotonic, Thresholds: thresholds, Values: values}, nil
}

// fitSigmoid performs Platt scaling with prior-corrected targets, fitted
// by Newton's method. It is defined even for tiny or one-sided samples.
func fitSigmoid(probs []float64, outcomes []float64) Calibrator {
	positives, negatives := 0.0, 0.0
	for _, y := range outcomes {
		if y > 0.5 {
			positives++
		} else {
			negatives++
		}
	}

	hiTarget := (positives + 1) / (positives + 2)
	loTarget := 1 / (negatives + 2)

	targets := make([]float64, len(outcomes))
	for i, y := range outcomes {
		if y > 0.5 {
			targets[i] = hiTarget
		} else {
			targets[i] = loTarget
		}
	}

	// Newton iterations on the two-parameter log-likelihood.
	a, b := 0.0, math.Log((negatives+1)/(positives+1))
	for iter := 0; iter < 100; iter++ {
		var g1, g2, h11, h12, h22 float64
		for i, f := range probs {
			fApB := a*f + b
			var p float64
			if fApB >= 0 {
				p = math.Exp(-fApB) / (1 + math.Exp(-fApB))
			} else {
				p = 1 / (1 + math.Exp(fApB))
			}
			d1 := targets[i] - p
			d2 := p * (1 - p)
			g1 += f * d1
			g2 += d1
			h11 += f * f * d2
			h12 += f * d2
			h22 += d2
		}

		if math.Abs(g1) < 1e-8 && math.Abs(g2) < 1e-8 {
			break
		}

		// Regularized Newton step.
		h11 += 1e-10
		h22 += 1e-10
		det := h11*h22 - h12*h12
		if det == 0 {
			break
		}
		a -= (h22*g1 - h12*g2) / det
		b -= (-h12*g1 + h11*g2) / det
	}

	return Calibrator{Method: methodSigmoid, A: a, B: b}
}
