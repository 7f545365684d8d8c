package boost

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

// Config holds the boosting hyperparameters.
type Config struct {
	Rounds          int
	MaxDepth        int
	MinLeafSamples  int
	LearningRate    float64
	FeatureFraction float64
	Seed            int64
}

// DefaultConfig returns hyperparameters that behave well on the small,
// imbalanced corpora typical of personal transaction histories.
func DefaultConfig() Config {
	return Config{
		Rounds:          60,
		MaxDepth:        4,
		MinLeafSamples:  3,
		LearningRate:    0.1,
		FeatureFraction: 0.8,
		Seed:            42,
	}
}

// Model is a fitted multiclass gradient-boosted tree ensemble. All fields
// are exported so the model serializes as-is with encoding/gob.
type Model struct {
	Config      Config
	Trees       [][]*Tree // Trees[round][class]
	BaseScores  []float64 // per-class prior log-odds
	Importances []float64 // accumulated split gains per feature, normalized
	NumClasses  int
	NumFeatures int
}

// Fit trains the ensemble on a dense matrix and integer class labels in
// [0, numClasses). Training is deterministic for a fixed Config.Seed.
func Fit(matrix [][]float64, labels []int, numClasses int, cfg Config) (*Model, error) {
	if len(matrix) == 0 {
		return nil, fmt.Errorf("empty training matrix")
	}
	if len(matrix) != len(labels) {
		return nil, fmt.Errorf("matrix rows %d do not match label count %d", len(matrix), len(labels))
	}
	if numClasses < 2 {
		return nil, fmt.Errorf("need at least 2 classes, got %d", numClasses)
	}

	n := len(matrix)
	d := len(matrix[0])

	model := &Model{
		Config:      cfg,
		BaseScores:  classPriors(labels, n, numClasses),
		Importances: make([]float64, d),
		NumClasses:  numClasses,
		NumFeatures: d,
	}

	// Raw scores, updated additively each round.
	scores := make([][]float64, n)
	for i := range scores {
		scores[i] = make([]float64, numClasses)
		copy(scores[i], model.BaseScores)
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	grad := make([]float64, n)
	hess := make([]float64, n)
	allSamples := make([]int, n)
	for i := range allSamples {
		allSamples[i] = i
	}

	for round := 0; round < cfg.Rounds; round++ {
		roundTrees := make([]*Tree, numClasses)

		probs := make([][]float64, n)
		for i := range probs {
			probs[i] = softmaxRow(scores[i])
		}

		for k := 0; k < numClasses; k++ {
			for i := 0; i < n; i++ {
				y := 0.0
				if labels[i] == k {
					y = 1.0
				}
				p := probs[i][k]
				grad[i] = y - p
				hess[i] = math.Max(p*(1-p), 1e-6)
			}

			builder := &treeBuilder{
				matrix:   matrix,
				grad:     grad,
				hess:     hess,
				features: sampleFeatures(rng, d, cfg.FeatureFraction),
				gains:    model.Importances,
				maxDepth: cfg.MaxDepth,
				minLeaf:  cfg.MinLeafSamples,
			}
			roundTrees[k] = builder.build(allSamples)

			for i := 0; i < n; i++ {
				scores[i][k] += cfg.LearningRate * roundTrees[k].Predict(matrix[i])
			}
		}

		model.Trees = append(model.Trees, roundTrees)
	}

	if total := floats.Sum(model.Importances); total > 0 {
		floats.Scale(1/total, model.Importances)
	}

	return model, nil
}

// PredictScores returns the raw additive scores per class for one sample.
func (m *Model) PredictScores(x []float64) []float64 {
	scores := make([]float64, m.NumClasses)
	copy(scores, m.BaseScores)
	for _, roundTrees := range m.Trees {
		for k, tree := range roundTrees {
			scores[k] += m.Config.LearningRate * tree.Predict(x)
		}
	}
	return scores
}

// PredictProba returns the softmax probability row for one sample.
func (m *Model) PredictProba(x []float64) []float64 {
	return softmaxRow(m.PredictScores(x))
}

// FeatureImportances returns the normalized split-gain importance per
// feature column.
func (m *Model) FeatureImportances() []float64 {
	out := make([]float64, len(m.Importances))
	copy(out, m.Importances)
	return out
}

// classPriors computes initial per-class log-odds from label frequencies.
func classPriors(labels []int, n, numClasses int) []float64 {
	counts := make([]float64, numClasses)
	for _, l := range labels {
		counts[l]++
	}
	priors := make([]float64, numClasses)
	for k := range priors {
		// Laplace-smoothed so empty classes stay finite.
		priors[k] = math.Log((counts[k] + 1) / float64(n+numClasses))
	}
	return priors
}

// sampleFeatures picks a deterministic random subset of feature columns,
// returned in ascending order.
func sampleFeatures(rng *rand.Rand, d int, fraction float64) []int {
	if fraction <= 0 || fraction >= 1 {
		all := make([]int, d)
		for i := range all {
			all[i] = i
		}
		return all
	}

	count := int(fraction * float64(d))
	if count < 1 {
		count = 1
	}

	perm := rng.Perm(d)[:count]
	features := make([]int, count)
	copy(features, perm)
	// Ascending order keeps the split search deterministic.
	for i := 1; i < len(features); i++ {
		for j := i; j > 0 && features[j] < features[j-1]; j-- {
			features[j], features[j-1] = features[j-1], features[j]
		}
	}
	return features
}

func softmaxRow(scores []float64) []float64 {
	maxScore := floats.Max(scores)
	probs := make([]float64, len(scores))
	var total float64
	for i, s := range scores {
		probs[i] = math.Exp(s - maxScore)
		total += probs[i]
	}
	for i := range probs {
		probs[i] /= total
	}
	return probs
}
