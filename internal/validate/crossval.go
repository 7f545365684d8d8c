package validate

import (
	"fmt"
	"log/slog"
)

// FoldPredictFunc trains a fresh model on the train indices and returns
// one probability row per holdout index, aligned to the class ordering
// the caller passed to CrossValidate.
type FoldPredictFunc func(train, holdout []int) ([][]float64, error)

// CrossValidate runs stratified k-fold cross-validation and evaluates the
// pooled out-of-fold predictions, so every sample is scored exactly once
// by a model that never saw it.
func CrossValidate(labels []string, classes []string, k int, seed int64, predict FoldPredictFunc) (Metrics, error) {
	folds, err := StratifiedKFold(labels, k, seed)
	if err != nil {
		return Metrics{}, err
	}

	classIndex := make(map[string]int, len(classes))
	for i, cls := range classes {
		classIndex[cls] = i
	}

	var pooledRows [][]float64
	var pooledTrue []int
	for f := range folds {
		train := TrainIndices(folds, f, len(labels))
		rows, err := predict(train, folds[f])
		if err != nil {
			return Metrics{}, fmt.Errorf("fold %d: %w", f, err)
		}
		if len(rows) != len(folds[f]) {
			return Metrics{}, fmt.Errorf("fold %d: got %d rows for %d holdout samples", f, len(rows), len(folds[f]))
		}

		for i, idx := range folds[f] {
			pooledRows = append(pooledRows, rows[i])
			pooledTrue = append(pooledTrue, classIndex[labels[idx]])
		}
		slog.Debug("cross-validation fold scored", "fold", f, "holdout_samples", len(folds[f]))
	}

	return Evaluate(pooledRows, pooledTrue, classes), nil
}
