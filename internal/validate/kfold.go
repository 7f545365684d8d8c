// Package validate provides stratified data splitting, classification
// metrics, and the ensemble weight search used during training.
package validate

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/Veraticus/the-mentat-must-flow/internal/common"
)

// DefaultFolds is the standard fold count for cross-validation.
const DefaultFolds = 5

// DefaultSeed fixes the shuffling so repeated runs on the same data
// produce the same folds.
const DefaultSeed = 42

// StratifiedKFold partitions sample indices into k folds that each
// preserve the overall class proportions. Samples of each class are
// shuffled with the given seed and dealt round-robin, so every class with
// at least k members appears in every fold.
func StratifiedKFold(labels []string, k int, seed int64) ([][]int, error) {
	if k < 2 {
		return nil, fmt.Errorf("need at least 2 folds, got %d: %w", k, common.ErrInvalidConfig)
	}

	byClass := groupByClass(labels)
	for _, cls := range sortedClasses(byClass) {
		if len(byClass[cls]) < k {
			return nil, &common.TrainingDataError{
				Samples:     len(labels),
				Categories:  len(byClass),
				MinCategory: len(byClass[cls]),
				PerCategory: k,
			}
		}
	}

	rng := rand.New(rand.NewSource(seed))
	folds := make([][]int, k)
	for _, cls := range sortedClasses(byClass) {
		members := byClass[cls]
		rng.Shuffle(len(members), func(i, j int) {
			members[i], members[j] = members[j], members[i]
		})
		for i, idx := range members {
			folds[i%k] = append(folds[i%k], idx)
		}
	}
	for _, fold := range folds {
		sort.Ints(fold)
	}
	return folds, nil
}

// StratifiedSplit divides sample indices into a train and holdout set
// with roughly holdoutShare of each class in the holdout. Every class
// needs at least two members so both sides see it; callers fall back to
// defaults when that cannot be met.
func StratifiedSplit(labels []string, holdoutShare float64, seed int64) (train, holdout []int, err error) {
	if holdoutShare <= 0 || holdoutShare >= 1 {
		return nil, nil, fmt.Errorf("holdout share %.2f out of range: %w", holdoutShare, common.ErrInvalidConfig)
	}

	byClass := groupByClass(labels)
	rng := rand.New(rand.NewSource(seed))
	for _, cls := range sortedClasses(byClass) {
		members := byClass[cls]
		if len(members) < 2 {
			return nil, nil, &common.TrainingDataError{
				Samples:     len(labels),
				Categories:  len(byClass),
				MinCategory: len(members),
				PerCategory: 2,
			}
		}
		rng.Shuffle(len(members), func(i, j int) {
			members[i], members[j] = members[j], members[i]
		})

		take := int(float64(len(members)) * holdoutShare)
		if take < 1 {
			take = 1
		}
		if take >= len(members) {
			take = len(members) - 1
		}
		holdout = append(holdout, members[:take]...)
		train = append(train, members[take:]...)
	}

	sort.Ints(train)
	sort.Ints(holdout)
	return train, holdout, nil
}

// TrainIndices returns all indices outside the given fold, for use as the
// training set when that fold is held out.
func TrainIndices(folds [][]int, holdout int, total int) []int {
	inHoldout := make(map[int]struct{}, len(folds[holdout]))
	for _, idx := range folds[holdout] {
		inHoldout[idx] = struct{}{}
	}
	train := make([]int, 0, total-len(folds[holdout]))
	for i := 0; i < total; i++ {
		if _, held := inHoldout[i]; !held {
			train = append(train, i)
		}
	}
	return train
}

func groupByClass(labels []string) map[string][]int {
	byClass := make(map[string][]int)
	for i, l := range labels {
		byClass[l] = append(byClass[l], i)
	}
	return byClass
}

func sortedClasses(byClass map[string][]int) []string {
	classes := make([]string, 0, len(byClass))
	for cls := range byClass {
		classes = append(classes, cls)
	}
	sort.Strings(classes)
	return classes
}
