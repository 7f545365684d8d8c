// Package selector picks which predictions a human should review next,
// balancing uncertain predictions against coverage across categories.
package selector

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/Veraticus/the-mentat-must-flow/internal/common"
	"github.com/Veraticus/the-mentat-must-flow/internal/model"
)

// Strategy names a review selection policy.
type Strategy string

// Supported strategies.
const (
	StrategyUncertainty Strategy = "uncertainty"
	StrategyDiversity   Strategy = "diversity"
	StrategyMixed       Strategy = "mixed"
)

// Confidence band boundaries shared with the prediction confidence
// levels.
const (
	highBand   = 0.90
	mediumBand = 0.70
)

// Sampling shares within the uncertainty strategy.
const (
	uncertainLowShare    = 0.7
	uncertainMediumShare = 0.2
)

// mixedUncertaintyShare is the uncertainty portion of the mixed strategy.
const mixedUncertaintyShare = 0.6

// adaptWindow is how many recent review outcomes the adaptive policy
// considers.
const adaptWindow = 20

// minAdaptHistory is the outcome count below which the adaptive policy
// stays on uncertainty sampling.
const minAdaptHistory = 10

// Selector samples predictions for human review. The random source is
// injected so tests and repeated batch runs are reproducible.
type Selector struct {
	rng *rand.Rand
}

// New returns a Selector with a seeded random source.
func New(seed int64) *Selector {
	return &Selector{rng: rand.New(rand.NewSource(seed))}
}

// SelectForReview returns at most n transaction ids chosen by the named
// strategy. The result never contains duplicates.
func (s *Selector) SelectForReview(preds []model.Prediction, n int, strategy Strategy) ([]string, error) {
	if n <= 0 || len(preds) == 0 {
		return nil, nil
	}

	switch strategy {
	case StrategyUncertainty:
		return s.uncertainty(preds, n, newPickSet()), nil
	case StrategyDiversity:
		return s.diversity(preds, n, newPickSet()), nil
	case StrategyMixed:
		return s.mixed(preds, n), nil
	default:
		return nil, fmt.Errorf("%q: %w", strategy, common.ErrUnknownStrategy)
	}
}

// uncertainty takes 70% of n from the lowest-confidence end, 20% randomly
// from the medium band (0.7, 0.9], and the remainder randomly from above
// 0.9 as a quality check. Empty bands are skipped, never padded from
// elsewhere.
func (s *Selector) uncertainty(preds []model.Prediction, n int, picked *pickSet) []string {
	ordered := sortByConfidence(preds)

	var ids []string
	lowQuota := int(float64(n) * uncertainLowShare)
	for _, p := range ordered {
		if len(ids) == lowQuota {
			break
		}
		if picked.add(p.TransactionID) {
			ids = append(ids, p.TransactionID)
		}
	}

	var medium, high []model.Prediction
	for _, p := range ordered {
		if picked.has(p.TransactionID) {
			continue
		}
		switch {
		case p.Confidence > highBand:
			high = append(high, p)
		case p.Confidence > mediumBand:
			medium = append(medium, p)
		}
	}

	mediumQuota := int(float64(n) * uncertainMediumShare)
	ids = append(ids, s.sample(medium, mediumQuota, picked)...)
	ids = append(ids, s.sample(high, n-len(ids), picked)...)

	if len(ids) > n {
		ids = ids[:n]
	}
	return ids
}

// diversity takes an evenly spaced sample (by confidence rank) from each
// predicted category, then fills leftover slots randomly from whatever
// was not picked.
func (s *Selector) diversity(preds []model.Prediction, n int, picked *pickSet) []string {
	byCategory := make(map[string][]model.Prediction)
	for _, p := range preds {
		if picked.has(p.TransactionID) {
			continue
		}
		byCategory[p.Category] = append(byCategory[p.Category], p)
	}
	if len(byCategory) == 0 {
		return nil
	}

	categories := make([]string, 0, len(byCategory))
	for cat := range byCategory {
		categories = append(categories, cat)
	}
	sort.Strings(categories)

	perCategory := n / len(categories)
	if perCategory < 1 {
		perCategory = 1
	}

	var ids []string
	for _, cat := range categories {
		group := sortByConfidence(byCategory[cat])
		take := perCategory
		if take > len(group) {
			take = len(group)
		}
		step := len(group) / take
		if step < 1 {
			step = 1
		}
		for i := 0; i < len(group) && take > 0; i += step {
			if picked.add(group[i].TransactionID) {
				ids = append(ids, group[i].TransactionID)
				take--
			}
		}
	}

	if remaining := n - len(ids); remaining > 0 {
		var rest []model.Prediction
		for _, p := range preds {
			if !picked.has(p.TransactionID) {
				rest = append(rest, p)
			}
		}
		ids = append(ids, s.sample(rest, remaining, picked)...)
	}

	if len(ids) > n {
		ids = ids[:n]
	}
	return ids
}

// mixed takes 60% of n via uncertainty and the rest via diversity over
// what uncertainty left behind.
func (s *Selector) mixed(preds []model.Prediction, n int) []string {
	picked := newPickSet()
	ids := s.uncertainty(preds, int(float64(n)*mixedUncertaintyShare), picked)

	var remaining []model.Prediction
	for _, p := range preds {
		if !picked.has(p.TransactionID) {
			remaining = append(remaining, p)
		}
	}
	ids = append(ids, s.diversity(remaining, n-len(ids), picked)...)

	if len(ids) > n {
		ids = ids[:n]
	}
	return ids
}

// AdaptStrategy picks a strategy from recent review outcomes: frequent
// corrections of high-confidence predictions call for uncertainty
// sampling, a low overall correction rate frees the budget for coverage,
// anything in between mixes both.
func AdaptStrategy(outcomes []model.ReviewOutcome) Strategy {
	if len(outcomes) < minAdaptHistory {
		return StrategyUncertainty
	}

	recent := outcomes
	if len(recent) > adaptWindow {
		recent = recent[len(recent)-adaptWindow:]
	}

	var highConf, highConfCorrected, corrected int
	for _, o := range recent {
		if o.WasCorrected {
			corrected++
		}
		if o.OriginalConfidence > highBand {
			highConf++
			if o.WasCorrected {
				highConfCorrected++
			}
		}
	}

	if highConf > 0 && float64(highConfCorrected)/float64(highConf) > 0.2 {
		return StrategyUncertainty
	}
	if float64(corrected)/float64(len(recent)) < 0.15 {
		return StrategyDiversity
	}
	return StrategyMixed
}

// PriorityScore ranks a single prediction for review: uncertainty
// dominates, boosted by transaction value and merchant novelty.
// merchantSightings is how often this merchant appears in history.
func PriorityScore(pred model.Prediction, amount float64, merchantSightings int) float64 {
	uncertainty := 1 - pred.Confidence
	amountScore := math.Min(1, math.Abs(amount)/1000)

	score := uncertainty*0.6 + amountScore*0.2 + noveltyScore(merchantSightings)*0.2
	return math.Min(1, score)
}

// noveltyScore decreases as a merchant becomes familiar.
func noveltyScore(sightings int) float64 {
	switch {
	case sightings == 0:
		return 1.0
	case sightings <= 2:
		return 0.8
	case sightings <= 5:
		return 0.6
	case sightings <= 10:
		return 0.4
	default:
		return 0.2
	}
}

// sample draws up to n unpicked predictions uniformly at random.
func (s *Selector) sample(pool []model.Prediction, n int, picked *pickSet) []string {
	if n <= 0 || len(pool) == 0 {
		return nil
	}
	if n > len(pool) {
		n = len(pool)
	}

	perm := s.rng.Perm(len(pool))
	var ids []string
	for _, idx := range perm {
		if len(ids) == n {
			break
		}
		if picked.add(pool[idx].TransactionID) {
			ids = append(ids, pool[idx].TransactionID)
		}
	}
	return ids
}

// sortByConfidence orders ascending by confidence with id tiebreaks so
// selection is stable for equal scores.
func sortByConfidence(preds []model.Prediction) []model.Prediction {
	ordered := make([]model.Prediction, len(preds))
	copy(ordered, preds)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Confidence != ordered[j].Confidence {
			return ordered[i].Confidence < ordered[j].Confidence
		}
		return ordered[i].TransactionID < ordered[j].TransactionID
	})
	return ordered
}

type pickSet struct {
	ids map[string]struct{}
}

func newPickSet() *pickSet {
	return &pickSet{ids: make(map[string]struct{})}
}

// add records an id, reporting whether it was new.
func (p *pickSet) add(id string) bool {
	if _, ok := p.ids[id]; ok {
		return false
	}
	p.ids[id] = struct{}{}
	return true
}

func (p *pickSet) has(id string) bool {
	_, ok := p.ids[id]
	return ok
}
