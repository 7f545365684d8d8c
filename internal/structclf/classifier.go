package structclf

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math/rand"
	"sort"

	"github.com/Veraticus/the-mentat-must-flow/internal/boost"
	"github.com/Veraticus/the-mentat-must-flow/internal/common"
	"github.com/Veraticus/the-mentat-must-flow/internal/feature"
)

const probEpsilon = 1e-9

// Config bundles the boosting and text vectorizer settings.
type Config struct {
	Boost      boost.Config
	Vectorizer CharVectorizerConfig
}

// DefaultConfig returns the production settings for the structured
// classifier.
func DefaultConfig() Config {
	return Config{
		Boost:      boost.DefaultConfig(),
		Vectorizer: DefaultCharVectorizerConfig(),
	}
}

// Classifier predicts categories from the full feature representation:
// the numeric block plus a character n-gram text block, scored by a
// gradient boosted tree ensemble with per-class probability calibration.
type Classifier struct {
	cfg         Config
	vec         *CharVectorizer
	model       *boost.Model
	calibrators []Calibrator
	classes     []string
	fitted      bool
}

// Contribution names one feature's share of a prediction's explanation.
type Contribution struct {
	Feature string
	Weight  float64
}

// New returns an untrained classifier.
func New(cfg Config) *Classifier {
	return &Classifier{cfg: cfg}
}

// Fit trains the vectorizer, the tree ensemble, and the per-class
// calibrators. Calibration pairs come from an internal two-way stratified
// split so calibrated probabilities are fitted on predictions the final
// model never trained on.
func (c *Classifier) Fit(records []feature.Record, labels []string) error {
	if len(records) == 0 || len(records) != len(labels) {
		return fmt.Errorf("structclf: %d records for %d labels: %w",
			len(records), len(labels), common.ErrInvalidConfig)
	}

	classes := uniqueSorted(labels)
	if len(classes) < 2 {
		return &common.TrainingDataError{
			Samples:    len(records),
			Categories: len(classes),
		}
	}

	classIndex := make(map[string]int, len(classes))
	for i, cls := range classes {
		classIndex[cls] = i
	}
	y := make([]int, len(labels))
	for i, l := range labels {
		y[i] = classIndex[l]
	}

	vec := NewCharVectorizer(c.cfg.Vectorizer)
	docs := make([]string, len(records))
	for i := range records {
		docs[i] = records[i].CombinedText
	}
	vec.Fit(docs)

	matrix := make([][]float64, len(records))
	for i := range records {
		matrix[i] = buildRow(&records[i], vec)
	}

	calProbs, calOutcomes := collectCalibrationPairs(matrix, y, len(classes), c.cfg.Boost)

	model, err := boost.Fit(matrix, y, len(classes), c.cfg.Boost)
	if err != nil {
		return fmt.Errorf("fitting tree ensemble: %w", err)
	}

	calibrators := make([]Calibrator, len(classes))
	for k := range classes {
		if len(calProbs[k]) == 0 {
			calibrators[k] = Calibrator{Method: methodIdentity}
			continue
		}
		calibrators[k] = fitCalibrator(calProbs[k], calOutcomes[k])
	}

	c.vec = vec
	c.model = model
	c.calibrators = calibrators
	c.classes = classes
	c.fitted = true
	return nil
}

// Classes returns the label ordering of probability rows.
func (c *Classifier) Classes() []string {
	out := make([]string, len(c.classes))
	copy(out, c.classes)
	return out
}

// PredictProba returns one calibrated probability row per record, ordered
// by Classes.
func (c *Classifier) PredictProba(records []feature.Record) ([][]float64, error) {
	if !c.fitted {
		return nil, common.ErrNotTrained
	}

	rows := make([][]float64, len(records))
	for i := range records {
		raw := c.model.PredictProba(buildRow(&records[i], c.vec))
		rows[i] = c.calibrateRow(raw)
	}
	return rows, nil
}

// calibrateRow applies the per-class calibrators and renormalizes so the
// row remains a probability distribution.
func (c *Classifier) calibrateRow(raw []float64) []float64 {
	row := make([]float64, len(raw))
	var sum float64
	for k, p := range raw {
		v := c.calibrators[k].Calibrate(p)
		if v < probEpsilon {
			v = probEpsilon
		}
		if v > 1 {
			v = 1
		}
		row[k] = v
		sum += v
	}
	for k := range row {
		row[k] /= sum
	}
	return row
}

// Explain ranks the features driving a record's score: global ensemble
// importance scaled by the feature's magnitude in this record, normalized
// over the returned entries.
func (c *Classifier) Explain(rec feature.Record, topK int) ([]Contribution, error) {
	if !c.fitted {
		return nil, common.ErrNotTrained
	}
	if topK <= 0 {
		return nil, nil
	}

	x := buildRow(&rec, c.vec)
	importances := c.model.FeatureImportances()
	names := c.featureNames()

	contribs := make([]Contribution, 0, len(x))
	for j := range x {
		w := importances[j] * abs(x[j])
		if w <= 0 {
			continue
		}
		contribs = append(contribs, Contribution{Feature: names[j], Weight: w})
	}
	sort.Slice(contribs, func(i, j int) bool {
		if contribs[i].Weight != contribs[j].Weight {
			return contribs[i].Weight > contribs[j].Weight
		}
		return contribs[i].Feature < contribs[j].Feature
	})
	if len(contribs) > topK {
		contribs = contribs[:topK]
	}

	var total float64
	for _, con := range contribs {
		total += con.Weight
	}
	if total > 0 {
		for i := range contribs {
			contribs[i].Weight /= total
		}
	}
	return contribs, nil
}

// TopFeatures returns the k globally most important features and their
// normalized importance shares.
func (c *Classifier) TopFeatures(k int) (map[string]float64, error) {
	if !c.fitted {
		return nil, common.ErrNotTrained
	}

	importances := c.model.FeatureImportances()
	names := c.featureNames()

	order := make([]int, len(importances))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool {
		if importances[order[i]] != importances[order[j]] {
			return importances[order[i]] > importances[order[j]]
		}
		return names[order[i]] < names[order[j]]
	})

	top := make(map[string]float64, k)
	for _, idx := range order {
		if len(top) == k {
			break
		}
		if importances[idx] <= 0 {
			break
		}
		top[names[idx]] = importances[idx]
	}
	return top, nil
}

// featureNames returns column names for the combined matrix: numeric
// names followed by the text vocabulary.
func (c *Classifier) featureNames() []string {
	names := feature.NumericFeatureNames()
	for _, term := range c.vec.Vocabulary {
		names = append(names, "text_"+term)
	}
	return names
}

// state is the gob envelope for a fitted classifier.
type state struct {
	Vectorizer  *CharVectorizer
	Model       *boost.Model
	Calibrators []Calibrator
	Classes     []string
}

// SaveBytes serializes the fitted classifier.
func (c *Classifier) SaveBytes() ([]byte, error) {
	if !c.fitted {
		return nil, common.ErrNotTrained
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(state{
		Vectorizer:  c.vec,
		Model:       c.model,
		Calibrators: c.calibrators,
		Classes:     c.classes,
	}); err != nil {
		return nil, fmt.Errorf("encoding structured classifier: %w", err)
	}
	return buf.Bytes(), nil
}

// Restore rebuilds a fitted classifier from SaveBytes output.
func Restore(blob []byte, cfg Config) (*Classifier, error) {
	var st state
	if err := gob.NewDecoder(bytes.NewReader(blob)).Decode(&st); err != nil {
		return nil, fmt.Errorf("decoding structured classifier: %w", err)
	}
	return &Classifier{
		cfg:         cfg,
		vec:         st.Vectorizer,
		model:       st.Model,
		calibrators: st.Calibrators,
		classes:     st.Classes,
		fitted:      true,
	}, nil
}

// buildRow concatenates the numeric block with the text block.
func buildRow(rec *feature.Record, vec *CharVectorizer) []float64 {
	row := rec.Vector()
	return append(row, vec.Transform(rec.CombinedText)...)
}

// collectCalibrationPairs predicts each half of a stratified two-way
// split with a model trained on the other half and gathers per-class
// (probability, outcome) pairs. Classes too small to split simply yield
// fewer pairs; calibration then falls back per class.
func collectCalibrationPairs(matrix [][]float64, y []int, numClasses int, cfg boost.Config) ([][]float64, [][]float64) {
	probs := make([][]float64, numClasses)
	outcomes := make([][]float64, numClasses)

	folds := stratifiedHalves(y, cfg.Seed)
	for f := 0; f < 2; f++ {
		holdout := folds[f]
		if len(holdout) == 0 {
			continue
		}
		trainIdx := folds[1-f]

		trainMatrix := make([][]float64, len(trainIdx))
		trainY := make([]int, len(trainIdx))
		for i, idx := range trainIdx {
			trainMatrix[i] = matrix[idx]
			trainY[i] = y[idx]
		}

		model, err := boost.Fit(trainMatrix, trainY, numClasses, cfg)
		if err != nil {
			continue
		}
		for _, idx := range holdout {
			row := model.PredictProba(matrix[idx])
			for k := 0; k < numClasses; k++ {
				probs[k] = append(probs[k], row[k])
				if y[idx] == k {
					outcomes[k] = append(outcomes[k], 1)
				} else {
					outcomes[k] = append(outcomes[k], 0)
				}
			}
		}
	}
	return probs, outcomes
}

// stratifiedHalves deals each class's samples alternately into two folds
// after a seeded shuffle, so both halves see every class that has at
// least two members.
func stratifiedHalves(y []int, seed int64) [2][]int {
	byClass := make(map[int][]int)
	for i, label := range y {
		byClass[label] = append(byClass[label], i)
	}

	classes := make([]int, 0, len(byClass))
	for cls := range byClass {
		classes = append(classes, cls)
	}
	sort.Ints(classes)

	rng := rand.New(rand.NewSource(seed))
	var folds [2][]int
	for _, cls := range classes {
		members := byClass[cls]
		rng.Shuffle(len(members), func(i, j int) {
			members[i], members[j] = members[j], members[i]
		})
		for i, idx := range members {
			folds[i%2] = append(folds[i%2], idx)
		}
	}
	sort.Ints(folds[0])
	sort.Ints(folds[1])
	return folds
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func uniqueSorted(labels []string) []string {
	seen := make(map[string]struct{}, len(labels))
	var out []string
	for _, l := range labels {
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}
