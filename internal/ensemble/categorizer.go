// Package ensemble combines the merchant rule store, the structured
// classifier, and the text-only classifier into a single categorizer with
// weighted probability fusion.
package ensemble

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/Veraticus/the-mentat-must-flow/internal/common"
	"github.com/Veraticus/the-mentat-must-flow/internal/feature"
	"github.com/Veraticus/the-mentat-must-flow/internal/model"
	"github.com/Veraticus/the-mentat-must-flow/internal/rules"
	"github.com/Veraticus/the-mentat-must-flow/internal/structclf"
	"github.com/Veraticus/the-mentat-must-flow/internal/textclf"
	"github.com/Veraticus/the-mentat-must-flow/internal/validate"
)

// Config controls training gates and prediction behavior.
type Config struct {
	MinSamples         int     // labeled transactions required overall
	MinPerCategory     int     // samples required for a category to train
	Folds              int     // cross-validation folds for the summary
	Seed               int64   // fixes every stochastic step
	ShortcutConfidence float64 // rule confidence above which classifiers are skipped
	HoldoutShare       float64 // share of the corpus held out for the weight search
	TopFeatureCount    int     // importances reported in the summary
	Structured         structclf.Config
	Text               textclf.VectorizerConfig
}

// DefaultConfig returns the production training settings.
func DefaultConfig() Config {
	return Config{
		MinSamples:         50,
		MinPerCategory:     3,
		Folds:              validate.DefaultFolds,
		Seed:               validate.DefaultSeed,
		ShortcutConfidence: 0.95,
		HoldoutShare:       0.2,
		TopFeatureCount:    10,
		Structured:         structclf.DefaultConfig(),
		Text:               textclf.DefaultVectorizerConfig(),
	}
}

// Categorizer is a fully trained ensemble. It is immutable after Train
// returns, so concurrent predictions need no locking; retraining builds a
// fresh Categorizer and swaps it in via Handle.
type Categorizer struct {
	cfg        Config
	rules      *rules.Store
	structured *structclf.Classifier
	text       *textclf.Classifier
	classes    []string
	weights    validate.Weights
	summary    model.TrainingSummary
}

// ItemError reports a single transaction that could not be predicted
// within a batch.
type ItemError struct {
	Err   error
	Index int
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("transaction %d: %v", e.Index, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }

// BatchResult carries the successful predictions of a batch alongside the
// per-item failures; one bad record never aborts the rest.
type BatchResult struct {
	Predictions []model.Prediction
	Failures    []ItemError
}

// Train fits the whole ensemble from labeled history: rule store refresh,
// weight search on a stratified holdout, then both classifiers on the
// full eligible corpus. It either returns a complete trained Categorizer
// or an error with nothing retained.
func Train(cfg Config, history []model.Transaction) (*Categorizer, error) {
	var labeled []model.Transaction
	for _, txn := range history {
		if txn.Category != "" {
			labeled = append(labeled, txn)
		}
	}
	if len(labeled) < cfg.MinSamples {
		return nil, &common.TrainingDataError{Samples: len(labeled), MinSamples: cfg.MinSamples}
	}

	counts := make(map[string]int)
	for _, txn := range labeled {
		counts[txn.Category]++
	}
	classes := eligibleCategories(counts, cfg.MinPerCategory)
	if len(classes) < 2 {
		return nil, &common.TrainingDataError{
			Samples:     len(labeled),
			Categories:  len(classes),
			PerCategory: cfg.MinPerCategory,
		}
	}

	inClass := make(map[string]struct{}, len(classes))
	for _, cls := range classes {
		inClass[cls] = struct{}{}
	}
	var corpus []model.Transaction
	for _, txn := range labeled {
		if _, ok := inClass[txn.Category]; ok {
			corpus = append(corpus, txn)
		}
	}

	records := feature.ExtractBatch(corpus)
	labels := make([]string, len(corpus))
	for i, txn := range corpus {
		labels[i] = txn.Category
	}

	ruleStore := rules.NewStore()
	created := ruleStore.Refresh(history, rules.DefaultMinOccurrences)
	slog.Info("merchant rules refreshed", "rules", created)

	weights := searchWeights(cfg, records, labels, classes)

	structured := structclf.New(cfg.Structured)
	if err := structured.Fit(records, labels); err != nil {
		return nil, fmt.Errorf("fitting structured classifier: %w", err)
	}
	text := textclf.New(cfg.Text)
	if err := text.Fit(records, labels); err != nil {
		return nil, fmt.Errorf("fitting text classifier: %w", err)
	}

	c := &Categorizer{
		cfg:        cfg,
		rules:      ruleStore,
		structured: structured,
		text:       text,
		classes:    classes,
		weights:    weights,
	}
	c.summary = c.buildSummary(records, labels)

	slog.Info("ensemble trained",
		"samples", len(corpus),
		"categories", len(classes),
		"structured_weight", weights.Structured,
		"text_weight", weights.Text,
	)
	return c, nil
}

// eligibleCategories returns the sorted categories meeting the
// per-category sample minimum.
func eligibleCategories(counts map[string]int, minPerCategory int) []string {
	var classes []string
	for cls, count := range counts {
		if count >= minPerCategory {
			classes = append(classes, cls)
		}
	}
	sort.Strings(classes)
	return classes
}

// searchWeights fits throwaway copies of both classifiers on a stratified
// train split and grid-searches the fusion weight on the holdout. Any
// failure falls back to the fixed default weights rather than surfacing.
func searchWeights(cfg Config, records []feature.Record, labels []string, classes []string) validate.Weights {
	trainIdx, holdoutIdx, err := validate.StratifiedSplit(labels, cfg.HoldoutShare, cfg.Seed)
	if err != nil {
		slog.Warn("weight search holdout split infeasible, using default weights", "error", err)
		return validate.DefaultWeights()
	}

	trainRecords := make([]feature.Record, len(trainIdx))
	trainLabels := make([]string, len(trainIdx))
	for i, idx := range trainIdx {
		trainRecords[i] = records[idx]
		trainLabels[i] = labels[idx]
	}
	holdoutRecords := make([]feature.Record, len(holdoutIdx))
	yTrue := make([]int, len(holdoutIdx))
	classIndex := make(map[string]int, len(classes))
	for i, cls := range classes {
		classIndex[cls] = i
	}
	for i, idx := range holdoutIdx {
		holdoutRecords[i] = records[idx]
		yTrue[i] = classIndex[labels[idx]]
	}

	structuredRows, err := fitPredictStructured(cfg, trainRecords, trainLabels, holdoutRecords, classes)
	if err != nil {
		slog.Warn("weight search structured fit failed, using default weights", "error", err)
		return validate.DefaultWeights()
	}
	textRows, err := fitPredictText(cfg, trainRecords, trainLabels, holdoutRecords, classes)
	if err != nil {
		slog.Warn("weight search text fit failed, using default weights", "error", err)
		return validate.DefaultWeights()
	}

	return validate.SearchWeights(structuredRows, textRows, yTrue, classes)
}

func fitPredictStructured(cfg Config, trainRecords []feature.Record, trainLabels []string, holdout []feature.Record, classes []string) ([][]float64, error) {
	clf := structclf.New(cfg.Structured)
	if err := clf.Fit(trainRecords, trainLabels); err != nil {
		return nil, err
	}
	rows, err := clf.PredictProba(holdout)
	if err != nil {
		return nil, err
	}
	return alignRows(rows, clf.Classes(), classes), nil
}

func fitPredictText(cfg Config, trainRecords []feature.Record, trainLabels []string, holdout []feature.Record, classes []string) ([][]float64, error) {
	clf := textclf.New(cfg.Text)
	if err := clf.Fit(trainRecords, trainLabels); err != nil {
		return nil, err
	}
	rows, err := clf.PredictProba(holdout)
	if err != nil {
		return nil, err
	}
	return alignRows(rows, clf.Classes(), classes), nil
}

// alignRows remaps probability rows from a classifier's own class
// ordering onto the shared ordering. Classes the classifier never saw get
// probability zero and each row is renormalized.
func alignRows(rows [][]float64, from, to []string) [][]float64 {
	if equalStrings(from, to) {
		return rows
	}

	fromIndex := make(map[string]int, len(from))
	for i, cls := range from {
		fromIndex[cls] = i
	}

	aligned := make([][]float64, len(rows))
	for i, row := range rows {
		out := make([]float64, len(to))
		var sum float64
		for k, cls := range to {
			if j, ok := fromIndex[cls]; ok {
				out[k] = row[j]
				sum += row[j]
			}
		}
		if sum > 0 {
			floats.Scale(1/sum, out)
		}
		aligned[i] = out
	}
	return aligned
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// buildSummary cross-validates the fused ensemble for the training
// report. The fold count shrinks to the smallest class size so small
// categories keep the metrics computable; only a class below two samples
// leaves the summary with weights and corpus shape alone.
func (c *Categorizer) buildSummary(records []feature.Record, labels []string) model.TrainingSummary {
	summary := model.TrainingSummary{
		TrainedAt:        time.Now().UTC(),
		ModelVersion:     ModelVersion,
		StructuredWeight: c.weights.Structured,
		TextWeight:       c.weights.Text,
		Samples:          len(records),
		Categories:       len(c.classes),
	}

	if top, err := c.structured.TopFeatures(c.cfg.TopFeatureCount); err == nil {
		summary.TopFeatures = top
	}

	folds := summaryFolds(labels, c.cfg.Folds)
	metrics, err := validate.CrossValidate(labels, c.classes, folds, c.cfg.Seed,
		func(trainIdx, holdoutIdx []int) ([][]float64, error) {
			trainRecords := make([]feature.Record, len(trainIdx))
			trainLabels := make([]string, len(trainIdx))
			for i, idx := range trainIdx {
				trainRecords[i] = records[idx]
				trainLabels[i] = labels[idx]
			}
			holdout := make([]feature.Record, len(holdoutIdx))
			for i, idx := range holdoutIdx {
				holdout[i] = records[idx]
			}

			structuredRows, err := fitPredictStructured(c.cfg, trainRecords, trainLabels, holdout, c.classes)
			if err != nil {
				return nil, err
			}
			textRows, err := fitPredictText(c.cfg, trainRecords, trainLabels, holdout, c.classes)
			if err != nil {
				return nil, err
			}

			fused := make([][]float64, len(holdout))
			for i := range holdout {
				fused[i] = c.weights.FuseRow(structuredRows[i], textRows[i])
			}
			return fused, nil
		})
	if err != nil {
		slog.Warn("cross-validation skipped for training summary", "error", err)
		return summary
	}

	summary.Accuracy = metrics.Accuracy
	summary.MacroF1 = metrics.MacroF1
	summary.PrecisionPerCategory = metrics.PrecisionPerClass
	summary.RecallPerCategory = metrics.RecallPerClass
	return summary
}

// summaryFolds caps the fold count at the smallest class size so a
// category of three samples still gets three-fold metrics instead of
// none.
func summaryFolds(labels []string, folds int) int {
	counts := make(map[string]int)
	for _, label := range labels {
		counts[label]++
	}
	for _, count := range counts {
		if count < folds {
			folds = count
		}
	}
	return folds
}

// Classes returns the shared class ordering of this ensemble.
func (c *Categorizer) Classes() []string {
	out := make([]string, len(c.classes))
	copy(out, c.classes)
	return out
}

// Weights returns the fitted fusion weights.
func (c *Categorizer) Weights() validate.Weights { return c.weights }

// Summary returns the training report captured when this ensemble was
// fitted.
func (c *Categorizer) Summary() model.TrainingSummary { return c.summary }

// Rules exposes the merchant rule store for rule management tooling.
func (c *Categorizer) Rules() *rules.Store { return c.rules }

// WithRules returns a copy of the categorizer backed by a different rule
// store. The classifiers are shared; rule edits swap in the copy through
// a Handle rather than mutating the active model.
func (c *Categorizer) WithRules(rs *rules.Store) *Categorizer {
	clone := *c
	clone.rules = rs
	return &clone
}

// Predict classifies a batch. Per-item failures are collected in the
// result instead of aborting the remaining transactions.
func (c *Categorizer) Predict(txns []model.Transaction) *BatchResult {
	result := &BatchResult{}
	for i := range txns {
		pred, err := c.predictOne(&txns[i])
		if err != nil {
			result.Failures = append(result.Failures, ItemError{Index: i, Err: err})
			continue
		}
		result.Predictions = append(result.Predictions, pred)
	}
	return result
}

// predictOne runs the prediction pipeline for a single transaction: rule
// shortcut first, then weighted fusion of both classifiers.
func (c *Categorizer) predictOne(txn *model.Transaction) (model.Prediction, error) {
	id := txn.ID
	if id == "" {
		id = txn.Identity()
	}

	if match := c.rules.Lookup(txn.Name); match != nil && match.Confidence > c.cfg.ShortcutConfidence {
		return model.Prediction{
			TransactionID: id,
			Category:      match.Category,
			Confidence:    match.Confidence,
			Contributions: map[string]float64{"merchant_rule": 1.0},
		}, nil
	}

	rec := feature.Extract(*txn)
	structuredRows, err := c.structured.PredictProba([]feature.Record{rec})
	if err != nil {
		return model.Prediction{}, fmt.Errorf("structured prediction: %w", err)
	}
	textRows, err := c.text.PredictProba([]feature.Record{rec})
	if err != nil {
		return model.Prediction{}, fmt.Errorf("text prediction: %w", err)
	}

	sRow := alignRows(structuredRows, c.structured.Classes(), c.classes)[0]
	tRow := alignRows(textRows, c.text.Classes(), c.classes)[0]
	fused := c.weights.FuseRow(sRow, tRow)

	best := floats.MaxIdx(fused)
	return model.Prediction{
		TransactionID: id,
		Category:      c.classes[best],
		Confidence:    fused[best],
		Contributions: map[string]float64{
			"structured_model":  c.weights.Structured * sRow[best],
			"text_model":        c.weights.Text * tRow[best],
			"structured_weight": c.weights.Structured,
			"text_weight":       c.weights.Text,
		},
	}, nil
}

// Explain returns the top features driving the structured classifier's
// view of one transaction.
func (c *Categorizer) Explain(txn model.Transaction, topK int) ([]structclf.Contribution, error) {
	return c.structured.Explain(feature.Extract(txn), topK)
}
