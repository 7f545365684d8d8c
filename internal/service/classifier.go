package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Veraticus/the-mentat-must-flow/internal/common"
	"github.com/Veraticus/the-mentat-must-flow/internal/ensemble"
	"github.com/Veraticus/the-mentat-must-flow/internal/model"
	"github.com/Veraticus/the-mentat-must-flow/internal/rules"
	"github.com/Veraticus/the-mentat-must-flow/internal/selector"
)

// Classifier wires the persistence layer to the ensemble: it trains from
// stored history, classifies pending transactions, and routes review
// work.
type Classifier struct {
	storage Storage
	handle  *ensemble.Handle
	cfg     ensemble.Config
}

// NewClassifier builds the classification service around a storage
// backend.
func NewClassifier(storage Storage, cfg ensemble.Config) *Classifier {
	return &Classifier{
		storage: storage,
		handle:  ensemble.NewHandle(),
		cfg:     cfg,
	}
}

// LoadModel activates the most recently persisted ensemble state. A
// store with no model yet is not an error; the service simply stays
// untrained until the first Train call.
func (c *Classifier) LoadModel(ctx context.Context) error {
	blob, err := c.storage.LoadLatestModelState(ctx)
	if errors.Is(err, common.ErrNotFound) {
		slog.Info("no persisted model found, starting untrained")
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading model state: %w", err)
	}

	restored, err := ensemble.Restore(blob, c.cfg)
	if err != nil {
		return fmt.Errorf("restoring ensemble: %w", err)
	}
	c.handle.Install(restored)
	slog.Info("restored persisted ensemble", "categories", len(restored.Classes()))
	return nil
}

// Train fits a fresh ensemble from all labeled transactions and persists
// the new state. The active model is only replaced after the blob is
// safely stored; a failed fit or persist leaves the previous model
// serving.
func (c *Classifier) Train(ctx context.Context) (model.TrainingSummary, error) {
	history, err := c.storage.GetLabeledTransactions(ctx)
	if err != nil {
		return model.TrainingSummary{}, fmt.Errorf("loading training history: %w", err)
	}

	return c.handle.Train(c.cfg, history, func(cat *ensemble.Categorizer) error {
		blob, err := cat.SaveState()
		if err != nil {
			return fmt.Errorf("serializing trained ensemble: %w", err)
		}
		summary := cat.Summary()
		if err := c.storage.SaveModelState(ctx, summary.ModelVersion, summary.TrainedAt, blob); err != nil {
			return fmt.Errorf("persisting trained ensemble: %w", err)
		}
		return nil
	})
}

// ClassifyPending predicts every transaction without a category and
// stores the predictions for review.
func (c *Classifier) ClassifyPending(ctx context.Context) (*ensemble.BatchResult, error) {
	pending, err := c.storage.GetTransactionsToClassify(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading pending transactions: %w", err)
	}
	if len(pending) == 0 {
		return &ensemble.BatchResult{}, nil
	}

	result, err := c.handle.Predict(pending)
	if err != nil {
		return nil, err
	}
	if err := c.storage.SavePredictions(ctx, result.Predictions); err != nil {
		return nil, fmt.Errorf("saving predictions: %w", err)
	}

	for _, failure := range result.Failures {
		slog.Warn("transaction skipped during classification",
			"index", failure.Index,
			"error", failure.Err,
		)
	}
	return result, nil
}

// SelectForReview chooses which stored predictions a human should look
// at next, adapting the strategy to recent review outcomes.
func (c *Classifier) SelectForReview(ctx context.Context, n int) ([]model.Prediction, selector.Strategy, error) {
	preds, err := c.storage.GetPredictions(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("loading predictions: %w", err)
	}
	if len(preds) == 0 {
		return nil, "", nil
	}

	outcomes, err := c.storage.GetRecentReviewOutcomes(ctx, 20)
	if err != nil {
		return nil, "", fmt.Errorf("loading review outcomes: %w", err)
	}
	strategy := selector.AdaptStrategy(outcomes)

	ids, err := selector.New(c.cfg.Seed).SelectForReview(preds, n, strategy)
	if err != nil {
		return nil, "", err
	}

	byID := make(map[string]model.Prediction, len(preds))
	for _, p := range preds {
		byID[p.TransactionID] = p
	}
	selected := make([]model.Prediction, 0, len(ids))
	for _, id := range ids {
		selected = append(selected, byID[id])
	}
	return selected, strategy, nil
}

// ApplyReview records a human decision for one transaction: the category
// is written back, the outcome is logged for the adaptive selector, and
// the prediction is retired.
func (c *Classifier) ApplyReview(ctx context.Context, transactionID, category string) error {
	preds, err := c.storage.GetPredictions(ctx)
	if err != nil {
		return fmt.Errorf("loading predictions: %w", err)
	}

	var predicted *model.Prediction
	for i := range preds {
		if preds[i].TransactionID == transactionID {
			predicted = &preds[i]
			break
		}
	}

	if err := c.storage.SetTransactionCategory(ctx, transactionID, category, true); err != nil {
		return err
	}

	if predicted != nil {
		outcome := model.ReviewOutcome{
			TransactionID:      transactionID,
			OriginalConfidence: predicted.Confidence,
			WasCorrected:       predicted.Category != category,
		}
		if err := c.storage.RecordReviewOutcome(ctx, outcome); err != nil {
			return fmt.Errorf("recording review outcome: %w", err)
		}
		if err := c.storage.DeletePrediction(ctx, transactionID); err != nil {
			return fmt.Errorf("retiring prediction: %w", err)
		}
	}
	return nil
}

// AutoApprove applies every stored prediction at or above the threshold
// without human review and reports how many were applied.
func (c *Classifier) AutoApprove(ctx context.Context, threshold float64) (int, error) {
	if threshold <= 0 {
		threshold = model.DefaultAutoApproveThreshold
	}

	preds, err := c.storage.GetPredictions(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading predictions: %w", err)
	}

	applied := 0
	for _, pred := range preds {
		if !pred.AutoApprovable(threshold) {
			continue
		}
		if err := c.storage.SetTransactionCategory(ctx, pred.TransactionID, pred.Category, false); err != nil {
			return applied, err
		}
		if err := c.storage.DeletePrediction(ctx, pred.TransactionID); err != nil {
			return applied, err
		}
		applied++
	}
	return applied, nil
}

// ListRules returns the merchant rules of the active model.
func (c *Classifier) ListRules() ([]model.MerchantRule, error) {
	cat := c.handle.Current()
	if cat == nil {
		return nil, common.ErrNotTrained
	}
	return cat.Rules().Snapshot(), nil
}

// AddRule installs or replaces a manual merchant rule, swaps the updated
// model in, and persists its state.
func (c *Classifier) AddRule(ctx context.Context, rule model.MerchantRule) error {
	cat := c.handle.Current()
	if cat == nil {
		return common.ErrNotTrained
	}
	rs := rules.FromSnapshot(cat.Rules().Snapshot())
	rs.Upsert(rule)
	updated := cat.WithRules(rs)
	if err := c.persistState(ctx, updated); err != nil {
		return err
	}
	c.handle.Install(updated)
	return nil
}

// DeleteRule removes a merchant rule by pattern, swaps the updated model
// in, and persists its state.
func (c *Classifier) DeleteRule(ctx context.Context, pattern string) error {
	cat := c.handle.Current()
	if cat == nil {
		return common.ErrNotTrained
	}
	rs := rules.FromSnapshot(cat.Rules().Snapshot())
	if !rs.Delete(pattern) {
		return fmt.Errorf("rule %q: %w", pattern, common.ErrNotFound)
	}
	updated := cat.WithRules(rs)
	if err := c.persistState(ctx, updated); err != nil {
		return err
	}
	c.handle.Install(updated)
	return nil
}

func (c *Classifier) persistState(ctx context.Context, cat *ensemble.Categorizer) error {
	blob, err := cat.SaveState()
	if err != nil {
		return fmt.Errorf("serializing ensemble: %w", err)
	}
	summary := cat.Summary()
	if err := c.storage.SaveModelState(ctx, summary.ModelVersion, summary.TrainedAt, blob); err != nil {
		return fmt.Errorf("persisting ensemble: %w", err)
	}
	return nil
}

// Handle exposes the underlying ensemble handle for tooling that needs
// direct access, like rule management commands.
func (c *Classifier) Handle() *ensemble.Handle {
	return c.handle
}
