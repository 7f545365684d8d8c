package ensemble

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/the-mentat-must-flow/internal/common"
	"github.com/Veraticus/the-mentat-must-flow/internal/model"
)

func labeledTxn(day int, name, purpose, category string, amount float64) model.Transaction {
	return model.Transaction{
		Date:       time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, day),
		Name:       name,
		Purpose:    purpose,
		Category:   category,
		Amount:     amount,
		IsReviewed: true,
	}
}

// trainingHistory builds a 60-transaction corpus across three cleanly
// separable categories.
func trainingHistory() []model.Transaction {
	var history []model.Transaction
	for i := 0; i < 10; i++ {
		history = append(history,
			labeledTxn(i, "EDEKA FILIALE 42", "Lastschrift Einkauf Lebensmittel", "groceries", -35.50-float64(i)),
			labeledTxn(i, "REWE CITY", "Kartenzahlung Einkauf Supermarkt", "groceries", -22.10-float64(i)),
			labeledTxn(i, "SHELL STATION 1007", "Kartenzahlung Tankstelle Kraftstoff", "fuel", -62.00-float64(i)),
			labeledTxn(i, "ARAL TANKSTELLE", "Lastschrift Tanken Benzin", "fuel", -48.30-float64(i)),
			labeledTxn(i, "ACME GMBH", "Lohn Gehalt Abrechnung Monat", "salary", 2800+float64(i)),
			labeledTxn(i, "ACME GMBH BONUS", "Gehalt Sonderzahlung Bonus", "salary", 500+float64(i)),
		)
	}
	return history
}

func testTrainConfig() Config {
	cfg := DefaultConfig()
	cfg.Structured.Boost.Rounds = 15
	return cfg
}

func TestTrainProducesWorkingEnsemble(t *testing.T) {
	c, err := Train(testTrainConfig(), trainingHistory())
	require.NoError(t, err)
	assert.Equal(t, []string{"fuel", "groceries", "salary"}, c.Classes())

	w := c.Weights()
	assert.InDelta(t, 1.0, w.Structured+w.Text, 1e-9)

	result := c.Predict([]model.Transaction{
		{Date: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), Name: "REWE CITY", Purpose: "Kartenzahlung Einkauf Supermarkt", Amount: -31},
	})
	require.Empty(t, result.Failures)
	require.Len(t, result.Predictions, 1)

	pred := result.Predictions[0]
	assert.Equal(t, "groceries", pred.Category)
	assert.GreaterOrEqual(t, pred.Confidence, 0.0)
	assert.LessOrEqual(t, pred.Confidence, 1.0)
	assert.Contains(t, pred.Contributions, "structured_weight")
	assert.Contains(t, pred.Contributions, "text_weight")
	assert.NotEmpty(t, pred.TransactionID)
}

func TestTrainSummary(t *testing.T) {
	c, err := Train(testTrainConfig(), trainingHistory())
	require.NoError(t, err)

	summary := c.Summary()
	assert.Equal(t, ModelVersion, summary.ModelVersion)
	assert.Equal(t, 60, summary.Samples)
	assert.Equal(t, 3, summary.Categories)
	assert.Greater(t, summary.Accuracy, 0.5, "separable corpus should cross-validate well")
	assert.Greater(t, summary.MacroF1, 0.5)
	assert.NotEmpty(t, summary.TopFeatures)
	assert.Contains(t, summary.PrecisionPerCategory, "groceries")
	assert.Contains(t, summary.RecallPerCategory, "salary")
}

func TestTrainSummaryMetricsWithTinyCategory(t *testing.T) {
	history := trainingHistory()
	for i := 0; i < 3; i++ {
		history = append(history,
			labeledTxn(i, "IKEA DEUTSCHLAND", "Kartenzahlung Moebel Einrichtung", "household", -120-float64(i)))
	}

	c, err := Train(testTrainConfig(), history)
	require.NoError(t, err)
	require.Contains(t, c.Classes(), "household")

	// Three samples cannot fill five folds; the fold count shrinks
	// instead of dropping the quality metrics from the summary.
	summary := c.Summary()
	assert.Greater(t, summary.Accuracy, 0.0)
	assert.Greater(t, summary.MacroF1, 0.0)
	assert.Contains(t, summary.PrecisionPerCategory, "household")
	assert.Contains(t, summary.RecallPerCategory, "household")
}

func TestSummaryFolds(t *testing.T) {
	labels := []string{"a", "a", "a", "a", "a", "b", "b", "b"}
	assert.Equal(t, 3, summaryFolds(labels, 5))
	assert.Equal(t, 2, summaryFolds(labels, 2))
	assert.Equal(t, 1, summaryFolds([]string{"a", "a", "b"}, 5), "singleton classes still make folds infeasible")
}

func TestMerchantRuleShortcut(t *testing.T) {
	c, err := Train(testTrainConfig(), trainingHistory())
	require.NoError(t, err)

	c.Rules().Upsert(model.MerchantRule{Pattern: "EDEKA", Category: "groceries", Confidence: 0.98})

	result := c.Predict([]model.Transaction{
		{Date: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), Name: "EDEKA Markt 1234", Amount: -12},
	})
	require.Empty(t, result.Failures)
	require.Len(t, result.Predictions, 1)

	pred := result.Predictions[0]
	assert.Equal(t, "groceries", pred.Category)
	assert.InDelta(t, 0.98, pred.Confidence, 1e-9)
	assert.Equal(t, map[string]float64{"merchant_rule": 1.0}, pred.Contributions)
}

func TestRefreshDerivedRulesNeverShortcut(t *testing.T) {
	// Refresh caps rule confidence at 0.95, so only manually managed
	// rules can clear the shortcut threshold; everything else still goes
	// through both classifiers.
	c, err := Train(testTrainConfig(), trainingHistory())
	require.NoError(t, err)

	match := c.Rules().Lookup("EDEKA FILIALE 42")
	require.NotNil(t, match)
	assert.LessOrEqual(t, match.Confidence, 0.95)

	result := c.Predict([]model.Transaction{
		{Date: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), Name: "EDEKA FILIALE 42", Purpose: "Lastschrift Einkauf", Amount: -30},
	})
	require.Len(t, result.Predictions, 1)
	assert.NotContains(t, result.Predictions[0].Contributions, "merchant_rule")
}

func TestTrainInsufficientData(t *testing.T) {
	history := trainingHistory()[:40]

	_, err := Train(testTrainConfig(), history)
	require.Error(t, err)
	assert.True(t, common.IsTrainingDataError(err))
}

func TestTrainTooFewEligibleCategories(t *testing.T) {
	var history []model.Transaction
	for i := 0; i < 60; i++ {
		history = append(history, labeledTxn(i, "EDEKA", "Einkauf", "groceries", -20))
	}
	// A second category below the per-category minimum stays ineligible.
	history = append(history,
		labeledTxn(1, "SHELL", "Tanken", "fuel", -50),
		labeledTxn(2, "SHELL", "Tanken", "fuel", -52),
	)

	_, err := Train(testTrainConfig(), history)
	require.Error(t, err)
	assert.True(t, common.IsTrainingDataError(err))
}

func TestTrainIdempotentWeights(t *testing.T) {
	a, err := Train(testTrainConfig(), trainingHistory())
	require.NoError(t, err)
	b, err := Train(testTrainConfig(), trainingHistory())
	require.NoError(t, err)

	assert.Equal(t, a.Weights(), b.Weights())
}

func TestSaveRestoreRoundTrip(t *testing.T) {
	c, err := Train(testTrainConfig(), trainingHistory())
	require.NoError(t, err)

	blob, err := c.SaveState()
	require.NoError(t, err)

	restored, err := Restore(blob, testTrainConfig())
	require.NoError(t, err)
	assert.Equal(t, c.Classes(), restored.Classes())
	assert.Equal(t, c.Weights(), restored.Weights())

	probe := []model.Transaction{
		{Date: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), Name: "SHELL STATION 1007", Purpose: "Kartenzahlung Tankstelle", Amount: -55},
	}
	want := c.Predict(probe)
	got := restored.Predict(probe)
	require.Len(t, got.Predictions, 1)
	assert.Equal(t, want.Predictions[0].Category, got.Predictions[0].Category)
	assert.InDelta(t, want.Predictions[0].Confidence, got.Predictions[0].Confidence, 1e-9)
}

func TestRestoreRejectsUnknownVersion(t *testing.T) {
	c, err := Train(testTrainConfig(), trainingHistory())
	require.NoError(t, err)

	blob, err := c.SaveState()
	require.NoError(t, err)

	// Re-wrap the payload with a version Restore does not know.
	tampered := reversionBlob(t, blob, 99)
	_, err = Restore(tampered, testTrainConfig())
	assert.ErrorIs(t, err, common.ErrInvalidConfig)
}

func TestExplainTrainedEnsemble(t *testing.T) {
	c, err := Train(testTrainConfig(), trainingHistory())
	require.NoError(t, err)

	contribs, err := c.Explain(model.Transaction{
		Date: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), Name: "REWE CITY", Purpose: "Einkauf Supermarkt", Amount: -25,
	}, 5)
	require.NoError(t, err)
	assert.NotEmpty(t, contribs)
	assert.LessOrEqual(t, len(contribs), 5)
}
