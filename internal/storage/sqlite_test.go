package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/the-mentat-must-flow/internal/common"
	"github.com/Veraticus/the-mentat-must-flow/internal/model"
)

func testStorage(t *testing.T) *SQLiteStorage {
	t.Helper()

	s, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func storedTxn(id string, day int, name, category string) model.Transaction {
	return model.Transaction{
		ID:       id,
		Date:     time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC),
		Name:     name,
		Purpose:  "Einkauf",
		Amount:   -25.50,
		Currency: "EUR",
		Category: category,
	}
}

func TestSaveAndGetTransactions(t *testing.T) {
	s := testStorage(t)
	ctx := context.Background()

	valueDate := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)
	txn := storedTxn("t1", 2, "EDEKA", "groceries")
	txn.ValueDate = &valueDate

	require.NoError(t, s.SaveTransactions(ctx, []model.Transaction{txn}))

	got, err := s.GetTransactionByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "EDEKA", got.Name)
	assert.Equal(t, "groceries", got.Category)
	require.NotNil(t, got.ValueDate)
	assert.True(t, got.ValueDate.Equal(valueDate))

	count, err := s.GetTransactionCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestGetTransactionByIDNotFound(t *testing.T) {
	s := testStorage(t)

	_, err := s.GetTransactionByID(context.Background(), "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestSaveTransactionsGeneratesIDs(t *testing.T) {
	s := testStorage(t)
	ctx := context.Background()

	txn := storedTxn("", 2, "REWE", "")
	require.NoError(t, s.SaveTransactions(ctx, []model.Transaction{txn}))

	pending, err := s.GetTransactionsToClassify(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.NotEmpty(t, pending[0].ID)
}

func TestUpsertKeepsExistingCategory(t *testing.T) {
	s := testStorage(t)
	ctx := context.Background()

	require.NoError(t, s.SaveTransactions(ctx, []model.Transaction{storedTxn("t1", 2, "EDEKA", "groceries")}))
	// A re-import of the same transaction without a label must not wipe
	// the existing one.
	require.NoError(t, s.SaveTransactions(ctx, []model.Transaction{storedTxn("t1", 2, "EDEKA", "")}))

	got, err := s.GetTransactionByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "groceries", got.Category)
}

func TestLabeledAndUnlabeledSplit(t *testing.T) {
	s := testStorage(t)
	ctx := context.Background()

	require.NoError(t, s.SaveTransactions(ctx, []model.Transaction{
		storedTxn("t1", 1, "EDEKA", "groceries"),
		storedTxn("t2", 2, "SHELL", ""),
		storedTxn("t3", 3, "REWE", "groceries"),
	}))

	labeled, err := s.GetLabeledTransactions(ctx)
	require.NoError(t, err)
	assert.Len(t, labeled, 2)

	pending, err := s.GetTransactionsToClassify(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "t2", pending[0].ID)
}

func TestSetTransactionCategory(t *testing.T) {
	s := testStorage(t)
	ctx := context.Background()

	require.NoError(t, s.SaveTransactions(ctx, []model.Transaction{storedTxn("t1", 2, "SHELL", "")}))
	require.NoError(t, s.SetTransactionCategory(ctx, "t1", "fuel", true))

	got, err := s.GetTransactionByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "fuel", got.Category)
	assert.True(t, got.IsReviewed)

	err = s.SetTransactionCategory(ctx, "missing", "fuel", true)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestCountMerchantSightings(t *testing.T) {
	s := testStorage(t)
	ctx := context.Background()

	require.NoError(t, s.SaveTransactions(ctx, []model.Transaction{
		storedTxn("t1", 1, "EDEKA FILIALE 1", "groceries"),
		storedTxn("t2", 2, "EDEKA FILIALE 2", "groceries"),
		storedTxn("t3", 3, "SHELL", "fuel"),
	}))

	count, err := s.CountMerchantSightings(ctx, "EDEKA FILIALE 9")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = s.CountMerchantSightings(ctx, "")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestPredictionsRoundTrip(t *testing.T) {
	s := testStorage(t)
	ctx := context.Background()

	require.NoError(t, s.SaveTransactions(ctx, []model.Transaction{storedTxn("t1", 2, "EDEKA", "")}))
	preds := []model.Prediction{{
		TransactionID: "t1",
		Category:      "groceries",
		Confidence:    0.87,
		Contributions: map[string]float64{"structured_weight": 0.7, "text_weight": 0.3},
	}}
	require.NoError(t, s.SavePredictions(ctx, preds))

	got, err := s.GetPredictions(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "groceries", got[0].Category)
	assert.InDelta(t, 0.87, got[0].Confidence, 1e-9)
	assert.InDelta(t, 0.7, got[0].Contributions["structured_weight"], 1e-9)

	// Upsert replaces the earlier prediction.
	preds[0].Confidence = 0.91
	require.NoError(t, s.SavePredictions(ctx, preds))
	got, err = s.GetPredictions(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDelta(t, 0.91, got[0].Confidence, 1e-9)

	require.NoError(t, s.DeletePrediction(ctx, "t1"))
	got, err = s.GetPredictions(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReviewOutcomeLog(t *testing.T) {
	s := testStorage(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.RecordReviewOutcome(ctx, model.ReviewOutcome{
			TransactionID:      string(rune('a' + i)),
			OriginalConfidence: 0.5 + float64(i)*0.1,
			WasCorrected:       i%2 == 0,
		}))
	}

	outcomes, err := s.GetRecentReviewOutcomes(ctx, 3)
	require.NoError(t, err)
	require.Len(t, outcomes, 3)
	// Newest three, in review order.
	assert.Equal(t, "c", outcomes[0].TransactionID)
	assert.Equal(t, "e", outcomes[2].TransactionID)
}

func TestCategories(t *testing.T) {
	s := testStorage(t)
	ctx := context.Background()

	require.NoError(t, s.SaveCategory(ctx, model.Category{Name: "groceries", Type: model.CategoryTypeSpending, IsActive: true}))
	require.NoError(t, s.SaveCategory(ctx, model.Category{Name: "salary", Type: model.CategoryTypeIncome, IsActive: true}))

	categories, err := s.GetCategories(ctx)
	require.NoError(t, err)
	require.Len(t, categories, 2)
	assert.Equal(t, "groceries", categories[0].Name)
	assert.Equal(t, model.CategoryTypeIncome, categories[1].Type)

	require.NoError(t, s.DeactivateCategory(ctx, "groceries"))
	categories, err = s.GetCategories(ctx)
	require.NoError(t, err)
	assert.False(t, categories[0].IsActive)
}

func TestModelRegistry(t *testing.T) {
	s := testStorage(t)
	ctx := context.Background()

	_, err := s.LoadLatestModelState(ctx)
	assert.ErrorIs(t, err, common.ErrNotFound)

	trainedAt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveModelState(ctx, "ensemble-v1", trainedAt, []byte("old")))
	require.NoError(t, s.SaveModelState(ctx, "ensemble-v1", trainedAt.Add(time.Hour), []byte("new")))

	blob, err := s.LoadLatestModelState(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), blob)
}
