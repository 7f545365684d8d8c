// Package service defines the interfaces between the classification core,
// the storage layer, and the surrounding tooling.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/the-mentat-must-flow/internal/model"
)

// TransactionStore persists and queries bank transactions.
type TransactionStore interface {
	// SaveTransactions upserts transactions by id, generating ids for
	// records that lack one.
	SaveTransactions(ctx context.Context, txns []model.Transaction) error
	GetTransactionByID(ctx context.Context, id string) (*model.Transaction, error)
	// GetTransactionsToClassify returns transactions without a category.
	GetTransactionsToClassify(ctx context.Context) ([]model.Transaction, error)
	// GetLabeledTransactions returns transactions with a category, the
	// training corpus.
	GetLabeledTransactions(ctx context.Context) ([]model.Transaction, error)
	SetTransactionCategory(ctx context.Context, id, category string, reviewed bool) error
	GetTransactionCount(ctx context.Context) (int, error)
	// CountMerchantSightings reports how often a merchant name appears,
	// used for review-priority novelty scoring.
	CountMerchantSightings(ctx context.Context, name string) (int, error)
}

// PredictionStore persists model predictions and review outcomes.
type PredictionStore interface {
	SavePredictions(ctx context.Context, preds []model.Prediction) error
	GetPredictions(ctx context.Context) ([]model.Prediction, error)
	DeletePrediction(ctx context.Context, transactionID string) error
	RecordReviewOutcome(ctx context.Context, outcome model.ReviewOutcome) error
	// GetRecentReviewOutcomes returns the newest outcomes, oldest first.
	GetRecentReviewOutcomes(ctx context.Context, limit int) ([]model.ReviewOutcome, error)
}

// CategoryStore manages the category vocabulary.
type CategoryStore interface {
	SaveCategory(ctx context.Context, category model.Category) error
	GetCategories(ctx context.Context) ([]model.Category, error)
	DeactivateCategory(ctx context.Context, name string) error
}

// ModelRegistry stores serialized ensemble state as opaque blobs.
type ModelRegistry interface {
	SaveModelState(ctx context.Context, version string, trainedAt time.Time, blob []byte) error
	// LoadLatestModelState returns the newest saved blob, or
	// common.ErrNotFound when none exists.
	LoadLatestModelState(ctx context.Context) ([]byte, error)
}

// Storage is the full persistence surface the application depends on.
type Storage interface {
	TransactionStore
	PredictionStore
	CategoryStore
	ModelRegistry
	Migrate(ctx context.Context) error
	Close() error
}
