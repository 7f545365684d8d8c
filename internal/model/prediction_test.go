package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPredictionLevel(t *testing.T) {
	tests := []struct {
		name       string
		want       ConfidenceLevel
		confidence float64
	}{
		{name: "high at boundary", want: ConfidenceHigh, confidence: 0.90},
		{name: "medium at boundary", want: ConfidenceMedium, confidence: 0.70},
		{name: "medium below high", want: ConfidenceMedium, confidence: 0.89},
		{name: "low", want: ConfidenceLow, confidence: 0.42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Prediction{Confidence: tt.confidence}
			assert.Equal(t, tt.want, p.Level())
		})
	}
}

func TestPredictionAutoApprovable(t *testing.T) {
	p := Prediction{Confidence: 0.96}
	assert.True(t, p.AutoApprovable(0.95))
	assert.False(t, p.AutoApprovable(0.97))
	// Zero threshold falls back to the default.
	assert.True(t, p.AutoApprovable(0))
}

func TestTransactionIdentity(t *testing.T) {
	txn := Transaction{
		Date:    time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Name:    "EDEKA FILIALE 42",
		Purpose: "Lastschrift",
		Amount:  -31.40,
	}

	id := txn.Identity()
	assert.Len(t, id, 16)
	assert.Equal(t, id, txn.GenerateID(), "identity is deterministic")

	other := txn
	other.Amount = -31.41
	assert.NotEqual(t, id, other.Identity())

	txn.ID = "explicit"
	assert.Equal(t, "explicit", txn.Identity())
}
