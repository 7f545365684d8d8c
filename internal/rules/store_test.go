package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/the-mentat-must-flow/internal/model"
)

func TestStore_Lookup_ExactMatch(t *testing.T) {
	s := NewStore()
	s.Upsert(model.MerchantRule{Pattern: "EDEKA", Category: "groceries", Confidence: 0.98})

	match := s.Lookup("edeka")

	require.NotNil(t, match)
	assert.Equal(t, "groceries", match.Category)
	assert.InDelta(t, 0.98, match.Confidence, 1e-9)
}

func TestStore_Lookup_PartialMatch(t *testing.T) {
	tests := []struct {
		name         string
		pattern      string
		merchant     string
		wantMatch    bool
		wantCategory string
	}{
		{
			name:         "single token pattern matches by prefix",
			pattern:      "EDEKA",
			merchant:     "EDEKAMARKT FILIALE 1234",
			wantMatch:    true,
			wantCategory: "groceries",
		},
		{
			name:      "short pattern never partial matches",
			pattern:   "ARAL",
			merchant:  "ARAL STATION NORD",
			wantMatch: false,
		},
		{
			name:         "multi-token pattern matches by overlap",
			pattern:      "DEUTSCHE BAHN FERNVERKEHR",
			merchant:     "DEUTSCHE BAHN TICKET",
			wantMatch:    true,
			wantCategory: "groceries",
		},
		{
			name:      "insufficient token overlap",
			pattern:   "DEUTSCHE BAHN FERNVERKEHR",
			merchant:  "DEUTSCHE POST BRIEF",
			wantMatch: false,
		},
		{
			name:      "no overlap at all",
			pattern:   "EDEKA",
			merchant:  "SHELL TANKSTELLE",
			wantMatch: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			category := tt.wantCategory
			if category == "" {
				category = "whatever"
			}
			s := NewStore()
			s.Upsert(model.MerchantRule{Pattern: tt.pattern, Category: category, Confidence: 0.9})

			match := s.Lookup(tt.merchant)

			if !tt.wantMatch {
				assert.Nil(t, match)
				return
			}
			require.NotNil(t, match)
			assert.Equal(t, tt.wantCategory, match.Category)
			// Partial matches carry scaled-down confidence.
			assert.InDelta(t, 0.9*partialMatchPenalty, match.Confidence, 1e-9)
		})
	}
}

func TestStore_Lookup_LeadingTokenPrefixIsExact(t *testing.T) {
	s := NewStore()
	s.Upsert(model.MerchantRule{Pattern: "EDEKA", Category: "groceries", Confidence: 0.98})
	s.Upsert(model.MerchantRule{Pattern: "EDEKA SUED", Category: "household", Confidence: 0.9})

	// Branch suffixes after the pattern's tokens do not demote the match.
	match := s.Lookup("EDEKA Markt 1234")
	require.NotNil(t, match)
	assert.Equal(t, "groceries", match.Category)
	assert.InDelta(t, 0.98, match.Confidence, 1e-9)

	// The longest covering pattern wins.
	match = s.Lookup("EDEKA SUED FILIALE 7")
	require.NotNil(t, match)
	assert.Equal(t, "household", match.Category)
}

func TestStore_Lookup_ExactBeatsPartial(t *testing.T) {
	s := NewStore()
	s.Upsert(model.MerchantRule{Pattern: "EDEKA MARKT", Category: "groceries", Confidence: 0.9})

	match := s.Lookup("EDEKA MARKT")

	require.NotNil(t, match)
	assert.InDelta(t, 0.9, match.Confidence, 1e-9, "exact match must not be penalized")
}

func TestStore_Lookup_EmptyMerchant(t *testing.T) {
	s := NewStore()
	s.Upsert(model.MerchantRule{Pattern: "EDEKA", Category: "groceries", Confidence: 0.9})

	assert.Nil(t, s.Lookup(""))
	assert.Nil(t, s.Lookup("***"))
}

func reviewedTxn(day int, name, category string) model.Transaction {
	return model.Transaction{
		Date:       time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC),
		Name:       name,
		Category:   category,
		Amount:     -20,
		IsReviewed: true,
	}
}

func TestStore_Refresh(t *testing.T) {
	history := []model.Transaction{
		// Consistent merchant: 4 reviewed, all groceries.
		reviewedTxn(1, "EDEKA", "groceries"),
		reviewedTxn(2, "EDEKA", "groceries"),
		reviewedTxn(3, "EDEKA", "groceries"),
		reviewedTxn(4, "EDEKA", "groceries"),
		// Inconsistent merchant: 2/4 agreement is below the 0.8 bar.
		reviewedTxn(1, "AMAZON", "shopping"),
		reviewedTxn(2, "AMAZON", "shopping"),
		reviewedTxn(3, "AMAZON", "media"),
		reviewedTxn(4, "AMAZON", "household"),
		// Too few occurrences.
		reviewedTxn(1, "SHELL", "fuel"),
		reviewedTxn(2, "SHELL", "fuel"),
		// Unreviewed rows never contribute.
		{Date: time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), Name: "REWE", Category: "groceries"},
	}

	s := NewStore()
	created := s.Refresh(history, DefaultMinOccurrences)

	assert.Equal(t, 1, created)

	match := s.Lookup("EDEKA")
	require.NotNil(t, match)
	assert.Equal(t, "groceries", match.Category)
	// 4/4 agreement, capped at the refresh ceiling.
	assert.InDelta(t, maxRuleConfidence, match.Confidence, 1e-9)

	assert.Nil(t, s.Lookup("SHELL TANKSTELLE"))
	assert.Nil(t, s.Lookup("REWE"))
}

func TestStore_Refresh_MostlyConsistent(t *testing.T) {
	history := []model.Transaction{
		reviewedTxn(1, "LIDL", "groceries"),
		reviewedTxn(2, "LIDL", "groceries"),
		reviewedTxn(3, "LIDL", "groceries"),
		reviewedTxn(4, "LIDL", "groceries"),
		reviewedTxn(5, "LIDL", "household"),
	}

	s := NewStore()
	s.Refresh(history, DefaultMinOccurrences)

	match := s.Lookup("LIDL")
	require.NotNil(t, match)
	assert.InDelta(t, 0.8, match.Confidence, 1e-9)
}

func TestStore_Refresh_RebuildsFromScratch(t *testing.T) {
	s := NewStore()
	s.Upsert(model.MerchantRule{Pattern: "STALE", Category: "old", Confidence: 0.9})

	s.Refresh([]model.Transaction{
		reviewedTxn(1, "EDEKA", "groceries"),
		reviewedTxn(2, "EDEKA", "groceries"),
		reviewedTxn(3, "EDEKA", "groceries"),
	}, DefaultMinOccurrences)

	assert.Nil(t, s.Lookup("STALE"), "refresh drops rules no longer backed by history")
	assert.NotNil(t, s.Lookup("EDEKA"))
}

func TestStore_Suggestions(t *testing.T) {
	s := NewStore()
	s.Upsert(model.MerchantRule{Pattern: "EDEKA MARKT", Category: "groceries", Confidence: 0.9})
	s.Upsert(model.MerchantRule{Pattern: "SHELL TANKSTELLE", Category: "fuel", Confidence: 0.9})

	suggestions := s.Suggestions("EDEKA MARKT SUED")

	require.NotEmpty(t, suggestions)
	assert.Equal(t, "groceries", suggestions[0].Category)
	assert.LessOrEqual(t, len(suggestions), 3)
}

func TestStore_SnapshotRoundTrip(t *testing.T) {
	s := NewStore()
	s.Upsert(model.MerchantRule{Pattern: "EDEKA", Category: "groceries", Confidence: 0.95, Occurrences: 4})
	s.Upsert(model.MerchantRule{Pattern: "SHELL", Category: "fuel", Confidence: 0.9, Occurrences: 3})

	restored := FromSnapshot(s.Snapshot())

	assert.Equal(t, s.Len(), restored.Len())
	match := restored.Lookup("EDEKA")
	require.NotNil(t, match)
	assert.Equal(t, "groceries", match.Category)
}
