package textclf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/the-mentat-must-flow/internal/common"
	"github.com/Veraticus/the-mentat-must-flow/internal/feature"
	"github.com/Veraticus/the-mentat-must-flow/internal/model"
)

func textCorpus() ([]feature.Record, []string) {
	txns := []model.Transaction{
		{Name: "EDEKA Markt", Purpose: "Lastschrift Einkauf Lebensmittel", Amount: -30},
		{Name: "REWE Supermarkt", Purpose: "Kartenzahlung Lebensmittel Einkauf", Amount: -25},
		{Name: "EDEKA Filiale", Purpose: "Einkauf Lebensmittel danke", Amount: -42},
		{Name: "REWE City", Purpose: "Lebensmittel Kartenzahlung", Amount: -18},
		{Name: "Shell Tankstelle", Purpose: "Kartenzahlung Kraftstoff Benzin", Amount: -60},
		{Name: "Aral Station", Purpose: "Benzin Kraftstoff Tanken", Amount: -55},
		{Name: "Shell Autohof", Purpose: "Kraftstoff Tanken Kartenzahlung", Amount: -70},
		{Name: "Aral Tankstelle", Purpose: "Benzin Tanken", Amount: -48},
	}
	for i := range txns {
		txns[i].Date = time.Date(2024, 2, i+1, 0, 0, 0, 0, time.UTC)
		txns[i].Currency = "EUR"
	}

	labels := []string{
		"groceries", "groceries", "groceries", "groceries",
		"fuel", "fuel", "fuel", "fuel",
	}
	return feature.ExtractBatch(txns), labels
}

func TestClassifier_FitAndPredict(t *testing.T) {
	records, labels := textCorpus()

	clf := New(VectorizerConfig{NGramMin: 1, NGramMax: 3, MaxFeatures: 2000, MinDocFreq: 1, MaxDocShare: 0.95})
	require.NoError(t, clf.Fit(records, labels))

	assert.Equal(t, []string{"fuel", "groceries"}, clf.Classes())

	probe := feature.Extract(model.Transaction{
		Date:    time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Name:    "EDEKA Center",
		Purpose: "Einkauf Lebensmittel",
		Amount:  -33,
	})
	rows, err := clf.PredictProba([]feature.Record{probe})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	// groceries is index 1 in the sorted class ordering.
	assert.Greater(t, rows[0][1], rows[0][0])
}

func TestClassifier_ProbabilityRowsValid(t *testing.T) {
	records, labels := textCorpus()

	clf := New(DefaultVectorizerConfig())
	require.NoError(t, clf.Fit(records, labels))

	rows, err := clf.PredictProba(records)
	require.NoError(t, err)

	for i, row := range rows {
		sum := 0.0
		for _, p := range row {
			assert.GreaterOrEqual(t, p, 0.0, "row %d", i)
			sum += p
		}
		assert.InDelta(t, 1.0, sum, 1e-6, "row %d", i)
	}
}

func TestClassifier_PredictBeforeFit(t *testing.T) {
	clf := New(DefaultVectorizerConfig())

	_, err := clf.PredictProba(nil)

	assert.ErrorIs(t, err, common.ErrNotTrained)
}

func TestClassifier_SingleClassRejected(t *testing.T) {
	records, _ := textCorpus()
	labels := make([]string, len(records))
	for i := range labels {
		labels[i] = "groceries"
	}

	clf := New(DefaultVectorizerConfig())
	err := clf.Fit(records, labels)

	assert.True(t, common.IsTrainingDataError(err))
}

func TestClassifier_OutOfVocabularyInput(t *testing.T) {
	records, labels := textCorpus()

	clf := New(DefaultVectorizerConfig())
	require.NoError(t, clf.Fit(records, labels))

	probe := feature.Extract(model.Transaction{
		Date:    time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Name:    "Völlig Unbekannter Händler",
		Purpose: "nie gesehen",
		Amount:  -5,
	})
	rows, err := clf.PredictProba([]feature.Record{probe})
	require.NoError(t, err)

	sum := 0.0
	for _, p := range rows[0] {
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 1e-6)
}

func TestVectorizer_DocFreqBounds(t *testing.T) {
	v := NewVectorizer(VectorizerConfig{NGramMin: 1, NGramMax: 1, MinDocFreq: 2, MaxDocShare: 0.95})
	v.Fit([]string{
		"edeka einkauf",
		"edeka markt",
		"shell tanken",
	})

	_, hasEdeka := v.Vocabulary["edeka"]
	_, hasMarkt := v.Vocabulary["markt"]

	assert.True(t, hasEdeka, "term in 2 of 3 docs passes min_df")
	assert.False(t, hasMarkt, "term in 1 doc fails min_df")
}

func TestVectorizer_NGramRange(t *testing.T) {
	v := NewVectorizer(VectorizerConfig{NGramMin: 1, NGramMax: 3, MinDocFreq: 1})
	v.Fit([]string{"deutsche bahn ticket"})

	for _, term := range []string{"deutsche", "bahn", "deutsche bahn", "bahn ticket", "deutsche bahn ticket"} {
		_, ok := v.Vocabulary[term]
		assert.True(t, ok, "missing %q", term)
	}
}

func TestVectorizer_MaxFeaturesDeterministic(t *testing.T) {
	docs := []string{"a b c d", "a b c", "a b", "a"}

	v1 := NewVectorizer(VectorizerConfig{NGramMin: 1, NGramMax: 1, MinDocFreq: 1, MaxFeatures: 2})
	v1.Fit(docs)
	v2 := NewVectorizer(VectorizerConfig{NGramMin: 1, NGramMax: 1, MinDocFreq: 1, MaxFeatures: 2})
	v2.Fit(docs)

	assert.Equal(t, v1.Vocabulary, v2.Vocabulary)
	assert.Len(t, v1.Vocabulary, 2)
	_, ok := v1.Vocabulary["a"]
	assert.True(t, ok)
}
