package structclf

import (
	"math"
	"sort"
	"strings"
)

// CharVectorizerConfig controls the character n-gram text block appended
// to the numeric features.
type CharVectorizerConfig struct {
	NGramMin    int
	NGramMax    int
	MaxFeatures int
	MinDocFreq  int
	MaxDocShare float64
}

// DefaultCharVectorizerConfig matches the structured classifier's text
// sidecar: word-boundary character 3-5 grams capped at 500 features.
func DefaultCharVectorizerConfig() CharVectorizerConfig {
	return CharVectorizerConfig{
		NGramMin:    3,
		NGramMax:    5,
		MaxFeatures: 500,
		MinDocFreq:  2,
		MaxDocShare: 0.95,
	}
}

// CharVectorizer turns transaction text into a dense TF-IDF block over
// word-boundary character n-grams. Fields are exported for gob.
type CharVectorizer struct {
	Config     CharVectorizerConfig
	Vocabulary []string  // sorted; index is the feature column
	IDF        []float64 // aligned with Vocabulary
}

// NewCharVectorizer returns an unfitted vectorizer with the given config.
func NewCharVectorizer(cfg CharVectorizerConfig) *CharVectorizer {
	return &CharVectorizer{Config: cfg}
}

// Fit selects the vocabulary from the corpus and computes IDF weights.
// Terms are filtered by document frequency bounds, ranked by document
// frequency, and ties broken lexicographically so fitting is
// deterministic for a given corpus.
func (v *CharVectorizer) Fit(docs []string) {
	docFreq := make(map[string]int)
	for _, doc := range docs {
		seen := make(map[string]struct{})
		for _, t := range v.terms(doc) {
			seen[t] = struct{}{}
		}
		for t := range seen {
			docFreq[t]++
		}
	}

	maxDF := len(docs)
	if v.Config.MaxDocShare > 0 {
		maxDF = int(v.Config.MaxDocShare * float64(len(docs)))
		if maxDF < 1 {
			maxDF = 1
		}
	}

	type termFreq struct {
		term string
		df   int
	}
	candidates := make([]termFreq, 0, len(docFreq))
	for t, df := range docFreq {
		if df < v.Config.MinDocFreq || df > maxDF {
			continue
		}
		candidates = append(candidates, termFreq{term: t, df: df})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].df != candidates[j].df {
			return candidates[i].df > candidates[j].df
		}
		return candidates[i].term < candidates[j].term
	})
	if v.Config.MaxFeatures > 0 && len(candidates) > v.Config.MaxFeatures {
		candidates = candidates[:v.Config.MaxFeatures]
	}

	v.Vocabulary = make([]string, len(candidates))
	for i, c := range candidates {
		v.Vocabulary[i] = c.term
	}
	sort.Strings(v.Vocabulary)

	v.IDF = make([]float64, len(v.Vocabulary))
	for i, t := range v.Vocabulary {
		// Smoothed IDF keeps weights finite for terms in every document.
		v.IDF[i] = math.Log(float64(1+len(docs))/float64(1+docFreq[t])) + 1
	}
}

// Transform produces the dense TF-IDF row for one document. Terms outside
// the fitted vocabulary are ignored.
func (v *CharVectorizer) Transform(doc string) []float64 {
	row := make([]float64, len(v.Vocabulary))
	if len(v.Vocabulary) == 0 {
		return row
	}

	counts := make(map[string]int)
	for _, t := range v.terms(doc) {
		counts[t]++
	}
	var norm float64
	for term, count := range counts {
		idx := sort.SearchStrings(v.Vocabulary, term)
		if idx >= len(v.Vocabulary) || v.Vocabulary[idx] != term {
			continue
		}
		w := float64(count) * v.IDF[idx]
		row[idx] = w
		norm += w * w
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range row {
			row[i] /= norm
		}
	}
	return row
}

// Width reports the number of text feature columns.
func (v *CharVectorizer) Width() int {
	return len(v.Vocabulary)
}

// terms emits word-boundary character n-grams: each word is padded with a
// single space on both sides and n-grams never cross word edges. Words
// shorter than the n-gram size contribute their whole padded form once.
func (v *CharVectorizer) terms(doc string) []string {
	var out []string
	for _, word := range strings.Fields(strings.ToLower(doc)) {
		padded := []rune(" " + word + " ")
		for n := v.Config.NGramMin; n <= v.Config.NGramMax; n++ {
			if len(padded) <= n {
				out = append(out, string(padded))
				break
			}
			for i := 0; i+n <= len(padded); i++ {
				out = append(out, string(padded[i:i+n]))
			}
		}
	}
	return out
}
