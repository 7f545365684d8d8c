// Package textclf implements the text-only probabilistic classifier over
// vectorized merchant and purpose text.
package textclf

import (
	"sort"
	"strings"
)

// VectorizerConfig bounds the n-gram vocabulary.
type VectorizerConfig struct {
	NGramMin    int
	NGramMax    int
	MaxFeatures int
	MinDocFreq  int
	MaxDocShare float64
}

// DefaultVectorizerConfig mirrors the vocabulary bounds that work well for
// short transaction texts: unigrams through trigrams, terms present in at
// least 2 documents and at most 95% of them, capped at 2000 features.
func DefaultVectorizerConfig() VectorizerConfig {
	return VectorizerConfig{
		NGramMin:    1,
		NGramMax:    3,
		MaxFeatures: 2000,
		MinDocFreq:  2,
		MaxDocShare: 0.95,
	}
}

// Vectorizer turns preprocessed text into bounded n-gram token lists. It
// must be fitted on a corpus before Transform is meaningful.
type Vectorizer struct {
	Config     VectorizerConfig
	Vocabulary map[string]struct{}
}

// NewVectorizer creates an unfitted vectorizer.
func NewVectorizer(cfg VectorizerConfig) *Vectorizer {
	if cfg.NGramMin <= 0 {
		cfg.NGramMin = 1
	}
	if cfg.NGramMax < cfg.NGramMin {
		cfg.NGramMax = cfg.NGramMin
	}
	return &Vectorizer{Config: cfg}
}

// Fit builds the vocabulary from document frequencies across the corpus.
// Terms below MinDocFreq or above MaxDocShare are dropped; if more than
// MaxFeatures remain, the most document-frequent win, ties broken
// lexicographically so fitting is deterministic.
func (v *Vectorizer) Fit(docs []string) {
	docFreq := make(map[string]int)
	for _, doc := range docs {
		seen := make(map[string]struct{})
		for _, term := range v.ngrams(doc) {
			if _, dup := seen[term]; dup {
				continue
			}
			seen[term] = struct{}{}
			docFreq[term]++
		}
	}

	maxDF := len(docs)
	if v.Config.MaxDocShare > 0 && v.Config.MaxDocShare < 1 {
		maxDF = int(v.Config.MaxDocShare * float64(len(docs)))
		if maxDF < 1 {
			maxDF = 1
		}
	}
	minDF := v.Config.MinDocFreq
	if minDF < 1 {
		minDF = 1
	}

	type termFreq struct {
		term string
		df   int
	}
	kept := make([]termFreq, 0, len(docFreq))
	for term, df := range docFreq {
		if df < minDF || df > maxDF {
			continue
		}
		kept = append(kept, termFreq{term, df})
	}

	sort.Slice(kept, func(i, j int) bool {
		if kept[i].df != kept[j].df {
			return kept[i].df > kept[j].df
		}
		return kept[i].term < kept[j].term
	})

	if v.Config.MaxFeatures > 0 && len(kept) > v.Config.MaxFeatures {
		kept = kept[:v.Config.MaxFeatures]
	}

	v.Vocabulary = make(map[string]struct{}, len(kept))
	for _, tf := range kept {
		v.Vocabulary[tf.term] = struct{}{}
	}
}

// Transform tokenizes a document and keeps only in-vocabulary terms.
func (v *Vectorizer) Transform(doc string) []string {
	terms := v.ngrams(doc)
	kept := terms[:0]
	for _, term := range terms {
		if _, ok := v.Vocabulary[term]; ok {
			kept = append(kept, term)
		}
	}
	return kept
}

// ngrams emits word n-grams from NGramMin to NGramMax, multi-word grams
// joined with a single space.
func (v *Vectorizer) ngrams(doc string) []string {
	words := strings.Fields(doc)
	if len(words) == 0 {
		return nil
	}

	var terms []string
	for n := v.Config.NGramMin; n <= v.Config.NGramMax; n++ {
		for i := 0; i+n <= len(words); i++ {
			terms = append(terms, strings.Join(words[i:i+n], " "))
		}
	}
	return terms
}
