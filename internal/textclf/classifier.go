package textclf

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/jbrukh/bayesian"

	"github.com/Veraticus/the-mentat-must-flow/internal/common"
	"github.com/Veraticus/the-mentat-must-flow/internal/feature"
)

// Classifier is a Naive Bayes text classifier over bounded n-gram features
// of the combined merchant+purpose text. Probability rows always sum to 1
// and are ordered by the fitted class ordering.
type Classifier struct {
	vectorizer *Vectorizer
	bayes      *bayesian.Classifier
	classes    []string
	fitted     bool
}

// New creates an unfitted text classifier.
func New(cfg VectorizerConfig) *Classifier {
	return &Classifier{vectorizer: NewVectorizer(cfg)}
}

// Fit vectorizes the combined text of the records and trains a TF-IDF
// Naive Bayes model on the label-encoded categories. At least two distinct
// categories are required.
func (c *Classifier) Fit(records []feature.Record, labels []string) error {
	if len(records) != len(labels) {
		return fmt.Errorf("record count %d does not match label count %d", len(records), len(labels))
	}

	classes := uniqueSorted(labels)
	if len(classes) < 2 {
		return &common.TrainingDataError{
			Samples:    len(records),
			Categories: len(classes),
		}
	}

	docs := make([]string, len(records))
	for i, rec := range records {
		docs[i] = rec.CombinedText
	}
	c.vectorizer.Fit(docs)

	bayesClasses := make([]bayesian.Class, len(classes))
	for i, name := range classes {
		bayesClasses[i] = bayesian.Class(name)
	}

	c.bayes = bayesian.NewClassifierTfIdf(bayesClasses...)
	for i, doc := range docs {
		// An out-of-vocabulary document still teaches the class prior.
		c.bayes.Learn(c.vectorizer.Transform(doc), bayesian.Class(labels[i]))
	}
	c.bayes.ConvertTermsFreqToTfIdf()

	c.classes = classes
	c.fitted = true
	return nil
}

// Classes returns the fitted class ordering.
func (c *Classifier) Classes() []string {
	out := make([]string, len(c.classes))
	copy(out, c.classes)
	return out
}

// PredictProba returns one probability row per record, aligned to Classes.
// Every row sums to 1 and every entry is non-negative.
func (c *Classifier) PredictProba(records []feature.Record) ([][]float64, error) {
	if !c.fitted {
		return nil, common.ErrNotTrained
	}

	rows := make([][]float64, len(records))
	for i, rec := range records {
		tokens := c.vectorizer.Transform(rec.CombinedText)
		logScores, _, _ := c.bayes.LogScores(tokens)
		rows[i] = softmax(logScores)
	}
	return rows, nil
}

// softmax converts unnormalized log scores to a probability distribution.
func softmax(logScores []float64) []float64 {
	maxScore := math.Inf(-1)
	for _, s := range logScores {
		if s > maxScore {
			maxScore = s
		}
	}

	probs := make([]float64, len(logScores))
	var total float64
	for i, s := range logScores {
		probs[i] = math.Exp(s - maxScore)
		total += probs[i]
	}
	if total == 0 {
		uniform := 1.0 / float64(len(probs))
		for i := range probs {
			probs[i] = uniform
		}
		return probs
	}
	for i := range probs {
		probs[i] /= total
	}
	return probs
}

// Save writes the fitted classifier as a single blob: the vocabulary and
// class ordering plus the underlying Bayes model.
func (c *Classifier) Save(w io.Writer) error {
	if !c.fitted {
		return common.ErrNotTrained
	}
	return c.bayes.WriteTo(w)
}

// SaveBytes is Save into a byte slice, for embedding in a larger envelope.
func (c *Classifier) SaveBytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := c.Save(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Restore rebuilds a fitted classifier from a saved blob plus the
// vectorizer state and class ordering stored alongside it.
func Restore(blob []byte, vectorizer *Vectorizer, classes []string) (*Classifier, error) {
	bayes, err := bayesian.NewClassifierFromReader(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("failed to restore text classifier: %w", err)
	}
	return &Classifier{
		vectorizer: vectorizer,
		bayes:      bayes,
		classes:    classes,
		fitted:     true,
	}, nil
}

// VectorizerState exposes the fitted vectorizer for serialization.
func (c *Classifier) VectorizerState() *Vectorizer {
	return c.vectorizer
}

func uniqueSorted(labels []string) []string {
	set := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		set[l] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for l := range set {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}
