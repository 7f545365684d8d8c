package ensemble

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"time"

	"github.com/Veraticus/the-mentat-must-flow/internal/common"
	"github.com/Veraticus/the-mentat-must-flow/internal/model"
	"github.com/Veraticus/the-mentat-must-flow/internal/rules"
	"github.com/Veraticus/the-mentat-must-flow/internal/structclf"
	"github.com/Veraticus/the-mentat-must-flow/internal/textclf"
	"github.com/Veraticus/the-mentat-must-flow/internal/validate"
)

// ModelVersion tags persisted ensemble state. Bump it whenever stateV1
// gains a successor, and add the migration case to Restore.
const ModelVersion = "ensemble-v1"

// stateVersion is the current envelope payload version.
const stateVersion = 1

// envelope wraps a versioned payload so Restore can dispatch before
// decoding the body.
type envelope struct {
	Version int
	Payload []byte
}

// stateV1 is the complete serialized ensemble: both classifiers, the rule
// snapshot, the class ordering, and the fitted weights. It is always
// written and read as one unit; there is no partial restore.
type stateV1 struct {
	StructuredBlob []byte
	TextBlob       []byte
	TextVectorizer *textclf.Vectorizer
	TextClasses    []string
	Rules          []model.MerchantRule
	Classes        []string
	Weights        validate.Weights
	Summary        model.TrainingSummary
	SavedAt        time.Time
}

// SaveState serializes the trained ensemble into a single opaque blob.
func (c *Categorizer) SaveState() ([]byte, error) {
	structuredBlob, err := c.structured.SaveBytes()
	if err != nil {
		return nil, fmt.Errorf("serializing structured classifier: %w", err)
	}
	textBlob, err := c.text.SaveBytes()
	if err != nil {
		return nil, fmt.Errorf("serializing text classifier: %w", err)
	}

	var payload bytes.Buffer
	if err := gob.NewEncoder(&payload).Encode(stateV1{
		StructuredBlob: structuredBlob,
		TextBlob:       textBlob,
		TextVectorizer: c.text.VectorizerState(),
		TextClasses:    c.text.Classes(),
		Rules:          c.rules.Snapshot(),
		Classes:        c.classes,
		Weights:        c.weights,
		Summary:        c.summary,
		SavedAt:        time.Now().UTC(),
	}); err != nil {
		return nil, fmt.Errorf("encoding ensemble state: %w", err)
	}

	var blob bytes.Buffer
	if err := gob.NewEncoder(&blob).Encode(envelope{
		Version: stateVersion,
		Payload: payload.Bytes(),
	}); err != nil {
		return nil, fmt.Errorf("encoding state envelope: %w", err)
	}
	return blob.Bytes(), nil
}

// Restore rebuilds a trained Categorizer from a SaveState blob. Unknown
// versions are rejected rather than guessed at.
func Restore(blob []byte, cfg Config) (*Categorizer, error) {
	var env envelope
	if err := gob.NewDecoder(bytes.NewReader(blob)).Decode(&env); err != nil {
		return nil, fmt.Errorf("decoding state envelope: %w", err)
	}

	switch env.Version {
	case stateVersion:
		return restoreV1(env.Payload, cfg)
	default:
		return nil, fmt.Errorf("ensemble state version %d is not supported: %w",
			env.Version, common.ErrInvalidConfig)
	}
}

func restoreV1(payload []byte, cfg Config) (*Categorizer, error) {
	var st stateV1
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&st); err != nil {
		return nil, fmt.Errorf("decoding ensemble state: %w", err)
	}

	structured, err := structclf.Restore(st.StructuredBlob, cfg.Structured)
	if err != nil {
		return nil, fmt.Errorf("restoring structured classifier: %w", err)
	}
	text, err := textclf.Restore(st.TextBlob, st.TextVectorizer, st.TextClasses)
	if err != nil {
		return nil, fmt.Errorf("restoring text classifier: %w", err)
	}

	return &Categorizer{
		cfg:        cfg,
		rules:      rules.FromSnapshot(st.Rules),
		structured: structured,
		text:       text,
		classes:    st.Classes,
		weights:    st.Weights,
		summary:    st.Summary,
	}, nil
}
