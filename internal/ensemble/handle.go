package ensemble

import (
	"sync/atomic"

	"github.com/Veraticus/the-mentat-must-flow/internal/common"
	"github.com/Veraticus/the-mentat-must-flow/internal/model"
)

// Handle is the caller-owned entry point to the active ensemble. Before
// the first successful training it rejects predictions; after a retrain
// the new state becomes visible atomically while in-flight predictions
// finish against the old one.
type Handle struct {
	active   atomic.Pointer[Categorizer]
	training atomic.Bool
}

// NewHandle returns an untrained handle.
func NewHandle() *Handle {
	return &Handle{}
}

// Current returns the active ensemble, or nil before the first training.
func (h *Handle) Current() *Categorizer {
	return h.active.Load()
}

// Install atomically activates an already trained ensemble, typically one
// restored from persisted state.
func (h *Handle) Install(c *Categorizer) {
	h.active.Store(c)
}

// Train fits a fresh ensemble, runs the optional persist hook, and swaps
// the new state in only once both have succeeded. At most one training
// run may be in flight; concurrent attempts are rejected with
// ErrTrainingInProgress. A failed fit or persist leaves the active
// ensemble untouched.
func (h *Handle) Train(cfg Config, history []model.Transaction, persist func(*Categorizer) error) (model.TrainingSummary, error) {
	if !h.training.CompareAndSwap(false, true) {
		return model.TrainingSummary{}, common.ErrTrainingInProgress
	}
	defer h.training.Store(false)

	c, err := Train(cfg, history)
	if err != nil {
		return model.TrainingSummary{}, err
	}
	if persist != nil {
		if err := persist(c); err != nil {
			return model.TrainingSummary{}, err
		}
	}
	h.active.Store(c)
	return c.Summary(), nil
}

// Predict classifies a batch against the active ensemble.
func (h *Handle) Predict(txns []model.Transaction) (*BatchResult, error) {
	c := h.active.Load()
	if c == nil {
		return nil, common.ErrNotTrained
	}
	return c.Predict(txns), nil
}
