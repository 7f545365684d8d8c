package ensemble

import (
	"bytes"
	"encoding/gob"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/the-mentat-must-flow/internal/common"
	"github.com/Veraticus/the-mentat-must-flow/internal/model"
)

// reversionBlob rewraps a saved state blob with a different envelope
// version.
func reversionBlob(t *testing.T, blob []byte, version int) []byte {
	t.Helper()

	var env envelope
	require.NoError(t, gob.NewDecoder(bytes.NewReader(blob)).Decode(&env))
	env.Version = version

	var out bytes.Buffer
	require.NoError(t, gob.NewEncoder(&out).Encode(env))
	return out.Bytes()
}

func TestHandleRejectsPredictionsUntrained(t *testing.T) {
	h := NewHandle()

	_, err := h.Predict([]model.Transaction{{Name: "EDEKA"}})
	assert.ErrorIs(t, err, common.ErrNotTrained)
	assert.Nil(t, h.Current())
}

func TestHandleTrainActivatesEnsemble(t *testing.T) {
	h := NewHandle()

	summary, err := h.Train(testTrainConfig(), trainingHistory(), nil)
	require.NoError(t, err)
	assert.Equal(t, 60, summary.Samples)
	require.NotNil(t, h.Current())

	result, err := h.Predict([]model.Transaction{
		{Date: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), Name: "ARAL TANKSTELLE", Purpose: "Tanken Benzin", Amount: -45},
	})
	require.NoError(t, err)
	assert.Len(t, result.Predictions, 1)
}

func TestHandleFailedTrainKeepsActiveEnsemble(t *testing.T) {
	h := NewHandle()
	_, err := h.Train(testTrainConfig(), trainingHistory(), nil)
	require.NoError(t, err)
	before := h.Current()

	_, err = h.Train(testTrainConfig(), trainingHistory()[:10], nil)
	require.Error(t, err)
	assert.Same(t, before, h.Current(), "failed retrain must not replace the active state")
}

func TestHandleFailedPersistKeepsActiveEnsemble(t *testing.T) {
	h := NewHandle()
	_, err := h.Train(testTrainConfig(), trainingHistory(), nil)
	require.NoError(t, err)
	before := h.Current()

	persistErr := errors.New("disk full")
	_, err = h.Train(testTrainConfig(), trainingHistory(), func(*Categorizer) error {
		return persistErr
	})
	assert.ErrorIs(t, err, persistErr)
	assert.Same(t, before, h.Current(), "unpersisted state must never become active")

	// The in-flight guard is released, so the next run can succeed.
	_, err = h.Train(testTrainConfig(), trainingHistory(), nil)
	require.NoError(t, err)
	assert.NotSame(t, before, h.Current())
}

func TestHandleRejectsConcurrentTraining(t *testing.T) {
	h := NewHandle()
	require.True(t, h.training.CompareAndSwap(false, true))

	_, err := h.Train(testTrainConfig(), trainingHistory(), nil)
	assert.ErrorIs(t, err, common.ErrTrainingInProgress)

	h.training.Store(false)
	_, err = h.Train(testTrainConfig(), trainingHistory(), nil)
	assert.NoError(t, err)
}

func TestHandleInstallRestoredState(t *testing.T) {
	c, err := Train(testTrainConfig(), trainingHistory())
	require.NoError(t, err)
	blob, err := c.SaveState()
	require.NoError(t, err)

	restored, err := Restore(blob, testTrainConfig())
	require.NoError(t, err)

	h := NewHandle()
	h.Install(restored)
	assert.Same(t, restored, h.Current())
}
