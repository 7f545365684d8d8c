package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/the-mentat-must-flow/internal/common"
	"github.com/Veraticus/the-mentat-must-flow/internal/ensemble"
)

func TestLoadMLConfigDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	cfg, err := LoadMLConfig()
	require.NoError(t, err)
	assert.Equal(t, ensemble.DefaultConfig().MinSamples, cfg.MinSamples)
	assert.Equal(t, ensemble.DefaultConfig().Folds, cfg.Folds)
}

func TestLoadMLConfigOverrides(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	viper.Set("ml.min_samples", 100)
	viper.Set("ml.seed", 7)
	viper.Set("ml.boost.rounds", 30)

	cfg, err := LoadMLConfig()
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.MinSamples)
	assert.Equal(t, int64(7), cfg.Seed)
	assert.Equal(t, 30, cfg.Structured.Boost.Rounds)
	assert.Equal(t, int64(7), cfg.Structured.Boost.Seed, "boosting shares the global seed")
}

func TestLoadMLConfigRejectsInvalid(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	viper.Set("ml.holdout_share", 0.9)

	_, err := LoadMLConfig()
	assert.ErrorIs(t, err, common.ErrInvalidConfig)
}

func TestReviewSettings(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	assert.InDelta(t, 0.95, AutoApproveThreshold(), 1e-9)
	assert.Equal(t, 20, ReviewBatchSize())

	viper.Set("review.auto_approve_threshold", 0.99)
	viper.Set("review.batch_size", 5)
	assert.InDelta(t, 0.99, AutoApproveThreshold(), 1e-9)
	assert.Equal(t, 5, ReviewBatchSize())
}
