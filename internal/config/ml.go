package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/Veraticus/the-mentat-must-flow/internal/common"
	"github.com/Veraticus/the-mentat-must-flow/internal/ensemble"
	"github.com/Veraticus/the-mentat-must-flow/internal/model"
)

// LoadMLConfig builds the training configuration from Viper, starting
// from the production defaults. Every key under ml.* is optional.
func LoadMLConfig() (ensemble.Config, error) {
	cfg := ensemble.DefaultConfig()

	if v := viper.GetInt("ml.min_samples"); v > 0 {
		cfg.MinSamples = v
	}
	if v := viper.GetInt("ml.min_per_category"); v > 0 {
		cfg.MinPerCategory = v
	}
	if v := viper.GetInt("ml.folds"); v > 0 {
		cfg.Folds = v
	}
	if viper.IsSet("ml.seed") {
		cfg.Seed = viper.GetInt64("ml.seed")
	}
	if v := viper.GetFloat64("ml.shortcut_confidence"); v > 0 {
		cfg.ShortcutConfidence = v
	}
	if v := viper.GetFloat64("ml.holdout_share"); v > 0 {
		cfg.HoldoutShare = v
	}
	if v := viper.GetInt("ml.top_features"); v > 0 {
		cfg.TopFeatureCount = v
	}

	if v := viper.GetInt("ml.boost.rounds"); v > 0 {
		cfg.Structured.Boost.Rounds = v
	}
	if v := viper.GetInt("ml.boost.max_depth"); v > 0 {
		cfg.Structured.Boost.MaxDepth = v
	}
	if v := viper.GetInt("ml.boost.min_leaf_samples"); v > 0 {
		cfg.Structured.Boost.MinLeafSamples = v
	}
	if v := viper.GetFloat64("ml.boost.learning_rate"); v > 0 {
		cfg.Structured.Boost.LearningRate = v
	}
	if v := viper.GetFloat64("ml.boost.feature_fraction"); v > 0 {
		cfg.Structured.Boost.FeatureFraction = v
	}
	cfg.Structured.Boost.Seed = cfg.Seed

	if err := validateMLConfig(cfg); err != nil {
		return ensemble.Config{}, err
	}
	return cfg, nil
}

func validateMLConfig(cfg ensemble.Config) error {
	if cfg.Folds < 2 {
		return fmt.Errorf("ml.folds must be at least 2, got %d: %w", cfg.Folds, common.ErrInvalidConfig)
	}
	if cfg.ShortcutConfidence > 1 {
		return fmt.Errorf("ml.shortcut_confidence must not exceed 1, got %g: %w", cfg.ShortcutConfidence, common.ErrInvalidConfig)
	}
	if cfg.HoldoutShare >= 0.5 {
		return fmt.Errorf("ml.holdout_share must be below 0.5, got %g: %w", cfg.HoldoutShare, common.ErrInvalidConfig)
	}
	if cfg.Structured.Boost.LearningRate > 1 {
		return fmt.Errorf("ml.boost.learning_rate must not exceed 1, got %g: %w", cfg.Structured.Boost.LearningRate, common.ErrInvalidConfig)
	}
	if cfg.Structured.Boost.FeatureFraction > 1 {
		return fmt.Errorf("ml.boost.feature_fraction must not exceed 1, got %g: %w", cfg.Structured.Boost.FeatureFraction, common.ErrInvalidConfig)
	}
	return nil
}

// AutoApproveThreshold resolves the confidence above which predictions
// are applied without review.
func AutoApproveThreshold() float64 {
	if v := viper.GetFloat64("review.auto_approve_threshold"); v > 0 {
		return v
	}
	return model.DefaultAutoApproveThreshold
}

// ReviewBatchSize resolves how many predictions a review session pulls.
func ReviewBatchSize() int {
	if v := viper.GetInt("review.batch_size"); v > 0 {
		return v
	}
	return 20
}
