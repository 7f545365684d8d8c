package storage

import (
	"context"
	"fmt"

	"github.com/Veraticus/the-mentat-must-flow/internal/common"
)

func validateContext(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("context must not be nil: %w", common.ErrInvalidConfig)
	}
	return ctx.Err()
}

func validateString(value, name string) error {
	if value == "" {
		return fmt.Errorf("%s must not be empty: %w", name, common.ErrInvalidConfig)
	}
	return nil
}
