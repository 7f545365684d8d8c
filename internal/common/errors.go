// Package common provides shared utilities and types used across the application.
package common

import (
	"errors"
	"fmt"
)

// Common application errors.
var (
	// Storage errors.
	ErrNotFound       = errors.New("not found")
	ErrDuplicateEntry = errors.New("duplicate entry")

	// Classification errors.
	ErrNotTrained         = errors.New("model is not trained")
	ErrTrainingInProgress = errors.New("a training run is already in progress")
	ErrUnknownStrategy    = errors.New("unknown selection strategy")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// TrainingDataError reports a training corpus that is too small or too
// homogeneous to train on. It names the shortfall so the caller can tell
// the user how much more labeled data is needed.
type TrainingDataError struct {
	Samples     int // labeled transactions available
	MinSamples  int // labeled transactions required overall
	Categories  int // categories meeting the per-category minimum
	MinCategory int // size of the smallest category present
	PerCategory int // samples required per category
}

func (e *TrainingDataError) Error() string {
	switch {
	case e.MinSamples > 0 && e.Samples < e.MinSamples:
		return fmt.Sprintf("insufficient training data: have %d labeled transactions, need at least %d",
			e.Samples, e.MinSamples)
	case e.Categories < 2:
		return fmt.Sprintf("insufficient training data: %d categories have enough samples, need at least 2",
			e.Categories)
	default:
		return fmt.Sprintf("insufficient training data: smallest category has %d samples, need at least %d per category",
			e.MinCategory, e.PerCategory)
	}
}

// IsTrainingDataError reports whether err is a TrainingDataError.
func IsTrainingDataError(err error) bool {
	var tde *TrainingDataError
	return errors.As(err, &tde)
}

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}

// FormatUserError returns the user-facing message when the error carries
// one, falling back to the full error text.
func FormatUserError(err error) string {
	var ue *UserError
	if errors.As(err, &ue) {
		return ue.UserMessage
	}
	return err.Error()
}
