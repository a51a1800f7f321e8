package domain

import "errors"

var (
	// ErrEmptyCode is returned when the submitted code is empty.
	ErrEmptyCode = errors.New("code cannot be empty")

	// ErrCodeTooLarge is returned when the submitted code exceeds the size limit.
	ErrCodeTooLarge = errors.New("code payload exceeds maximum size (64KB)")

	// ErrInvalidTimeout is returned when the timeout is outside the allowed range.
	ErrInvalidTimeout = errors.New("timeout must be between 1 and 30 seconds")
)
