package model

import "errors"

// Sentinel errors for the pipeline. Stages wrap these with %w and callers
// match with errors.Is.
var (
	// ErrValidation indicates malformed or out-of-range input data.
	ErrValidation = errors.New("validation failed")
	// ErrStaleElements indicates an element set whose epoch lies outside
	// the configured validity window for the run.
	ErrStaleElements = errors.New("stale element set outside validity window")
	// ErrConfiguration indicates required configuration is missing or
	// invalid. Physical parameters are never defaulted; absence is fatal.
	ErrConfiguration = errors.New("invalid configuration")
	// ErrTimeout indicates a stage exceeded its wall-clock budget.
	ErrTimeout = errors.New("stage budget exceeded")
)
