package models

import "errors"

// Failure kinds callers branch on with errors.Is. Analytics operations
// never surface ErrNoData to callers; they degrade to empty results so
// dashboards keep rendering. Forecast operations always surface their
// failures distinctly because a degenerate forecast presented as real
// data is worse than no forecast.
var (
	// ErrNoData: no rows match the filter for a latest-date resolution.
	ErrNoData = errors.New("no data for filters")

	// ErrInvalidParameter: mutually exclusive window specifications
	// supplied together, or an otherwise malformed request.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrInvalidModelName: a registry filename fails the naming grammar.
	// Hard error; the encoded identity is load-bearing.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrModelNotFound: forecast requested against an absent model.
	// Recoverable by training.
	ErrModelNotFound = errors.New("model not found")

	// ErrInsufficientHistory: fewer usable days than lookback+horizon.
	// Recoverable by widening the window or waiting for more snapshots.
	ErrInsufficientHistory = errors.New("insufficient history")

	// Registry upload validation failures.
	ErrUploadTooLarge       = errors.New("upload exceeds size limit")
	ErrUnsupportedExtension = errors.New("unsupported model file extension")
)
