package internalerr

import "errors"

// Sentinel errors for common cases
var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrInvalidPattern   = errors.New("invalid pattern")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrCommandFailed    = errors.New("external command failed")
	ErrMatchesMissing   = errors.New("matches file not found")
)
