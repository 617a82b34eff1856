package models

import "errors"

// ErrInvalidArgument marks caller contract violations (e.g. nothing to evaluate).
// Not retryable; handlers map it to 400.
var ErrInvalidArgument = errors.New("invalid argument")
