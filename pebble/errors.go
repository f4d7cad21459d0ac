package pebblestore

import "errors"

var (
	// ErrDirRequired is returned when Open is called without a directory.
	ErrDirRequired = errors.New("lordn pebble: directory is required")
	// ErrInvalidKeyPart is returned when a queue or tag contains a NUL byte.
	ErrInvalidKeyPart = errors.New("lordn pebble: queue and tag must not contain NUL")
	// ErrClaimLimitInvalid is returned when ClaimDue is called without a positive limit.
	ErrClaimLimitInvalid = errors.New("lordn pebble: claim limit must be positive")
)
