package lordn

import (
	"context"
	"errors"
)

// RetryClassifier decides whether a failed queue or scheduler call is retried.
type RetryClassifier func(err error) bool

// DefaultRetryClassifier retries errors marked with NewTransientError and
// deadline overruns. Everything else fails immediately.
func DefaultRetryClassifier(err error) bool {
	if err == nil {
		return false
	}

	return IsTransient(err) || errors.Is(err, context.DeadlineExceeded)
}
