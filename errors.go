package lordn

import "errors"

var (
	// ErrInvalidPhase indicates a phase other than claims or sunrise.
	ErrInvalidPhase = errors.New("lordn phase is invalid")
	// ErrTagRequired is returned when the partition tag (TLD) is empty.
	ErrTagRequired = errors.New("lordn tag is required")
	// ErrQueueRequired is returned when a lease or enqueue names no queue.
	ErrQueueRequired = errors.New("lordn queue name is required")
	// ErrInvalidBatchSize indicates that the requested lease limit is not positive.
	ErrInvalidBatchSize = errors.New("lordn batch size must be positive")
	// ErrInvalidLeasePeriod indicates that the requested lease period is not positive.
	ErrInvalidLeasePeriod = errors.New("lordn lease period must be positive")
	// ErrPayloadRequired is returned when Entry.Payload is empty.
	ErrPayloadRequired = errors.New("lordn payload is required")
	// ErrPayloadMultiline is returned when Entry.Payload spans more than one line.
	ErrPayloadMultiline = errors.New("lordn payload must be a single line")
	// ErrActionRequired is returned when a scheduled task has no action.
	ErrActionRequired = errors.New("lordn task action is required")
	// ErrInvalidDelay is returned when a scheduled task has a negative delay.
	ErrInvalidDelay = errors.New("lordn task delay must be non-negative")
	// ErrInvalidID is returned when parsing or scanning an ID fails.
	ErrInvalidID = errors.New("lordn id is invalid")
	// ErrLeaseFailed wraps the terminal error of the batch leaser.
	ErrLeaseFailed = errors.New("lordn lease failed")
	// ErrEndpointInvalid is returned when the MarksDB base URL cannot be used.
	ErrEndpointInvalid = errors.New("lordn endpoint is invalid")
	// ErrUploadRejected indicates MarksDB answered with a status other than 202 Accepted.
	ErrUploadRejected = errors.New("lordn upload rejected by MarksDB")
	// ErrMissingLocation indicates an accepted upload without a Location header.
	ErrMissingLocation = errors.New("lordn upload accepted without Location header")
	// ErrUploadTransport wraps connection and IO failures talking to MarksDB.
	ErrUploadTransport = errors.New("lordn upload transport failed")
	// ErrBoundaryCollision indicates that no multipart boundary absent from the report was found.
	ErrBoundaryCollision = errors.New("lordn multipart boundary collides with report content")
)

type transientError struct {
	err error
}

func (t transientError) Error() string { return t.err.Error() }
func (t transientError) Unwrap() error { return t.err }

// NewTransientError marks err as retryable by the default retry classifier.
func NewTransientError(err error) error {
	if err == nil {
		return nil
	}

	return transientError{err: err}
}

// IsTransient reports whether err was marked as retryable.
func IsTransient(err error) bool {
	var te transientError

	return errors.As(err, &te)
}
