package lordn

import "bytes"

// Entry describes a new LORDN line to be queued.
type Entry struct {
	// ID is optional, if zero, the store generator assigns a UUID v7.
	ID ID
	// Tag is the partition key, usually the TLD.
	Tag string
	// Payload is one CSV row matching the phase columns, without a line terminator.
	Payload []byte
}

// Validate checks required fields and that the payload is a single line.
func (e Entry) Validate() error {
	if e.Tag == "" {
		return ErrTagRequired
	}
	if len(e.Payload) == 0 {
		return ErrPayloadRequired
	}
	if bytes.ContainsAny(e.Payload, "\r\n") {
		return ErrPayloadMultiline
	}

	return nil
}

// ValidateEnqueue checks the queue name and the entry.
func ValidateEnqueue(queue string, entry Entry) error {
	if queue == "" {
		return ErrQueueRequired
	}

	return entry.Validate()
}
