package lordn

import "time"

// Handle identifies one lease on one queued record. Deletion requires both parts:
// a record whose lease expired and was taken by another consumer is left to that consumer.
type Handle struct {
	ID    ID
	Lease ID
}

// Record is a queued LORDN line returned by a lease call.
type Record struct {
	Handle     Handle
	Queue      string
	Tag        string
	Payload    []byte
	EnqueuedAt time.Time
}

// Batch is the ordered set of records returned by one lease call.
type Batch struct {
	Records []Record
}

// Len returns the number of records in the batch.
func (b Batch) Len() int {
	return len(b.Records)
}

// Handles returns the lease handles of every record in the batch.
func (b Batch) Handles() []Handle {
	handles := make([]Handle, 0, len(b.Records))
	for i := range b.Records {
		handles = append(handles, b.Records[i].Handle)
	}

	return handles
}

func countRecords(batches []Batch) int {
	total := 0
	for _, batch := range batches {
		total += batch.Len()
	}

	return total
}
