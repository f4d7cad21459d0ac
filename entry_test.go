package lordn

import (
	"errors"
	"testing"
)

func TestEntryValidate(t *testing.T) {
	validPayload := []byte("SH8013-REP,example1.tld,1234,1,2010-08-16T09:00:00.0Z,2010-07-14T00:00:00.0Z,")

	cases := []struct {
		name  string
		entry Entry
		err   error
	}{
		{
			name:  "missing tag",
			entry: Entry{Payload: validPayload},
			err:   ErrTagRequired,
		},
		{
			name:  "missing payload",
			entry: Entry{Tag: "tld"},
			err:   ErrPayloadRequired,
		},
		{
			name:  "newline payload",
			entry: Entry{Tag: "tld", Payload: []byte("a\nb")},
			err:   ErrPayloadMultiline,
		},
		{
			name:  "carriage return payload",
			entry: Entry{Tag: "tld", Payload: []byte("a\r")},
			err:   ErrPayloadMultiline,
		},
		{
			name:  "valid",
			entry: Entry{Tag: "tld", Payload: validPayload},
			err:   nil,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.entry.Validate()
			if !errors.Is(err, tc.err) {
				t.Fatalf("expected %v, got %v", tc.err, err)
			}
		})
	}
}

func TestValidateEnqueueRequiresQueue(t *testing.T) {
	err := ValidateEnqueue("", Entry{Tag: "tld", Payload: []byte("x")})
	if !errors.Is(err, ErrQueueRequired) {
		t.Fatalf("expected ErrQueueRequired, got %v", err)
	}
	if err := ValidateEnqueue(QueueClaims, Entry{Tag: "tld", Payload: []byte("x")}); err != nil {
		t.Fatalf("expected valid enqueue, got %v", err)
	}
}

func TestLeaseOptionsValidate(t *testing.T) {
	valid := LeaseOptions{Queue: QueueClaims, Tag: "tld", Limit: 1, Period: DefaultLeasePeriod}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid options, got %v", err)
	}

	cases := []struct {
		name string
		opts LeaseOptions
		err  error
	}{
		{name: "queue", opts: LeaseOptions{Tag: "tld", Limit: 1, Period: 1}, err: ErrQueueRequired},
		{name: "tag", opts: LeaseOptions{Queue: "q", Limit: 1, Period: 1}, err: ErrTagRequired},
		{name: "limit", opts: LeaseOptions{Queue: "q", Tag: "tld", Period: 1}, err: ErrInvalidBatchSize},
		{name: "period", opts: LeaseOptions{Queue: "q", Tag: "tld", Limit: 1}, err: ErrInvalidLeasePeriod},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.opts.Validate(); !errors.Is(err, tc.err) {
				t.Fatalf("expected %v, got %v", tc.err, err)
			}
		})
	}
}
