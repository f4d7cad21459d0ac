package lordn

import (
	"bytes"
	"slices"
	"strconv"
	"time"
)

const (
	reportVersion = "1"
	// ReportTimeLayout is the RFC 3339 layout of the header timestamp.
	ReportTimeLayout = "2006-01-02T15:04:05.000Z07:00"
)

// Report is one LORDN CSV file: a header followed by distinct lines in ascending order.
type Report struct {
	// GeneratedAt is written in the header line.
	GeneratedAt time.Time
	// Columns is the column header line of the phase.
	Columns string
	// Lines are the distinct payloads in ascending byte order.
	Lines []string
	// Duplicates counts payloads dropped because an identical one was already present.
	Duplicates int
	// Blank counts records with an empty payload.
	Blank int
}

// Assemble converts leased batches into a report. Blank payloads are skipped and
// repeated payloads are kept once, so the body only depends on the set of payloads.
func Assemble(batches []Batch, now time.Time, columns string) Report {
	seen := make(map[string]struct{}, countRecords(batches))
	report := Report{GeneratedAt: now.UTC(), Columns: columns}
	for _, batch := range batches {
		for i := range batch.Records {
			payload := batch.Records[i].Payload
			if len(payload) == 0 {
				report.Blank++

				continue
			}
			if _, ok := seen[string(payload)]; ok {
				report.Duplicates++

				continue
			}
			seen[string(payload)] = struct{}{}
		}
	}

	report.Lines = make([]string, 0, len(seen))
	for line := range seen {
		report.Lines = append(report.Lines, line)
	}
	slices.Sort(report.Lines)

	return report
}

// Count returns the number of distinct lines.
func (r Report) Count() int {
	return len(r.Lines)
}

// Empty reports whether there is nothing to upload.
func (r Report) Empty() bool {
	return len(r.Lines) == 0
}

// Header returns the version line and the column line, both newline-terminated.
func (r Report) Header() string {
	return reportVersion + "," + r.GeneratedAt.UTC().Format(ReportTimeLayout) + "," + strconv.Itoa(r.Count()) + "\n" + r.Columns + "\n"
}

// Bytes renders the report exactly as uploaded.
func (r Report) Bytes() []byte {
	header := r.Header()
	size := len(header)
	for _, line := range r.Lines {
		size += len(line) + 1
	}

	var buf bytes.Buffer
	buf.Grow(size)
	buf.WriteString(header)
	for _, line := range r.Lines {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}

	return buf.Bytes()
}

// String implements fmt.Stringer.
func (r Report) String() string {
	return string(r.Bytes())
}
