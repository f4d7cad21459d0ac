package lordn

import "fmt"

// Phase selects the LORDN report category. Its value is also the last segment
// of the MarksDB upload path and cannot be changed on our end.
type Phase string

const (
	// PhaseClaims reports domains registered during a claims period.
	PhaseClaims Phase = "claims"
	// PhaseSunrise reports domains registered during sunrise with an SMD.
	PhaseSunrise Phase = "sunrise"
)

const (
	// QueueClaims holds pending claims lines.
	QueueClaims = "lordn-claims"
	// QueueSunrise holds pending sunrise lines.
	QueueSunrise = "lordn-sunrise"

	// ColumnsClaims is the column header line of a claims report.
	ColumnsClaims = "roid,domain-name,notice-id,registrar-id,registration-datetime,ack-datetime,application-datetime"
	// ColumnsSunrise is the column header line of a sunrise report.
	ColumnsSunrise = "roid,domain-name,SMD-id,registrar-id,registration-datetime,application-datetime"

	uploadPathFormat = "/LORDN/%s/%s"
)

// ParsePhase validates a phase selector.
func ParsePhase(value string) (Phase, error) {
	phase := Phase(value)
	if !phase.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidPhase, value)
	}

	return phase, nil
}

// Valid reports whether p is one of the recognized phases.
func (p Phase) Valid() bool {
	return p == PhaseClaims || p == PhaseSunrise
}

// Queue returns the queue identity that holds lines of this phase.
func (p Phase) Queue() string {
	switch p {
	case PhaseClaims:
		return QueueClaims
	case PhaseSunrise:
		return QueueSunrise
	default:
		return ""
	}
}

// Columns returns the report column header line of this phase.
func (p Phase) Columns() string {
	switch p {
	case PhaseClaims:
		return ColumnsClaims
	case PhaseSunrise:
		return ColumnsSunrise
	default:
		return ""
	}
}

// String implements fmt.Stringer.
func (p Phase) String() string {
	return string(p)
}

// UploadPath returns the MarksDB path for a report of tag in phase.
func UploadPath(tag string, phase Phase) string {
	return fmt.Sprintf(uploadPathFormat, tag, phase)
}
