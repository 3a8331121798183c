package entities

import "fmt"

// Severity ordinals shared by every connector
const (
	SeverityHigh          = 9
	SeverityMedium        = 6
	SeverityLow           = 3
	SeverityInformational = 0
)

// SeverityTable maps a vendor severity label onto a severity ordinal
type SeverityTable map[string]int

// CheckmarxSeverities is the label table used for Checkmarx SAST results
var CheckmarxSeverities = SeverityTable{
	"High":          SeverityHigh,
	"Medium":        SeverityMedium,
	"Low":           SeverityLow,
	"Informational": SeverityInformational,
}

// QualysSeverities maps Qualys WAS levels (1 minimal .. 5 urgent) onto the same ordinals
var QualysSeverities = SeverityTable{
	"5": SeverityHigh,
	"4": SeverityHigh,
	"3": SeverityMedium,
	"2": SeverityLow,
	"1": SeverityInformational,
}

// Score looks up label. Labels outside the table are an error, never a default.
func (t SeverityTable) Score(label string) (int, error) {
	score, ok := t[label]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownSeverity, label)
	}
	return score, nil
}
