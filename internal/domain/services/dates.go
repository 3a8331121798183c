package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/ochairo/kdibridge/internal/domain/entities"
)

// Date layouts
const (
	// CanonicalDateLayout is the created_at format of emitted findings
	CanonicalDateLayout = "2006-01-02-15:04:05"

	// CheckmarxDateLayout matches report detection dates such as "01/15/2024 3:45:10 PM"
	CheckmarxDateLayout = "1/2/2006 3:04:05 PM"
)

// NormalizeDate reparses value with layout into CanonicalDateLayout.
// With a 12-hour layout the meridiem is matched case-insensitively and a
// 24-hour clock followed by a meridiem is also accepted.
func NormalizeDate(layout, value string) (string, error) {
	t, err := time.Parse(layout, value)
	if err != nil && strings.HasSuffix(layout, "PM") {
		clean := strings.ToUpper(strings.Join(strings.Fields(value), " "))
		if t, err = time.Parse(layout, clean); err != nil {
			t, err = time.Parse(strings.Replace(layout, "3:04", "15:04", 1), clean)
		}
	}
	if err != nil {
		return "", fmt.Errorf("%w: date %q: %v", entities.ErrParseFailure, value, err)
	}
	return t.Format(CanonicalDateLayout), nil
}
