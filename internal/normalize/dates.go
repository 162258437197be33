package normalize

import (
	"strings"
	"time"

	"github.com/medrex/clinic-audit/pkg/logger"
)

// StorageLayout is the canonical stored date form
const StorageLayout = "2006-01-02"

// DisplayLayout is the day-first form used in descriptions
const DisplayLayout = "02/01/2006"

// dayFirstLayouts accept one or two digit day and month
var dayFirstLayouts = []string{
	"2/1/2006",
	"2-1-2006",
	"2.1.2006",
}

// Normalizer turns loosely formatted source values into stored form
type Normalizer struct {
	logger *logger.Logger
}

// New creates a new normalizer
func New(log *logger.Logger) *Normalizer {
	return &Normalizer{logger: log}
}

// FormatDate converts input to YYYY-MM-DD. Blank input yields nil. Input in
// no recognized format is returned unchanged and a warning is logged.
func (n *Normalizer) FormatDate(input string) *string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return nil
	}

	if t, ok := ParseDate(trimmed); ok {
		out := t.Format(StorageLayout)
		return &out
	}

	n.logger.WithFields(map[string]interface{}{
		"component": "normalize",
		"value":     input,
	}).Warn("Unrecognized date format, keeping original value")

	out := input
	return &out
}

// FormatDateString is FormatDate with "" for blank input
func (n *Normalizer) FormatDateString(input string) string {
	if out := n.FormatDate(input); out != nil {
		return *out
	}
	return ""
}

// ParseDate reads the date part of input. The time of day and any zone
// suffix on ISO timestamps are ignored so the calendar date never shifts.
func ParseDate(input string) (time.Time, bool) {
	s := strings.TrimSpace(input)
	if s == "" {
		return time.Time{}, false
	}

	if isISODatePrefix(s) {
		if len(s) > 10 && s[10] != 'T' && s[10] != ' ' {
			return time.Time{}, false
		}
		t, err := time.Parse(StorageLayout, s[:10])
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	}

	// day-first, optionally followed by a time
	if i := strings.IndexAny(s, " T"); i > 0 {
		s = s[:i]
	}
	for _, layout := range dayFirstLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}

	return time.Time{}, false
}

// DisplayDate renders a stored date as DD/MM/YYYY. Values that do not parse
// are returned as they are.
func DisplayDate(stored string) string {
	if t, ok := ParseDate(stored); ok {
		return t.Format(DisplayLayout)
	}
	return stored
}

// SameDay reports whether a and b name the same calendar date. When either
// side does not parse the raw strings are compared.
func SameDay(a, b string) bool {
	ta, okA := ParseDate(a)
	tb, okB := ParseDate(b)
	if okA && okB {
		return ta.Equal(tb)
	}
	return strings.TrimSpace(a) == strings.TrimSpace(b)
}

func isISODatePrefix(s string) bool {
	if len(s) < 10 || s[4] != '-' || s[7] != '-' {
		return false
	}
	for _, i := range []int{0, 1, 2, 3, 5, 6, 8, 9} {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
