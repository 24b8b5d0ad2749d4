package filter

import (
	"strconv"
	"strings"
	"time"

	"github.com/rpattn/workbench/internal/domain"
)

// DateLayouts are the accepted formats for date/time literals, tried in order.
var DateLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02 15:04:05.000",
	"2006/01/02",
	"2006/01/02 15:04:05",
	"01/02/2006",
	"01/02/2006 15:04:05",
	"02/01/2006",
	"2 Jan 2006",
	"Jan 2, 2006",
}

// Coerce converts a user-typed literal into a value comparable with ref.
// compareAsString is true when ref is a string and the literal is used
// verbatim. ok is false when the literal cannot be read as ref's type or
// ref is of a kind that never compares (null or other).
func Coerce(literal string, ref domain.FieldValue) (coerced domain.FieldValue, compareAsString bool, ok bool) {
	switch ref.Kind() {
	case domain.KindString:
		return domain.StringValue(literal), true, true
	case domain.KindInt:
		parsed, err := strconv.ParseInt(strings.TrimSpace(literal), 10, 64)
		if err != nil {
			return domain.NullValue(), false, false
		}
		return domain.IntValue(parsed), false, true
	case domain.KindDouble:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(literal), 64)
		if err != nil {
			return domain.NullValue(), false, false
		}
		return domain.DoubleValue(parsed), false, true
	case domain.KindDateTime:
		parsed, err := ParseDateTime(literal)
		if err != nil {
			return domain.NullValue(), false, false
		}
		return domain.DateTimeValue(parsed), false, true
	default:
		return domain.NullValue(), false, false
	}
}

// ParseDateTime parses a literal with the first matching layout in DateLayouts.
func ParseDateTime(literal string) (time.Time, error) {
	literal = strings.TrimSpace(literal)
	var firstErr error
	for _, layout := range DateLayouts {
		parsed, err := time.Parse(layout, literal)
		if err == nil {
			return parsed, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}
