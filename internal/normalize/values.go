package normalize

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
)

// ErrUnparseableNumber is returned for non-blank cells that are not numbers.
var ErrUnparseableNumber = errors.New("unparseable number")

// nullMarkers are the spreadsheet/dataframe spellings of "no value".
// Compared after trimming and lower-casing.
var nullMarkers = map[string]struct{}{
	"":     {},
	"nat":  {},
	"nan":  {},
	"none": {},
	"null": {},
	"<na>": {},
}

var (
	floatSuffixRe = regexp.MustCompile(`^(-?\d+)\.0+$`)
	sciNotationRe = regexp.MustCompile(`^\d+(\.\d+)?[eE]\+?\d+$`)
)

// IsNullMarker reports whether s is blank or one of the sentinel null spellings.
func IsNullMarker(s string) bool {
	_, ok := nullMarkers[strings.ToLower(strings.TrimSpace(s))]
	return ok
}

// CleanValue maps a raw cell to nil when it is missing (nil, NaN, blank or a
// sentinel string). Numbers pass through unchanged; anything else is returned
// as a trimmed string.
func CleanValue(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case *string:
		if t == nil {
			return nil
		}
		return CleanValue(*t)
	case string:
		s := strings.TrimSpace(t)
		if IsNullMarker(s) {
			return nil
		}
		return s
	case float64:
		if math.IsNaN(t) {
			return nil
		}
		return t
	case float32:
		if math.IsNaN(float64(t)) {
			return nil
		}
		return t
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return t
	case decimal.Decimal:
		return t
	case time.Time:
		if t.IsZero() {
			return nil
		}
		return t
	default:
		s := strings.TrimSpace(fmt.Sprint(t))
		if IsNullMarker(s) {
			return nil
		}
		return s
	}
}

// CleanString is CleanValue followed by stringification. Integer-valued
// floats render without a fractional part.
func CleanString(v any) (string, bool) {
	switch t := CleanValue(v).(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case float64:
		return formatFloat(t), true
	case float32:
		return formatFloat(float64(t)), true
	case decimal.Decimal:
		return t.String(), true
	case time.Time:
		return t.Format("2006-01-02"), true
	default:
		return fmt.Sprint(t), true
	}
}

// CleanInvoiceNumber normalizes an invoice number cell to a string key.
// Numeric coercion artifacts are removed so that 40011284, 40011284.0,
// "40011284.0" and "4.0011284E7" all yield "40011284".
func CleanInvoiceNumber(v any) (string, bool) {
	s, ok := CleanString(v)
	if !ok {
		return "", false
	}
	if m := floatSuffixRe.FindStringSubmatch(s); m != nil {
		s = m[1]
	} else if sciNotationRe.MatchString(s) {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			s = formatFloat(f)
		}
	}
	if IsNullMarker(s) {
		return "", false
	}
	return s, true
}

// ParseDecimal parses money, hours and rate cells. The bool is false when the
// cell is missing; err is set only for non-blank garbage.
// Accepts "$1,234.50", "(12.00)" and trailing-minus negatives.
func ParseDecimal(v any) (decimal.Decimal, bool, error) {
	switch t := CleanValue(v).(type) {
	case nil:
		return decimal.Zero, false, nil
	case decimal.Decimal:
		return t, true, nil
	case float64:
		if math.IsInf(t, 0) {
			return decimal.Zero, false, fmt.Errorf("%w: %v", ErrUnparseableNumber, t)
		}
		return decimal.NewFromFloat(t), true, nil
	case float32:
		return decimal.NewFromFloat32(t), true, nil
	case int:
		return decimal.NewFromInt(int64(t)), true, nil
	case int32:
		return decimal.NewFromInt32(t), true, nil
	case int64:
		return decimal.NewFromInt(t), true, nil
	case string:
		return parseDecimalString(t)
	}
	s, _ := CleanString(v)
	return parseDecimalString(s)
}

func parseDecimalString(raw string) (decimal.Decimal, bool, error) {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, "$", "")
	s = strings.TrimSpace(s)

	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	if len(s) > 1 && strings.HasSuffix(s, "-") {
		neg = true
		s = strings.TrimSpace(strings.TrimSuffix(s, "-"))
	}
	if s == "" || s == "-" {
		return decimal.Zero, false, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("%w: %q", ErrUnparseableNumber, raw)
	}
	if neg {
		d = d.Neg()
	}
	return d, true, nil
}

// StripRevisionSuffix drops trailing letters from a revised invoice number,
// so "40011284A" becomes "40011284". Inputs that are all letters are returned
// unchanged.
func StripRevisionSuffix(s string) string {
	trimmed := strings.TrimRightFunc(strings.TrimSpace(s), unicode.IsLetter)
	if trimmed == "" {
		return s
	}
	return trimmed
}

// NormalizeKey is the dimension key form: trimmed and upper-cased.
func NormalizeKey(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func formatFloat(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
