package normalize

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// ErrUnparseableDate is returned for non-blank cells that match no known date form.
var ErrUnparseableDate = errors.New("unparseable date")

// Excel's day zero (serial 1 is 1900-01-01, accounting for the 1900 leap-year bug).
var excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

const maxExcelSerial = 2958465 // 9999-12-31

// dateLayouts are tried in order after the yyyymmdd and serial checks.
// Month-first: both source systems export US dates.
var dateLayouts = []string{
	"2006-01-02",
	"1/2/2006",
	"1/2/2006 15:04",
	"1/2/2006 15:04:05",
	"1/2/2006 3:04 PM",
	"1/2/2006 3:04:05 PM",
	"1/2/06",
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05 -0700 MST",
	"2006/01/02",
	"1-2-2006",
	"02-Jan-2006",
	"2-Jan-06",
	"2 Jan 2006",
	"Jan 2, 2006",
	"January 2, 2006",
}

// ParseDate converts a raw cell to a date. Missing and unparseable values
// both yield an invalid (NULL) date; it never panics or errors.
func ParseDate(v any) pgtype.Date {
	d, _ := ParseDateStrict(v)
	return d
}

// ParseDateStrict is ParseDate that separates "missing" (invalid date, nil
// error) from "present but unparseable" (invalid date, ErrUnparseableDate).
func ParseDateStrict(v any) (pgtype.Date, error) {
	switch t := CleanValue(v).(type) {
	case nil:
		return pgtype.Date{}, nil
	case time.Time:
		return dateOf(t), nil
	case float64:
		return fromNumber(t)
	case float32:
		return fromNumber(float64(t))
	case int:
		return fromNumber(float64(t))
	case int32:
		return fromNumber(float64(t))
	case int64:
		return fromNumber(float64(t))
	case decimal.Decimal:
		f, _ := t.Float64()
		return fromNumber(f)
	case string:
		return parseDateString(t)
	}
	return pgtype.Date{}, fmt.Errorf("%w: unsupported cell type %T", ErrUnparseableDate, v)
}

func parseDateString(s string) (pgtype.Date, error) {
	if isDigits(s) && len(s) == 8 {
		t, err := time.Parse("20060102", s)
		if err != nil {
			return pgtype.Date{}, fmt.Errorf("%w: %q", ErrUnparseableDate, s)
		}
		return dateOf(t), nil
	}
	if looksNumeric(s) {
		f, err := strconv.ParseFloat(s, 64)
		if err == nil {
			return fromNumber(f)
		}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return dateOf(t), nil
		}
	}
	return pgtype.Date{}, fmt.Errorf("%w: %q", ErrUnparseableDate, s)
}

// fromNumber handles yyyymmdd integers and Excel serial day numbers.
func fromNumber(f float64) (pgtype.Date, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 1 {
		return pgtype.Date{}, fmt.Errorf("%w: %v", ErrUnparseableDate, f)
	}
	if f == math.Trunc(f) && f >= 19000101 && f <= 29991231 {
		return parseDateString(strconv.FormatInt(int64(f), 10))
	}
	if f <= maxExcelSerial {
		return dateOf(excelEpoch.AddDate(0, 0, int(f))), nil
	}
	return pgtype.Date{}, fmt.Errorf("%w: %v", ErrUnparseableDate, f)
}

func dateOf(t time.Time) pgtype.Date {
	return pgtype.Date{
		Time:  time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC),
		Valid: true,
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func looksNumeric(s string) bool {
	whole, frac, found := strings.Cut(s, ".")
	if !isDigits(whole) {
		return false
	}
	return !found || isDigits(frac)
}
