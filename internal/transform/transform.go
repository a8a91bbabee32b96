// Package transform maps raw BCI and AUS rows onto model.DetailRecord and
// enriches them from the dimension lookups.
package transform

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"InvoiceRecon/internal/lookup"
	"InvoiceRecon/internal/model"
	"InvoiceRecon/internal/normalize"
	"InvoiceRecon/internal/schema"
	"InvoiceRecon/internal/sheet"
)

var (
	errBlankInvoice  = errors.New("invoice number is blank")
	errNegativeHours = errors.New("hours must not be negative")
)

// TotalTolerance is how far a source total may drift from its components
// before a warning is recorded.
var TotalTolerance = decimal.NewFromFloat(0.01)

// Warning is a non-fatal oddity on a row that was still transformed.
type Warning struct {
	Row       int
	InvoiceNo string
	Message   string
}

// Transformer converts rows of one file. It is not safe for concurrent use.
type Transformer struct {
	source    model.SourceSystem
	binding   *schema.Binding
	lookups   *lookup.Lookups
	unmatched *UnmatchedSet
	warnings  []Warning
	log       zerolog.Logger
}

// New binds headers to the source schema. Missing required headers fail here,
// before any row is read.
func New(source model.SourceSystem, headers []string, file string, l *lookup.Lookups, log zerolog.Logger) (*Transformer, error) {
	s, err := schema.ForSource(source)
	if err != nil {
		return nil, err
	}
	b, err := s.Bind(headers, file)
	if err != nil {
		return nil, err
	}
	return &Transformer{
		source:    source,
		binding:   b,
		lookups:   l,
		unmatched: NewUnmatchedSet(),
		log:       log.With().Str("component", "transform").Str("source", string(source)).Logger(),
	}, nil
}

func (t *Transformer) Unmatched() *UnmatchedSet { return t.unmatched }

func (t *Transformer) Warnings() []Warning { return t.warnings }

// InvoiceNo returns the cleaned invoice number of a raw row.
func (t *Transformer) InvoiceNo(r sheet.Row) (string, bool) {
	return normalize.CleanInvoiceNumber(t.binding.Value(r, schema.InvoiceNo))
}

// Totals returns the row's billed amount and hours. Used to summarize rows
// that are filtered before transform. A row with an unreadable number counts
// as zero and leaves a warning so the summary is not silently short.
func (t *Transformer) Totals(r sheet.Row) (amount, hours decimal.Decimal) {
	inv, _ := t.InvoiceNo(r)
	c := &cells{b: t.binding, r: r, inv: inv}
	switch t.source {
	case model.SourceAUS:
		hours, _ = c.dec(schema.Hours)
		var ok bool
		if amount, ok = c.dec(schema.AmountTotal); !ok {
			rate, _ := c.dec(schema.Rate)
			amount = hours.Mul(rate).Round(2)
		}
	default:
		var ok bool
		if hours, ok = c.dec(schema.HoursTotal); !ok {
			hr, _ := c.dec(schema.HoursRegular)
			ho, _ := c.dec(schema.HoursOvertime)
			hh, _ := c.dec(schema.HoursHoliday)
			hours = hr.Add(ho).Add(hh)
		}
		if amount, ok = c.dec(schema.AmountTotal); !ok {
			ar, _ := c.dec(schema.AmountRegular)
			ao, _ := c.dec(schema.AmountOvertime)
			ah, _ := c.dec(schema.AmountHoliday)
			amount = ar.Add(ao).Add(ah)
		}
	}
	if c.err != nil {
		t.warn(&model.DetailRecord{SourceRow: r.Line, InvoiceNo: inv},
			fmt.Sprintf("excluded row counted as zero in totals: %v", c.err))
		return decimal.Zero, decimal.Zero
	}
	return amount, hours
}

// Transform converts one row. The error, when set, is a *model.RowError of
// kind KindMalformedRow; dimension misses are not errors.
func (t *Transformer) Transform(r sheet.Row) (*model.DetailRecord, error) {
	inv, ok := t.InvoiceNo(r)
	if !ok {
		return nil, model.Malformed(r.Line, "", string(schema.InvoiceNo), t.binding.Value(r, schema.InvoiceNo), errBlankInvoice)
	}
	rec := &model.DetailRecord{
		InvoiceNo:    inv,
		SourceSystem: t.source,
		SourceRow:    r.Line,
	}
	c := &cells{b: t.binding, r: r, inv: inv}

	rec.EmployeeID = c.key(schema.EmployeeID)
	rec.EmployeeName = c.text(schema.EmployeeName)
	rec.LocationCode = c.key(schema.LocationCode)
	rec.JobNumber = c.key(schema.JobNumber)
	rec.PositionCode = c.text(schema.PositionCode)
	rec.CustomerNumber = c.key(schema.CustomerNumber)
	rec.BillCategory = c.text(schema.BillCategory)

	raw := t.binding.Value(r, schema.WorkDate)
	d, err := normalize.ParseDateStrict(raw)
	if err != nil {
		return nil, model.Malformed(r.Line, inv, string(schema.WorkDate), raw, err)
	}
	rec.WorkDate = d

	switch t.source {
	case model.SourceAUS:
		t.fillAUS(c, rec)
	default:
		t.fillBCI(c, rec)
	}
	if c.err != nil {
		return nil, c.err
	}

	t.enrich(rec)
	return rec, nil
}

func (t *Transformer) fillBCI(c *cells, rec *model.DetailRecord) {
	rec.HoursRegular, _ = c.hours(schema.HoursRegular)
	rec.HoursOvertime, _ = c.hours(schema.HoursOvertime)
	rec.HoursHoliday, _ = c.hours(schema.HoursHoliday)
	ht, htOK := c.hours(schema.HoursTotal)

	rec.RateRegular, _ = c.dec(schema.RateRegular)
	rec.RateOvertime, _ = c.dec(schema.RateOvertime)
	rec.RateHoliday, _ = c.dec(schema.RateHoliday)

	ar, arOK := c.dec(schema.AmountRegular)
	ao, aoOK := c.dec(schema.AmountOvertime)
	ah, ahOK := c.dec(schema.AmountHoliday)
	at, atOK := c.dec(schema.AmountTotal)
	if c.err != nil {
		return
	}

	// Components missing from the export are priced from hours × rate.
	if !arOK {
		ar = rec.HoursRegular.Mul(rec.RateRegular).Round(2)
	}
	if !aoOK {
		ao = rec.HoursOvertime.Mul(rec.RateOvertime).Round(2)
	}
	if !ahOK {
		ah = rec.HoursHoliday.Mul(rec.RateHoliday).Round(2)
	}
	rec.AmountRegular, rec.AmountOvertime, rec.AmountHoliday = ar, ao, ah

	if !htOK {
		ht = rec.HoursRegular.Add(rec.HoursOvertime).Add(rec.HoursHoliday)
	}
	rec.HoursTotal = ht

	if !atOK {
		at = rec.ComponentsTotal()
	}
	rec.AmountTotal = at
	if !rec.TotalsConsistent(TotalTolerance) {
		t.warn(rec, fmt.Sprintf("amount_total %s differs from components %s",
			rec.AmountTotal.StringFixed(2), rec.ComponentsTotal().StringFixed(2)))
	}
}

func (t *Transformer) fillAUS(c *cells, rec *model.DetailRecord) {
	hours, _ := c.hours(schema.Hours)
	rate, _ := c.dec(schema.Rate)
	amount, amountOK := c.dec(schema.AmountTotal)
	if c.err != nil {
		return
	}
	priced := hours.Mul(rate).Round(2)
	if !amountOK {
		amount = priced
	} else if amount.Sub(priced).Abs().GreaterThan(TotalTolerance) {
		t.warn(rec, fmt.Sprintf("bill amount %s differs from hours × rate %s",
			amount.StringFixed(2), priced.StringFixed(2)))
	}

	switch categoryOf(rec.BillCategory) {
	case overtime:
		rec.HoursOvertime, rec.RateOvertime, rec.AmountOvertime = hours, rate, amount
	case holiday:
		rec.HoursHoliday, rec.RateHoliday, rec.AmountHoliday = hours, rate, amount
	default:
		rec.HoursRegular, rec.RateRegular, rec.AmountRegular = hours, rate, amount
	}
	rec.HoursTotal = hours
	rec.AmountTotal = amount
}

type component int

const (
	regular component = iota
	overtime
	holiday
)

func categoryOf(billCategory string) component {
	switch strings.ToUpper(strings.TrimSpace(billCategory)) {
	case "OT", "OVERTIME", "O/T", "DT", "DOUBLETIME", "DOUBLE TIME":
		return overtime
	case "HOL", "HOLIDAY", "HOLIDAY PAY":
		return holiday
	}
	return regular
}

func (t *Transformer) warn(rec *model.DetailRecord, msg string) {
	t.warnings = append(t.warnings, Warning{Row: rec.SourceRow, InvoiceNo: rec.InvoiceNo, Message: msg})
	t.log.Debug().Int("row", rec.SourceRow).Str("invoice_no", rec.InvoiceNo).Msg(msg)
}

// cells reads typed values off a row. The first parse failure sticks in err
// and later reads return zero values.
type cells struct {
	b   *schema.Binding
	r   sheet.Row
	inv string
	err error
}

func (c *cells) text(f schema.Field) string {
	s, _ := normalize.CleanString(c.b.Value(c.r, f))
	return s
}

// key reads an identifier cell, dropping a ".0" left by numeric coercion.
func (c *cells) key(f schema.Field) string {
	s, _ := normalize.CleanInvoiceNumber(c.b.Value(c.r, f))
	return s
}

func (c *cells) dec(f schema.Field) (decimal.Decimal, bool) {
	if c.err != nil {
		return decimal.Zero, false
	}
	raw := c.b.Value(c.r, f)
	d, ok, err := normalize.ParseDecimal(raw)
	if err != nil {
		c.err = model.Malformed(c.r.Line, c.inv, string(f), raw, err)
		return decimal.Zero, false
	}
	return d, ok
}

func (c *cells) hours(f schema.Field) (decimal.Decimal, bool) {
	d, ok := c.dec(f)
	if ok && d.IsNegative() {
		c.err = model.Malformed(c.r.Line, c.inv, string(f), c.b.Value(c.r, f), errNegativeHours)
		return decimal.Zero, false
	}
	return d, ok
}
