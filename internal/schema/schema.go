// Package schema declares the header vocabulary of each input file type and
// binds a file's header row to canonical fields.
package schema

import (
	"fmt"
	"sort"
	"strings"

	"InvoiceRecon/internal/model"
	"InvoiceRecon/internal/sheet"
)

// Field is a canonical column name.
type Field string

const (
	InvoiceNo      Field = "invoice_no"
	EmployeeID     Field = "employee_id"
	EmployeeName   Field = "employee_name"
	WorkDate       Field = "work_date"
	HoursRegular   Field = "hours_regular"
	HoursOvertime  Field = "hours_overtime"
	HoursHoliday   Field = "hours_holiday"
	HoursTotal     Field = "hours_total"
	RateRegular    Field = "rate_regular"
	RateOvertime   Field = "rate_overtime"
	RateHoliday    Field = "rate_holiday"
	AmountRegular  Field = "amount_regular"
	AmountOvertime Field = "amount_overtime"
	AmountHoliday  Field = "amount_holiday"
	AmountTotal    Field = "amount_total"
	Hours          Field = "hours"
	Rate           Field = "rate"
	LocationCode   Field = "location_code"
	JobNumber      Field = "job_number"
	PositionCode   Field = "position_code"
	CustomerNumber Field = "customer_number"
	BillCategory   Field = "bill_category"

	// reference tables
	BuildingCode Field = "building_code"
	EMID         Field = "emid"
	BusinessUnit Field = "business_unit"
	Region       Field = "region"
	JobCode      Field = "job_code"
	Description  Field = "description"
	Location     Field = "location"
	ServiceArea  Field = "service_area"
	InvoiceDate  Field = "invoice_date"
	InvoiceTotal Field = "invoice_total"
)

// Column maps a canonical field to the headers that carry it in one file type.
type Column struct {
	Field    Field
	Headers  []string
	Required bool
}

// Schema is the declared layout of one file type.
type Schema struct {
	Name    string
	Columns []Column
}

// HeaderError lists the required headers a file did not carry.
type HeaderError struct {
	Schema  string
	File    string
	Missing []string
	Found   []string
}

func (e *HeaderError) Error() string {
	return fmt.Sprintf("%s: file %q is missing required columns %s (found: %s)",
		e.Schema, e.File, strings.Join(e.Missing, ", "), strings.Join(e.Found, ", "))
}

// Binding is a schema resolved against one header row.
type Binding struct {
	schema *Schema
	index  map[Field]int
}

// headerKey folds case and collapses runs of whitespace.
func headerKey(h string) string {
	return strings.ToLower(strings.Join(strings.Fields(h), " "))
}

// Bind resolves every column against headers. A required column with no
// matching header fails the whole file; optional columns may be absent.
// When a file carries two aliases of the same field the first listed alias wins.
func (s *Schema) Bind(headers []string, file string) (*Binding, error) {
	pos := make(map[string]int, len(headers))
	for i, h := range headers {
		k := headerKey(h)
		if k == "" {
			continue
		}
		if _, dup := pos[k]; !dup {
			pos[k] = i
		}
	}

	b := &Binding{schema: s, index: make(map[Field]int, len(s.Columns))}
	var missing []string
	for _, c := range s.Columns {
		found := false
		for _, alias := range c.Headers {
			if i, ok := pos[headerKey(alias)]; ok {
				b.index[c.Field] = i
				found = true
				break
			}
		}
		if !found && c.Required {
			missing = append(missing, c.Headers[0])
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, &HeaderError{Schema: s.Name, File: file, Missing: missing, Found: headers}
	}
	return b, nil
}

// Has reports whether the file carries field.
func (b *Binding) Has(f Field) bool {
	_, ok := b.index[f]
	return ok
}

// Value returns the raw cell for field, or "" when the column is absent.
func (b *Binding) Value(r sheet.Row, f Field) string {
	i, ok := b.index[f]
	if !ok {
		return ""
	}
	return r.Cell(i)
}

// Schema returns the schema the binding was built from.
func (b *Binding) Schema() *Schema { return b.schema }

// ForSource returns the detail file schema of a source system.
func ForSource(src model.SourceSystem) (*Schema, error) {
	switch src {
	case model.SourceBCI:
		return BCI, nil
	case model.SourceAUS:
		return AUS, nil
	}
	return nil, fmt.Errorf("no schema for source system %q", src)
}
