// Package validation checks detail records against the master invoice table
// before anything is written.
package validation

import (
	"sort"

	"github.com/rs/zerolog"

	"InvoiceRecon/internal/model"
)

// Result partitions records by whether their invoice exists.
type Result struct {
	Valid []*model.DetailRecord
	// Missing holds every record that referenced each unknown invoice.
	Missing map[string][]*model.DetailRecord
	// MissingInvoices is the sorted, deduplicated list of unknown invoices.
	MissingInvoices []string
}

// MissingRecords is the number of records routed to the missing bucket.
func (r *Result) MissingRecords() int {
	n := 0
	for _, recs := range r.Missing {
		n += len(recs)
	}
	return n
}

// Validator enforces that a detail row's invoice is already in invoices.
type Validator struct {
	set InvoiceSet
	log zerolog.Logger
}

func New(set InvoiceSet, log zerolog.Logger) *Validator {
	return &Validator{set: set, log: log.With().Str("component", "validation").Logger()}
}

// Validate keeps input order in Valid and never drops a record: every input
// ends up in exactly one of Valid or Missing. Valid records carry the
// invoice_no literal stored in the master table.
func (v *Validator) Validate(records []*model.DetailRecord) *Result {
	res := &Result{Missing: make(map[string][]*model.DetailRecord)}
	for _, r := range records {
		if lit, ok := v.set.Canonical(r.InvoiceNo); ok {
			r.InvoiceNo = lit
			res.Valid = append(res.Valid, r)
			continue
		}
		if _, seen := res.Missing[r.InvoiceNo]; !seen {
			res.MissingInvoices = append(res.MissingInvoices, r.InvoiceNo)
		}
		res.Missing[r.InvoiceNo] = append(res.Missing[r.InvoiceNo], r)
	}
	sort.Strings(res.MissingInvoices)

	if len(res.MissingInvoices) > 0 {
		v.log.Warn().
			Int("missing_invoices", len(res.MissingInvoices)).
			Int("records", res.MissingRecords()).
			Msg("detail rows reference invoices not in master table")
	}
	return res
}
