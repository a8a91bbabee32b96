package dedup

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"InvoiceRecon/internal/normalize"
	"InvoiceRecon/internal/sheet"
)

// OrgSuffix marks organizational/adjustment invoices.
const OrgSuffix = "-ORG"

// OrgPolicy says what happens to -ORG invoices. Both policies keep them out
// of invoice_details; review additionally exports every row.
type OrgPolicy string

const (
	OrgSkip   OrgPolicy = "skip"
	OrgReview OrgPolicy = "review"
)

func ParseOrgPolicy(s string) (OrgPolicy, error) {
	switch p := OrgPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case OrgSkip, OrgReview:
		return p, nil
	}
	return "", fmt.Errorf("unknown org policy %q (expected skip or review)", s)
}

// IsOrgInvoice reports whether the invoice number ends in -ORG, in any case.
func IsOrgInvoice(invoiceNo string) bool {
	return strings.HasSuffix(strings.ToUpper(strings.TrimSpace(invoiceNo)), OrgSuffix)
}

// RowReader extracts what the filter needs from a raw row.
type RowReader interface {
	InvoiceNo(r sheet.Row) (string, bool)
	Totals(r sheet.Row) (amount, hours decimal.Decimal)
}

// OrgInvoice aggregates the rows of one -ORG invoice.
type OrgInvoice struct {
	InvoiceNo string
	Rows      int
	FirstRow  int
	Amount    decimal.Decimal
	Hours     decimal.Decimal
}

// OrgSummary is the audit record of what the filter removed.
type OrgSummary struct {
	Policy      OrgPolicy
	Invoices    []OrgInvoice
	Rows        []sheet.Row // only populated under OrgReview
	TotalRows   int
	TotalAmount decimal.Decimal
	TotalHours  decimal.Decimal
}

// OrgFilter removes -ORG rows before any transformation happens.
type OrgFilter struct {
	Policy OrgPolicy
	Reader RowReader
}

// Apply splits rows into the ones that continue down the pipeline and a
// summary of the -ORG rows taken out. Rows without a readable invoice number
// pass through; the transformer rejects them.
func (f OrgFilter) Apply(rows []sheet.Row) ([]sheet.Row, *OrgSummary) {
	sum := &OrgSummary{Policy: f.Policy, TotalAmount: decimal.Zero, TotalHours: decimal.Zero}
	byInvoice := make(map[string]*OrgInvoice)
	kept := make([]sheet.Row, 0, len(rows))

	for _, r := range rows {
		inv, ok := f.Reader.InvoiceNo(r)
		if !ok || !IsOrgInvoice(inv) {
			kept = append(kept, r)
			continue
		}
		amount, hours := f.Reader.Totals(r)
		k := normalize.NormalizeKey(inv)
		oi, seen := byInvoice[k]
		if !seen {
			oi = &OrgInvoice{InvoiceNo: inv, FirstRow: r.Line, Amount: decimal.Zero, Hours: decimal.Zero}
			byInvoice[k] = oi
		}
		oi.Rows++
		oi.Amount = oi.Amount.Add(amount)
		oi.Hours = oi.Hours.Add(hours)

		sum.TotalRows++
		sum.TotalAmount = sum.TotalAmount.Add(amount)
		sum.TotalHours = sum.TotalHours.Add(hours)
		if f.Policy == OrgReview {
			sum.Rows = append(sum.Rows, r)
		}
	}

	for _, oi := range byInvoice {
		sum.Invoices = append(sum.Invoices, *oi)
	}
	sort.Slice(sum.Invoices, func(i, j int) bool {
		return sum.Invoices[i].InvoiceNo < sum.Invoices[j].InvoiceNo
	})
	return kept, sum
}
