package validation

import (
	"context"
	"fmt"

	"InvoiceRecon/internal/model"
	"InvoiceRecon/internal/normalize"
)

// InvoiceSet answers whether an invoice number exists in the master table,
// and under which literal it is stored there.
type InvoiceSet interface {
	Canonical(invoiceNo string) (string, bool)
	Len() int
}

// MasterSource loads every master invoice header.
type MasterSource interface {
	MasterInvoices(ctx context.Context) ([]model.MasterInvoice, error)
}

// MasterSet is the pre-fetched set of master invoice numbers. Membership is
// checked in memory so a file of tens of thousands of rows costs one query.
type MasterSet struct {
	// normalized key -> invoice_no exactly as stored in invoices
	numbers map[string]string
}

// NewMasterSet indexes invoice numbers after the same cleaning detail rows
// get, remembering the stored literal the foreign key compares against.
// When two stored numbers clean to the same key the first one wins.
func NewMasterSet(invoices []model.MasterInvoice) *MasterSet {
	s := &MasterSet{numbers: make(map[string]string, len(invoices))}
	for _, inv := range invoices {
		no, ok := normalize.CleanInvoiceNumber(inv.InvoiceNo)
		if !ok {
			continue
		}
		key := normalize.NormalizeKey(no)
		if _, dup := s.numbers[key]; !dup {
			s.numbers[key] = inv.InvoiceNo
		}
	}
	return s
}

// LoadMasterSet fetches the master invoices once and indexes them.
func LoadMasterSet(ctx context.Context, src MasterSource) (*MasterSet, []model.MasterInvoice, error) {
	invoices, err := src.MasterInvoices(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to prefetch master invoices: %w", err)
	}
	return NewMasterSet(invoices), invoices, nil
}

// Canonical returns the master's stored invoice_no for a cleaned detail
// invoice number.
func (s *MasterSet) Canonical(invoiceNo string) (string, bool) {
	lit, ok := s.numbers[normalize.NormalizeKey(invoiceNo)]
	return lit, ok
}

func (s *MasterSet) Contains(invoiceNo string) bool {
	_, ok := s.Canonical(invoiceNo)
	return ok
}

// Canonicalize rewrites each record's invoice number to the master's stored
// literal so persisted details satisfy the invoices foreign key and match
// rows already stored under it. It returns how many records changed.
func Canonicalize(set InvoiceSet, records []*model.DetailRecord) int {
	n := 0
	for _, r := range records {
		if lit, ok := set.Canonical(r.InvoiceNo); ok && lit != r.InvoiceNo {
			r.InvoiceNo = lit
			n++
		}
	}
	return n
}

func (s *MasterSet) Len() int { return len(s.numbers) }
