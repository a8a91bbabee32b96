package ingest

import (
	"context"

	"InvoiceRecon/internal/model"
	"InvoiceRecon/internal/normalize"
	"InvoiceRecon/internal/schema"
	"InvoiceRecon/internal/sheet"
)

// FileStore serves master invoices from an exported invoices spreadsheet. It
// knows nothing about persisted details, so it only suits dry runs where the
// database is out of reach.
type FileStore struct {
	Invoices string
}

func (f FileStore) MasterInvoices(context.Context) ([]model.MasterInvoice, error) {
	t, err := sheet.ReadFile(f.Invoices)
	if err != nil {
		return nil, err
	}
	return ReadMasterInvoices(t)
}

func (FileStore) ExistingDetails(context.Context, []string) ([]*model.DetailRecord, error) {
	return nil, nil
}

// ReadMasterInvoices maps an invoices export onto MasterInvoice values.
// Rows without a usable invoice number are dropped.
func ReadMasterInvoices(t *sheet.Table) ([]model.MasterInvoice, error) {
	b, err := schema.MasterInvoices.Bind(t.Headers, t.Name)
	if err != nil {
		return nil, err
	}
	out := make([]model.MasterInvoice, 0, len(t.Rows))
	for _, r := range t.Rows {
		no, ok := normalize.CleanInvoiceNumber(b.Value(r, schema.InvoiceNo))
		if !ok {
			continue
		}
		inv := model.MasterInvoice{
			InvoiceNo:   no,
			InvoiceDate: normalize.ParseDate(b.Value(r, schema.InvoiceDate)),
		}
		inv.EMID, _ = normalize.CleanString(b.Value(r, schema.EMID))
		inv.ServiceArea, _ = normalize.CleanString(b.Value(r, schema.ServiceArea))
		if d, ok, err := normalize.ParseDecimal(b.Value(r, schema.InvoiceTotal)); err == nil && ok {
			inv.InvoiceTotal = d
		}
		out = append(out, inv)
	}
	return out, nil
}
