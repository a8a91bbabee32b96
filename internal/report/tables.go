package report

import (
	"strconv"

	"InvoiceRecon/internal/dedup"
	"InvoiceRecon/internal/model"
)

// table is one artifact: a CSV file and a sheet of the audit workbook.
type table struct {
	File   string
	Sheet  string
	Header []string
	Rows   [][]string
}

var recordHeader = []string{
	"row", "invoice_no", "source_system", "employee_id", "employee_name", "work_date",
	"hours_total", "amount_total", "location_code", "building_code", "emid",
	"business_unit", "job_code", "position_code",
}

func recordCells(r *model.DetailRecord) []string {
	return []string{
		strconv.Itoa(r.SourceRow), r.InvoiceNo, string(r.SourceSystem), r.EmployeeID, r.EmployeeName, r.WorkDateString(),
		r.HoursTotal.StringFixed(2), r.AmountTotal.StringFixed(2), r.LocationCode, r.BuildingCode, r.EMID,
		r.BusinessUnit, r.JobCode, r.PositionCode,
	}
}

func (b *Bundle) tables() []table {
	ts := []table{
		b.missingTable(),
		classifiedTable("duplicates.csv", "Duplicates", b.dups()),
		classifiedTable("ambiguous.csv", "Ambiguous", b.ambiguous()),
		b.malformedTable(),
		b.orgInvoicesTable(),
	}
	if b.Org != nil && b.Org.Policy == dedup.OrgReview {
		ts = append(ts, b.orgRowsTable())
	}
	return append(ts,
		b.persistTable(),
		b.unmatchedTable(),
		b.conflictsTable(),
		b.warningsTable(),
	)
}

func (b *Bundle) missingTable() table {
	t := table{
		File:   "missing_invoices.csv",
		Sheet:  "Missing Invoices",
		Header: append([]string{"category"}, recordHeader...),
	}
	if b.Validation == nil {
		return t
	}
	for _, inv := range b.Validation.MissingInvoices {
		for _, r := range b.Validation.Missing[inv] {
			t.Rows = append(t.Rows, append([]string{model.KindMissingMasterInvoice.Category()}, recordCells(r)...))
		}
	}
	return t
}

func (b *Bundle) dups() []dedup.Classified {
	if b.Dedup == nil {
		return nil
	}
	return b.Dedup.Duplicates
}

func (b *Bundle) ambiguous() []dedup.Classified {
	if b.Dedup == nil {
		return nil
	}
	return b.Dedup.Ambiguous
}

// classifiedTable puts each record next to the record it collided with so
// the two can be compared.
func classifiedTable(file, sheet string, cs []dedup.Classified) table {
	t := table{
		File:  file,
		Sheet: sheet,
		Header: append(append([]string{"verdict", "reason", "key"}, recordHeader...),
			"existing_row", "existing_hours_total", "existing_amount_total", "existing_position_code"),
	}
	for _, c := range cs {
		row := append([]string{string(c.Verdict), c.Reason, c.Key}, recordCells(c.Record)...)
		if e := c.Existing; e != nil {
			existingRow := ""
			if e.SourceRow > 0 {
				existingRow = strconv.Itoa(e.SourceRow)
			}
			row = append(row, existingRow, e.HoursTotal.StringFixed(2), e.AmountTotal.StringFixed(2), e.PositionCode)
		} else {
			row = append(row, "", "", "", "")
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

func (b *Bundle) malformedTable() table {
	t := table{
		File:   "malformed_rows.csv",
		Sheet:  "Malformed Rows",
		Header: []string{"row", "invoice_no", "field", "value", "error", "category"},
	}
	for _, e := range b.Malformed {
		msg := ""
		if e.Err != nil {
			msg = e.Err.Error()
		}
		t.Rows = append(t.Rows, []string{strconv.Itoa(e.Row), e.InvoiceNo, e.Field, e.Value, msg, e.Kind.Category()})
	}
	return t
}

func (b *Bundle) orgInvoicesTable() table {
	t := table{
		File:   "org_invoices.csv",
		Sheet:  "ORG Invoices",
		Header: []string{"invoice_no", "rows", "first_row", "amount", "hours"},
	}
	if b.Org == nil {
		return t
	}
	for _, oi := range b.Org.Invoices {
		t.Rows = append(t.Rows, []string{oi.InvoiceNo, strconv.Itoa(oi.Rows), strconv.Itoa(oi.FirstRow),
			oi.Amount.StringFixed(2), oi.Hours.StringFixed(2)})
	}
	if len(b.Org.Invoices) > 0 {
		t.Rows = append(t.Rows, []string{"TOTAL", strconv.Itoa(b.Org.TotalRows), "",
			b.Org.TotalAmount.StringFixed(2), b.Org.TotalHours.StringFixed(2)})
	}
	return t
}

func (b *Bundle) orgRowsTable() table {
	t := table{
		File:   "org_rows.csv",
		Sheet:  "ORG Rows",
		Header: append([]string{"row"}, b.Headers...),
	}
	for _, r := range b.Org.Rows {
		cells := make([]string, len(b.Headers))
		for i := range cells {
			cells[i] = r.Cell(i)
		}
		t.Rows = append(t.Rows, append([]string{strconv.Itoa(r.Line)}, cells...))
	}
	return t
}

func (b *Bundle) persistTable() table {
	t := table{
		File:   "persist_errors.csv",
		Sheet:  "Persist Errors",
		Header: []string{"batch", "first_row", "last_row", "rows", "failing_row", "invoice_no", "sqlstate", "constraint", "error", "category"},
	}
	if b.Persist == nil {
		return t
	}
	for _, f := range b.Persist.Failures {
		failingRow, inv := "", ""
		if f.Record != nil {
			failingRow, inv = strconv.Itoa(f.Record.SourceRow), f.Record.InvoiceNo
		}
		t.Rows = append(t.Rows, []string{
			strconv.Itoa(f.Batch), strconv.Itoa(f.FirstRow), strconv.Itoa(f.LastRow), strconv.Itoa(f.Rows),
			failingRow, inv, f.SQLState, f.Constraint, f.Error, model.KindPersistenceFailure.Category(),
		})
	}
	return t
}

func (b *Bundle) unmatchedTable() table {
	t := table{
		File:   "unmatched_dimensions.csv",
		Sheet:  "Unmatched Dimensions",
		Header: []string{"kind", "key", "first_invoice_no", "first_row", "rows"},
	}
	for _, u := range b.Unmatched {
		t.Rows = append(t.Rows, []string{string(u.Kind), u.Key, u.InvoiceNo, strconv.Itoa(u.FirstRow), strconv.Itoa(u.Rows)})
	}
	return t
}

func (b *Bundle) conflictsTable() table {
	t := table{
		File:   "lookup_conflicts.csv",
		Sheet:  "Lookup Conflicts",
		Header: []string{"table", "key", "kept_row", "rejected_row", "kept", "rejected"},
	}
	for _, c := range b.Conflicts {
		t.Rows = append(t.Rows, []string{c.Table, c.Key, strconv.Itoa(c.KeptRow), strconv.Itoa(c.RejectedRow), c.Kept, c.Rejected})
	}
	return t
}

func (b *Bundle) warningsTable() table {
	t := table{
		File:   "warnings.csv",
		Sheet:  "Warnings",
		Header: []string{"row", "invoice_no", "message"},
	}
	for _, w := range b.Warnings {
		t.Rows = append(t.Rows, []string{strconv.Itoa(w.Row), w.InvoiceNo, w.Message})
	}
	return t
}
