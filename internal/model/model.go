package model

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// SourceSystem identifies the upstream payroll/billing system a file came from.
type SourceSystem string

const (
	SourceBCI SourceSystem = "BCI"
	SourceAUS SourceSystem = "AUS"
)

// ParseSourceSystem accepts "bci"/"aus" in any case.
func ParseSourceSystem(s string) (SourceSystem, error) {
	switch SourceSystem(strings.ToUpper(strings.TrimSpace(s))) {
	case SourceBCI:
		return SourceBCI, nil
	case SourceAUS:
		return SourceAUS, nil
	}
	return "", fmt.Errorf("unknown source system %q (expected BCI or AUS)", s)
}

// DetailRecord is one labor billing line item in the unified invoice_details shape.
// Text fields use "" for unknown; they are written as NULL.
type DetailRecord struct {
	InvoiceNo    string
	SourceSystem SourceSystem
	EmployeeID   string
	EmployeeName string
	WorkDate     pgtype.Date

	HoursRegular  decimal.Decimal
	HoursOvertime decimal.Decimal
	HoursHoliday  decimal.Decimal
	HoursTotal    decimal.Decimal

	RateRegular  decimal.Decimal
	RateOvertime decimal.Decimal
	RateHoliday  decimal.Decimal

	AmountRegular  decimal.Decimal
	AmountOvertime decimal.Decimal
	AmountHoliday  decimal.Decimal
	AmountTotal    decimal.Decimal

	LocationCode   string
	BuildingCode   string
	EMID           string
	BusinessUnit   string
	JobCode        string
	JobNumber      string
	PositionCode   string
	CustomerNumber string
	BillCategory   string

	// SourceRow is the 1-based spreadsheet row the record came from. Not persisted.
	SourceRow int
}

// WorkDateString renders the work date as yyyy-mm-dd, or "" when unknown.
func (r *DetailRecord) WorkDateString() string {
	if !r.WorkDate.Valid {
		return ""
	}
	return r.WorkDate.Time.Format("2006-01-02")
}

// ComponentsTotal is amount_regular + amount_overtime + amount_holiday.
func (r *DetailRecord) ComponentsTotal() decimal.Decimal {
	return r.AmountRegular.Add(r.AmountOvertime).Add(r.AmountHoliday)
}

// TotalsConsistent reports whether amount_total matches the components within tol.
func (r *DetailRecord) TotalsConsistent(tol decimal.Decimal) bool {
	return r.AmountTotal.Sub(r.ComponentsTotal()).Abs().LessThanOrEqual(tol)
}

// StoredJobNumber is the value written to invoice_details.job_number: the
// source job number when the file carried one, otherwise the job code
// resolved from the EMID reference.
func (r *DetailRecord) StoredJobNumber() string {
	if r.JobNumber != "" {
		return r.JobNumber
	}
	return r.JobCode
}

// MasterInvoice is an invoice header from the invoices table.
type MasterInvoice struct {
	InvoiceNo    string
	EMID         string
	ServiceArea  string
	InvoiceDate  pgtype.Date
	InvoiceTotal decimal.Decimal
}
