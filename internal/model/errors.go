package model

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a row did not reach invoice_details.
type ErrorKind string

const (
	KindMalformedRow         ErrorKind = "malformed_row"
	KindMissingDimension     ErrorKind = "missing_dimension"
	KindMissingMasterInvoice ErrorKind = "missing_master_invoice"
	KindDuplicateRecord      ErrorKind = "duplicate_record"
	KindPersistenceFailure   ErrorKind = "persistence_failure"
)

var (
	ErrMalformedRow         = errors.New("malformed row")
	ErrMissingDimension     = errors.New("dimension not found")
	ErrMissingMasterInvoice = errors.New("invoice not found in master invoices")
	ErrDuplicateRecord      = errors.New("record already exists")
	ErrPersistenceFailure   = errors.New("database insert failed")
)

// Sentinel returns the package error matching the kind.
func (k ErrorKind) Sentinel() error {
	switch k {
	case KindMalformedRow:
		return ErrMalformedRow
	case KindMissingDimension:
		return ErrMissingDimension
	case KindMissingMasterInvoice:
		return ErrMissingMasterInvoice
	case KindDuplicateRecord:
		return ErrDuplicateRecord
	case KindPersistenceFailure:
		return ErrPersistenceFailure
	}
	return nil
}

// Category is the operator-facing remediation class for the kind.
func (k ErrorKind) Category() string {
	switch k {
	case KindMalformedRow:
		return "data quality error"
	case KindMissingDimension:
		return "dimension gap"
	case KindMissingMasterInvoice:
		return "business rule violation"
	case KindDuplicateRecord:
		return "already exists"
	case KindPersistenceFailure:
		return "database error"
	}
	return "unknown"
}

// RowError is a per-row failure. It is aggregated into run statistics and
// never aborts a run.
type RowError struct {
	Kind      ErrorKind
	Row       int
	InvoiceNo string
	Field     string
	Value     string
	Err       error
}

func (e *RowError) Error() string {
	msg := fmt.Sprintf("row %d", e.Row)
	if e.InvoiceNo != "" {
		msg += " invoice " + e.InvoiceNo
	}
	if e.Field != "" {
		msg += fmt.Sprintf(" field %s=%q", e.Field, e.Value)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg + ": " + string(e.Kind)
}

func (e *RowError) Unwrap() []error {
	errs := []error{}
	if s := e.Kind.Sentinel(); s != nil {
		errs = append(errs, s)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Malformed builds a KindMalformedRow error for a field that could not be parsed.
func Malformed(row int, invoiceNo, field, value string, err error) *RowError {
	return &RowError{
		Kind:      KindMalformedRow,
		Row:       row,
		InvoiceNo: invoiceNo,
		Field:     field,
		Value:     value,
		Err:       err,
	}
}
