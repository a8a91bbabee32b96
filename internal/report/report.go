// Package report writes the per-run audit artifacts: one CSV per
// non-inserted category, a plain-text summary and an xlsx workbook.
package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"InvoiceRecon/internal/dedup"
	"InvoiceRecon/internal/lookup"
	"InvoiceRecon/internal/model"
	"InvoiceRecon/internal/persist"
	"InvoiceRecon/internal/runlog"
	"InvoiceRecon/internal/transform"
	"InvoiceRecon/internal/validation"
)

const (
	SummaryFile  = "summary.txt"
	WorkbookFile = "audit.xlsx"
)

// Bundle is everything a finished run hands to the report writer.
type Bundle struct {
	Run       *runlog.Run
	InBatch   string
	OrgPolicy string
	Headers   []string

	Malformed  []*model.RowError
	Org        *dedup.OrgSummary
	Dedup      *dedup.Result
	Validation *validation.Result
	Persist    *persist.Result
	Unmatched  []transform.Unmatched
	Conflicts  []lookup.Conflict
	Warnings   []transform.Warning
}

// Write creates dir and writes every artifact into it. It returns the file
// names written, summary first.
func Write(dir string, b *Bundle, workbook bool) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}

	f, err := os.Create(filepath.Join(dir, SummaryFile))
	if err != nil {
		return nil, fmt.Errorf("create summary: %w", err)
	}
	err = RenderSummary(f, b)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("write summary: %w", err)
	}
	written := []string{SummaryFile}

	tables := b.tables()
	for _, t := range tables {
		if err := writeCSV(filepath.Join(dir, t.File), t); err != nil {
			return written, fmt.Errorf("write %s: %w", t.File, err)
		}
		written = append(written, t.File)
	}

	if workbook {
		if err := writeWorkbook(filepath.Join(dir, WorkbookFile), tables); err != nil {
			return written, fmt.Errorf("write %s: %w", WorkbookFile, err)
		}
		written = append(written, WorkbookFile)
	}
	return written, nil
}

func writeCSV(path string, t table) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.Write(t.Header); err != nil {
		f.Close()
		return err
	}
	if err := w.WriteAll(t.Rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeWorkbook(path string, tables []table) error {
	f := excelize.NewFile()
	defer f.Close()

	for _, t := range tables {
		if _, err := f.NewSheet(t.Sheet); err != nil {
			return err
		}
		if err := setRow(f, t.Sheet, 1, t.Header); err != nil {
			return err
		}
		for i, r := range t.Rows {
			if err := setRow(f, t.Sheet, i+2, r); err != nil {
				return err
			}
		}
		if len(t.Header) > 0 {
			last, _ := excelize.ColumnNumberToName(len(t.Header))
			_ = f.AutoFilter(t.Sheet, "A1:"+last+"1", nil)
		}
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return err
	}
	f.SetActiveSheet(0)
	return f.SaveAs(path)
}

func setRow(f *excelize.File, sheet string, row int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	vals := make([]interface{}, len(values))
	for i, v := range values {
		vals[i] = v
	}
	return f.SetSheetRow(sheet, cell, &vals)
}
