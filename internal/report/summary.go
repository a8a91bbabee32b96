package report

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"InvoiceRecon/internal/model"
	"InvoiceRecon/internal/runlog"
)

// Totals are the operator-facing roll-up. Total = Processed + Skipped + Errors.
type Totals struct {
	Total     int
	Processed int
	Skipped   int
	Errors    int
}

// TotalsOf rolls stage counts up into the four summary buckets.
func TotalsOf(run *runlog.Run) Totals {
	c := run.Counts
	processed := c.Inserted
	skipped := c.OrgRows + c.Duplicates + c.Ambiguous + c.Missing + c.Conflicts
	if run.DryRun {
		// nothing was written: every valid row counts as processed
		processed = c.Transformed - c.Duplicates - c.Ambiguous - c.Missing
	}
	return Totals{
		Total:     c.TotalRows,
		Processed: processed,
		Skipped:   skipped,
		Errors:    c.Malformed + c.Failed,
	}
}

// RenderSummary writes the plain-text processing report.
func RenderSummary(w io.Writer, b *Bundle) error {
	run := b.Run
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	p := func(format string, args ...any) { fmt.Fprintf(tw, format+"\n", args...) }

	p("INVOICE DETAIL INGESTION SUMMARY")
	p("")
	p("Run:\t%s", run.ID)
	p("Source:\t%s", run.Source)
	p("File:\t%s", run.FileName)
	p("SHA-256:\t%s", run.FileHash)
	p("Duplicate policy:\t%s (in-batch: %s)", run.Policy, b.InBatch)
	p("ORG policy:\t%s", b.OrgPolicy)
	p("Dry run:\t%s", yesNo(run.DryRun))
	p("Status:\t%s (reached %s)", run.Status, run.Stage)
	p("Started:\t%s", run.StartedAt.Format(time.RFC3339))
	if run.FinishedAt != nil {
		p("Finished:\t%s (%s)", run.FinishedAt.Format(time.RFC3339), run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
	}
	if run.Error != "" {
		p("Error:\t%s", run.Error)
	}

	t := TotalsOf(run)
	c := run.Counts
	p("")
	p("TOTALS")
	p("  total rows\t%d", t.Total)
	if run.DryRun {
		p("  processed (would insert)\t%d", t.Processed)
	} else {
		p("  processed (inserted)\t%d", t.Processed)
	}
	p("  skipped\t%d", t.Skipped)
	p("  errors\t%d", t.Errors)

	p("")
	p("SKIPPED")
	if b.Org != nil && c.OrgRows > 0 {
		p("  -ORG invoices (%s)\t%d rows\t%d invoices, amount %s, hours %s", b.Org.Policy, c.OrgRows,
			len(b.Org.Invoices), fixed(b.Org.TotalAmount), fixed(b.Org.TotalHours))
	} else {
		p("  -ORG invoices\t%d rows", c.OrgRows)
	}
	p("  %s: duplicate\t%d rows", model.KindDuplicateRecord.Category(), c.Duplicates)
	p("  %s: present at insert\t%d rows", model.KindDuplicateRecord.Category(), c.Conflicts)
	p("  ambiguous (reversal review)\t%d rows", c.Ambiguous)
	missingInvoices := 0
	if b.Validation != nil {
		missingInvoices = len(b.Validation.MissingInvoices)
	}
	p("  %s: missing master invoice\t%d rows\t%d invoices", model.KindMissingMasterInvoice.Category(), c.Missing, missingInvoices)

	p("")
	p("ERRORS")
	p("  %s: malformed row\t%d rows", model.KindMalformedRow.Category(), c.Malformed)
	failures := 0
	if b.Persist != nil {
		failures = len(b.Persist.Failures)
	}
	p("  %s: rolled-back batch\t%d rows\t%d batches", model.KindPersistenceFailure.Category(), c.Failed, failures)

	p("")
	p("DIAGNOSTICS")
	p("  %s: unmatched keys\t%d", model.KindMissingDimension.Category(), len(b.Unmatched))
	p("  lookup conflicts\t%d", len(b.Conflicts))
	p("  total mismatch warnings\t%d", len(b.Warnings))

	if b.Dedup != nil && len(b.Dedup.Analysis.TopInvoices) > 0 {
		p("")
		p("TOP DUPLICATE INVOICES")
		for _, ic := range b.Dedup.Analysis.TopInvoices {
			p("  %s\t%d", ic.InvoiceNo, ic.Count)
		}
	}
	if b.Validation != nil && len(b.Validation.MissingInvoices) > 0 {
		p("")
		p("MISSING MASTER INVOICES (add to invoices, then re-run)")
		for _, inv := range b.Validation.MissingInvoices {
			p("  %s\t%d rows", inv, len(b.Validation.Missing[inv]))
		}
	}
	return tw.Flush()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func fixed(d decimal.Decimal) string { return d.StringFixed(2) }
