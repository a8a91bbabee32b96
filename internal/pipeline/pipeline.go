// Package pipeline runs one ingestion: LOADED → FILTERED → TRANSFORMED →
// DEDUPLICATED → VALIDATED → PERSISTED, then writes the audit artifacts.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"InvoiceRecon/internal/dedup"
	"InvoiceRecon/internal/lookup"
	"InvoiceRecon/internal/model"
	"InvoiceRecon/internal/persist"
	"InvoiceRecon/internal/report"
	"InvoiceRecon/internal/runlog"
	"InvoiceRecon/internal/sheet"
	"InvoiceRecon/internal/transform"
	"InvoiceRecon/internal/validation"
)

// Store is the read side of the database a run needs.
type Store interface {
	validation.MasterSource
	ExistingDetails(ctx context.Context, invoiceNos []string) ([]*model.DetailRecord, error)
}

// Inserter writes validated records. *persist.Persister implements it.
type Inserter interface {
	Persist(ctx context.Context, records []*model.DetailRecord) (*persist.Result, error)
}

// LookupSource builds fresh dimension indexes for a run.
type LookupSource interface {
	Load(ctx context.Context) (*lookup.Lookups, error)
}

// Auditor receives one line per run milestone.
type Auditor interface {
	LogAudit(msg string)
}

type Options struct {
	Source    model.SourceSystem
	Policy    dedup.Policy
	InBatch   dedup.InBatchMode
	OrgPolicy dedup.OrgPolicy
	// OutputDir is the parent of the per-run artifact directory; "" writes nothing.
	OutputDir string
	DryRun    bool
	Workbook  bool
	BatchSize int
}

// normalize fills the in-batch and ORG defaults and rejects anything else
// that is unset. The duplicate policy has no default.
func (o *Options) normalize() error {
	if o.InBatch == "" {
		o.InBatch = dedup.FlagAll
	}
	if o.OrgPolicy == "" {
		o.OrgPolicy = dedup.OrgSkip
	}
	if o.Policy.Key == nil || o.Policy.Name == "" {
		return errors.New("duplicate policy must be chosen explicitly")
	}
	switch o.Source {
	case model.SourceBCI, model.SourceAUS:
	default:
		return fmt.Errorf("unknown source system %q", o.Source)
	}
	var err error
	if o.InBatch, err = dedup.ParseInBatchMode(string(o.InBatch)); err != nil {
		return err
	}
	if o.OrgPolicy, err = dedup.ParseOrgPolicy(string(o.OrgPolicy)); err != nil {
		return err
	}
	return nil
}

type Engine struct {
	store    Store
	inserter Inserter
	lookups  LookupSource
	recorder runlog.Recorder
	audit    Auditor
	log      zerolog.Logger
}

func NewEngine(store Store, inserter Inserter, lookups LookupSource, recorder runlog.Recorder, audit Auditor, log zerolog.Logger) *Engine {
	if recorder == nil {
		recorder = runlog.NewMemory()
	}
	return &Engine{
		store:    store,
		inserter: inserter,
		lookups:  lookups,
		recorder: recorder,
		audit:    audit,
		log:      log.With().Str("component", "pipeline").Logger(),
	}
}

// Outcome is a finished run.
type Outcome struct {
	Run       *runlog.Run
	Bundle    *report.Bundle
	Dir       string
	Artifacts []string
}

// RunFile reads path and runs it.
func (e *Engine) RunFile(ctx context.Context, path string, opts Options) (*Outcome, error) {
	tbl, err := sheet.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return e.RunTable(ctx, tbl, opts)
}

// RunTable runs an already read spreadsheet. Per-row problems end up in the
// outcome's buckets; the error is set only when the run could not complete
// (bad options, header mismatch, database unreachable).
func (e *Engine) RunTable(ctx context.Context, tbl *sheet.Table, opts Options) (*Outcome, error) {
	if err := opts.normalize(); err != nil {
		return nil, err
	}

	run := &runlog.Run{
		ID:        uuid.New(),
		Source:    string(opts.Source),
		FileName:  tbl.Name,
		FileHash:  tbl.Hash,
		Policy:    opts.Policy.Name,
		DryRun:    opts.DryRun,
		Stage:     StageStarted.String(),
		StartedAt: time.Now().UTC(),
	}
	dir := ""
	if opts.OutputDir != "" {
		dir = filepath.Join(opts.OutputDir, run.ID.String())
		run.ArtifactDir = dir
	}
	log := e.log.With().Str("run_id", run.ID.String()).Str("file", tbl.Name).Logger()

	if tbl.Hash != "" {
		if prev, err := e.recorder.LastByHash(ctx, tbl.Hash); err == nil {
			log.Warn().Str("previous_run", prev.ID.String()).Time("previous_started", prev.StartedAt).
				Msg("same file content was ingested before; rows already stored will classify as duplicates")
		}
	}
	if err := e.recorder.Start(ctx, run); err != nil {
		log.Warn().Err(err).Msg("run history unavailable")
	}
	e.auditf("run %s started: source=%s file=%s policy=%s dry_run=%t", run.ID, run.Source, run.FileName, run.Policy, run.DryRun)

	st := &state{
		opts:   opts,
		run:    run,
		table:  tbl,
		log:    log,
		bundle: &report.Bundle{Run: run, InBatch: string(opts.InBatch), OrgPolicy: string(opts.OrgPolicy), Headers: tbl.Headers},
	}
	runErr := e.execute(ctx, st)

	run.Stage = st.stage.String()
	switch {
	case runErr != nil:
		run.Status = runlog.StatusFailed
		run.Error = runErr.Error()
	case run.Failed > 0:
		run.Status = runlog.StatusPartial
	default:
		run.Status = runlog.StatusSucceeded
	}
	finished := time.Now().UTC()
	run.FinishedAt = &finished

	out := &Outcome{Run: run, Bundle: st.bundle, Dir: dir}
	if dir != "" {
		files, err := report.Write(dir, st.bundle, opts.Workbook)
		out.Artifacts = files
		if err != nil {
			log.Error().Err(err).Msg("failed to write run artifacts")
		}
	}
	// history is written after the report so a broken database never hides the artifacts
	if err := e.recorder.Finish(context.WithoutCancel(ctx), run); err != nil {
		log.Warn().Err(err).Msg("failed to record run result")
	}

	t := report.TotalsOf(run)
	log.Info().
		Str("status", string(run.Status)).
		Str("stage", run.Stage).
		Int("total", t.Total).
		Int("processed", t.Processed).
		Int("skipped", t.Skipped).
		Int("errors", t.Errors).
		Msg("run finished")
	e.auditf("run %s %s at %s: total=%d processed=%d skipped=%d errors=%d",
		run.ID, run.Status, run.Stage, t.Total, t.Processed, t.Skipped, t.Errors)

	if runErr != nil {
		return out, fmt.Errorf("run %s failed at %s: %w", run.ID, run.Stage, runErr)
	}
	return out, nil
}

type state struct {
	machine
	opts   Options
	run    *runlog.Run
	table  *sheet.Table
	log    zerolog.Logger
	bundle *report.Bundle
}

func (st *state) enter(to Stage) error {
	if err := st.advance(to); err != nil {
		return err
	}
	st.run.Stage = to.String()
	st.log.Debug().Str("stage", to.String()).Msg("stage complete")
	return nil
}

func (e *Engine) execute(ctx context.Context, st *state) error {
	c := &st.run.Counts
	b := st.bundle

	// LOADED: bind headers, build lookups, prefetch master invoices.
	lk, err := e.lookups.Load(ctx)
	if err != nil {
		return persist.Unavailable(fmt.Errorf("load dimension lookups: %w", err))
	}
	masters, invoices, err := validation.LoadMasterSet(ctx, e.store)
	if err != nil {
		return persist.Unavailable(err)
	}
	lk.AddInvoices(invoices)
	b.Conflicts = lk.Conflicts()

	tr, err := transform.New(st.opts.Source, st.table.Headers, st.table.Name, lk, st.log)
	if err != nil {
		return err
	}
	c.TotalRows = len(st.table.Rows)
	if err := st.enter(StageLoaded); err != nil {
		return err
	}

	// FILTERED: -ORG invoices leave before anything else looks at them.
	rows, org := dedup.OrgFilter{Policy: st.opts.OrgPolicy, Reader: tr}.Apply(st.table.Rows)
	b.Org = org
	c.OrgRows = org.TotalRows
	for _, oi := range org.Invoices {
		st.log.Info().Str("invoice_no", oi.InvoiceNo).Int("rows", oi.Rows).
			Str("amount", oi.Amount.StringFixed(2)).Str("hours", oi.Hours.StringFixed(2)).
			Str("policy", string(org.Policy)).Msg("-ORG invoice excluded")
	}
	if err := st.enter(StageFiltered); err != nil {
		return err
	}

	// TRANSFORMED
	records := make([]*model.DetailRecord, 0, len(rows))
	for _, r := range rows {
		rec, err := tr.Transform(r)
		if err != nil {
			var re *model.RowError
			if !errors.As(err, &re) {
				return err
			}
			b.Malformed = append(b.Malformed, re)
			continue
		}
		records = append(records, rec)
	}
	c.Malformed = len(b.Malformed)
	c.Transformed = len(records)
	b.Unmatched = tr.Unmatched().List()
	b.Warnings = tr.Warnings()
	if err := st.enter(StageTransformed); err != nil {
		return err
	}

	// DEDUPLICATED: details are keyed by the master's stored invoice_no, the
	// same literal earlier runs persisted.
	if n := validation.Canonicalize(masters, records); n > 0 {
		st.log.Debug().Int("records", n).Msg("invoice numbers rewritten to master literal")
	}
	existing, err := e.store.ExistingDetails(ctx, invoiceNumbers(records))
	if err != nil {
		return persist.Unavailable(err)
	}
	dr := dedup.NewDetector(st.opts.Policy, st.opts.InBatch, st.log).Classify(records, existing)
	b.Dedup = dr
	c.Duplicates = len(dr.Duplicates)
	c.Ambiguous = len(dr.Ambiguous)
	if err := st.enter(StageDeduplicated); err != nil {
		return err
	}

	// VALIDATED
	vr := validation.New(masters, st.log).Validate(dr.New)
	b.Validation = vr
	c.Missing = vr.MissingRecords()
	if err := st.enter(StageValidated); err != nil {
		return err
	}

	// PERSISTED
	ins := e.inserter
	if st.opts.DryRun {
		ins, err = persist.New(nil, persist.Options{DryRun: true, BatchSize: st.opts.BatchSize}, st.log)
		if err != nil {
			return err
		}
	}
	if ins == nil {
		return fmt.Errorf("%w: no database configured (use dry-run)", persist.ErrDatabaseUnavailable)
	}
	pr, err := ins.Persist(ctx, vr.Valid)
	if pr != nil {
		b.Persist = pr
		c.Inserted = pr.Inserted
		c.Conflicts = pr.Conflicts
		c.Failed = len(pr.FailedRows)
	}
	if err != nil {
		return err
	}
	return st.enter(StagePersisted)
}

func (e *Engine) auditf(format string, args ...any) {
	if e.audit != nil {
		e.audit.LogAudit(fmt.Sprintf(format, args...))
	}
}

func invoiceNumbers(records []*model.DetailRecord) []string {
	seen := make(map[string]struct{}, len(records))
	var out []string
	for _, r := range records {
		if _, ok := seen[r.InvoiceNo]; ok {
			continue
		}
		seen[r.InvoiceNo] = struct{}{}
		out = append(out, r.InvoiceNo)
	}
	sort.Strings(out)
	return out
}
