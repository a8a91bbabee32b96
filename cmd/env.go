package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"InvoiceRecon/internal/config"
	"InvoiceRecon/internal/ingest"
	"InvoiceRecon/internal/logger"
	"InvoiceRecon/internal/persist"
	"InvoiceRecon/internal/pipeline"
	"InvoiceRecon/internal/resource"
	"InvoiceRecon/internal/runlog"
)

// environment is everything a command needs to run files.
type environment struct {
	cfg    *config.RunConfig
	rm     *resource.ResourceManager // nil when offline
	ingest *ingest.Service
	log    zerolog.Logger
}

func (e *environment) Close() {
	if e.rm != nil {
		if err := e.rm.Close(); err != nil {
			e.log.Warn().Err(err).Msg("close database")
		}
	}
}

// auditSink sends run milestones to the audit log when the logger service
// is up, and to the console logger otherwise.
type auditSink struct {
	log zerolog.Logger
}

func (a auditSink) LogAudit(msg string) {
	if logger.GlobalLogger != nil {
		logger.GlobalLogger.LogAudit(msg)
		return
	}
	a.log.Info().Str("kind", "audit").Msg(msg)
}

// openEnvironment connects to Postgres, or, when invoices names an exported
// invoices file, builds an offline environment that can only dry-run.
func openEnvironment(ctx context.Context, cfg *config.RunConfig, invoices string, log zerolog.Logger) (*environment, error) {
	env := &environment{cfg: cfg, log: log}
	deps := ingest.Deps{Audit: auditSink{log: log}}
	var refs ingest.ReferenceStore

	if invoices != "" {
		log.Info().Str("invoices", invoices).Msg("offline mode, master invoices read from file")
		deps.Store = ingest.FileStore{Invoices: invoices}
	} else {
		db := config.DBConfigFromEnv()
		if !db.Configured() {
			return nil, errors.New("DB_NAME is not set; pass --invoices with --dry-run to run without a database")
		}
		rm, err := resource.Open(ctx, db, log)
		if err != nil {
			return nil, err
		}
		env.rm = rm
		store := persist.NewStore(rm.Pool(), cfg.DetailTable)
		deps.Store, refs = store, store

		p, err := persist.New(rm.Pool(), persist.Options{BatchSize: cfg.BatchSize, Table: cfg.DetailTable}, log)
		if err != nil {
			env.Close()
			return nil, err
		}
		deps.Inserter = p
		deps.Recorder = recorderFor(ctx, rm, log)
	}

	lookups, err := ingest.LookupsFor(cfg, refs, log)
	if err != nil {
		env.Close()
		return nil, err
	}
	deps.Lookups = lookups

	svc, err := ingest.New(cfg, deps, log)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.ingest = svc
	return env, nil
}

// recorderFor keeps run history in ingestion_runs, or in memory when the
// table has not been created yet.
func recorderFor(ctx context.Context, rm *resource.ResourceManager, log zerolog.Logger) runlog.Recorder {
	store := runlog.NewStore(rm.SQL())
	if _, err := store.Recent(ctx, 1); err != nil {
		if errors.Is(err, runlog.ErrNoTable) {
			log.Warn().Msg("ingestion_runs is missing, run history is kept in memory only")
		} else {
			log.Warn().Err(err).Msg("run history unavailable, kept in memory only")
		}
		return runlog.NewMemory()
	}
	return store
}

func printOutcome(out *pipeline.Outcome) {
	if out == nil || out.Run == nil {
		return
	}
	r := out.Run
	fmt.Printf("run %s %s (stage %s)\n", r.ID, r.Status, r.Stage)
	fmt.Printf("  rows %d, org %d, malformed %d, duplicates %d, ambiguous %d, missing %d\n",
		r.TotalRows, r.OrgRows, r.Malformed, r.Duplicates, r.Ambiguous, r.Missing)
	if r.DryRun {
		fmt.Printf("  dry run, nothing written\n")
	} else {
		fmt.Printf("  inserted %d, conflicts %d, failed %d\n", r.Inserted, r.Conflicts, r.Failed)
	}
	if out.Dir != "" {
		fmt.Printf("  artifacts in %s\n", out.Dir)
	}
}
