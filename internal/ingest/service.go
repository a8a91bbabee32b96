// Package ingest is the process-wide entry point for runs. It turns the run
// configuration into pipeline options and serializes runs, so uploads and the
// inbox scheduler never process files at the same time.
package ingest

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"InvoiceRecon/internal/config"
	"InvoiceRecon/internal/dedup"
	"InvoiceRecon/internal/model"
	"InvoiceRecon/internal/pipeline"
	"InvoiceRecon/internal/runlog"
	"InvoiceRecon/internal/sheet"
)

// Deps are the collaborators a Service runs against.
type Deps struct {
	Store    pipeline.Store
	Inserter pipeline.Inserter
	Lookups  pipeline.LookupSource
	Recorder runlog.Recorder
	Audit    pipeline.Auditor
}

type Service struct {
	mu       sync.Mutex
	cfg      *config.RunConfig
	engine   *pipeline.Engine
	recorder runlog.Recorder
	log      zerolog.Logger
}

func New(cfg *config.RunConfig, deps Deps, log zerolog.Logger) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid run configuration: %w", err)
	}
	if deps.Store == nil || deps.Lookups == nil {
		return nil, fmt.Errorf("ingest service needs a store and a lookup source")
	}
	if deps.Recorder == nil {
		deps.Recorder = runlog.NewMemory()
	}
	return &Service{
		cfg:      cfg,
		engine:   pipeline.NewEngine(deps.Store, deps.Inserter, deps.Lookups, deps.Recorder, deps.Audit, log),
		recorder: deps.Recorder,
		log:      log.With().Str("component", "ingest").Logger(),
	}, nil
}

// Options resolves the configured policies for one run.
func (s *Service) Options(source model.SourceSystem, dryRun bool) (pipeline.Options, error) {
	policy, err := dedup.PolicyByName(s.cfg.DuplicatePolicy)
	if err != nil {
		return pipeline.Options{}, err
	}
	return pipeline.Options{
		Source:    source,
		Policy:    policy,
		InBatch:   dedup.InBatchMode(s.cfg.InBatch),
		OrgPolicy: dedup.OrgPolicy(s.cfg.OrgPolicy),
		OutputDir: s.cfg.OutputDir,
		DryRun:    dryRun,
		Workbook:  s.cfg.Workbook,
		BatchSize: s.cfg.BatchSize,
	}, nil
}

func (s *Service) IngestFile(ctx context.Context, source model.SourceSystem, path string, dryRun bool) (*pipeline.Outcome, error) {
	tbl, err := sheet.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return s.IngestTable(ctx, source, tbl, dryRun)
}

// IngestTable runs one file. Calls are serialized.
func (s *Service) IngestTable(ctx context.Context, source model.SourceSystem, tbl *sheet.Table, dryRun bool) (*pipeline.Outcome, error) {
	opts, err := s.Options(source, dryRun)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log.Info().Str("source", string(source)).Str("file", tbl.Name).Int("rows", len(tbl.Rows)).Bool("dry_run", dryRun).Msg("ingest requested")
	return s.engine.RunTable(ctx, tbl, opts)
}

// Runs is the run history.
func (s *Service) Runs() runlog.Recorder { return s.recorder }

func (s *Service) Config() *config.RunConfig { return s.cfg }
