package ingest

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"InvoiceRecon/internal/config"
	"InvoiceRecon/internal/lookup"
	"InvoiceRecon/internal/pipeline"
	"InvoiceRecon/internal/sheet"
)

// ReferenceStore reads the three dimension tables.
type ReferenceStore interface {
	Buildings(ctx context.Context) ([]lookup.BuildingEntry, error)
	EMIDs(ctx context.Context) ([]lookup.EMIDEntry, error)
	Jobs(ctx context.Context) ([]lookup.JobEntry, error)
}

// DBLookups builds the indexes from building_dimension, emid_reference and
// job_location_lookup.
type DBLookups struct {
	Store ReferenceStore
	Log   zerolog.Logger
}

func (d DBLookups) Load(ctx context.Context) (*lookup.Lookups, error) {
	l := lookup.New(d.Log)
	buildings, err := d.Store.Buildings(ctx)
	if err != nil {
		return nil, fmt.Errorf("building_dimension: %w", err)
	}
	for i, e := range buildings {
		l.AddBuilding(e, i+1)
	}
	emids, err := d.Store.EMIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("emid_reference: %w", err)
	}
	for i, e := range emids {
		l.AddEMID(e, i+1)
	}
	jobs, err := d.Store.Jobs(ctx)
	if err != nil {
		return nil, fmt.Errorf("job_location_lookup: %w", err)
	}
	for i, e := range jobs {
		l.AddJob(e, i+1)
	}
	logStats(d.Log, l)
	return l, nil
}

// FileLookups builds the indexes from reference spreadsheets. Empty paths
// are skipped and leave that index empty.
type FileLookups struct {
	Buildings string
	EMIDs     string
	Jobs      string
	Log       zerolog.Logger
}

func (f FileLookups) Load(context.Context) (*lookup.Lookups, error) {
	l := lookup.New(f.Log)
	steps := []struct {
		path string
		load func(*sheet.Table) error
	}{
		{f.Buildings, l.LoadBuildings},
		{f.EMIDs, l.LoadEMIDs},
		{f.Jobs, l.LoadJobs},
	}
	for _, s := range steps {
		if s.path == "" {
			continue
		}
		t, err := sheet.ReadFile(s.path)
		if err != nil {
			return nil, fmt.Errorf("reference file %s: %w", s.path, err)
		}
		if err := s.load(t); err != nil {
			return nil, err
		}
	}
	logStats(f.Log, l)
	return l, nil
}

// LookupsFor picks the reference source named in the run configuration.
func LookupsFor(cfg *config.RunConfig, store ReferenceStore, log zerolog.Logger) (pipeline.LookupSource, error) {
	switch cfg.References.Source {
	case config.ReferencesFiles:
		return FileLookups{Buildings: cfg.References.Buildings, EMIDs: cfg.References.EMIDs, Jobs: cfg.References.Jobs, Log: log}, nil
	case config.ReferencesDB:
		if store == nil {
			return nil, fmt.Errorf("references.source is %s but no database is connected", config.ReferencesDB)
		}
		return DBLookups{Store: store, Log: log}, nil
	}
	return nil, fmt.Errorf("unknown references.source %q", cfg.References.Source)
}

func logStats(log zerolog.Logger, l *lookup.Lookups) {
	for _, s := range l.Stats() {
		log.Debug().Str("table", s.Table).Int("entries", s.Entries).Int("conflicts", s.Conflicts).Msg("lookup index built")
	}
}
