package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"InvoiceRecon/internal/config"
	"InvoiceRecon/internal/lookup"
	"InvoiceRecon/internal/model"
	"InvoiceRecon/internal/persist"
	"InvoiceRecon/internal/sheet"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestFileLookups(t *testing.T) {
	dir := t.TempDir()
	fl := FileLookups{
		Buildings: writeFile(t, dir, "buildings.csv", "Building Code,EMID,Business Unit\nCO203-1,E100,BU9\nco203-1,E999,BU1\n"),
		EMIDs:     writeFile(t, dir, "emids.csv", "EMID,Job Code\nE100,JC-1\n"),
		Jobs:      writeFile(t, dir, "jobs.csv", "Job Number,Building Code,Location\nJ-100,CO203-1,DEN-7\n"),
		Log:       zerolog.Nop(),
	}
	l, err := fl.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if b, ok := l.Building("co203-1"); !ok || b.EMID != "E100" {
		t.Errorf("building = %+v, %v", b, ok)
	}
	if len(l.Conflicts()) != 1 {
		t.Errorf("conflicts = %v", l.Conflicts())
	}
	if j, ok := l.Location("DEN-7"); !ok || j.BuildingCode != "CO203-1" {
		t.Errorf("location = %+v, %v", j, ok)
	}

	fl.EMIDs = writeFile(t, dir, "bad.csv", "EMID,Whatever\nE1,x\n")
	if _, err := fl.Load(context.Background()); err == nil {
		t.Error("reference file without required headers accepted")
	}
}

type refStore struct{ err error }

func (r refStore) Buildings(context.Context) ([]lookup.BuildingEntry, error) {
	return []lookup.BuildingEntry{{BuildingCode: "TX400", EMID: "E400"}}, r.err
}
func (refStore) EMIDs(context.Context) ([]lookup.EMIDEntry, error) {
	return []lookup.EMIDEntry{{EMID: "E400", JobCode: "JC-4"}}, nil
}
func (refStore) Jobs(context.Context) ([]lookup.JobEntry, error) {
	return []lookup.JobEntry{{JobNumber: "J-4", BuildingCode: "TX400"}}, nil
}

func TestDBLookups(t *testing.T) {
	l, err := DBLookups{Store: refStore{}, Log: zerolog.Nop()}.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if e, ok := l.EMID("e400"); !ok || e.JobCode != "JC-4" {
		t.Errorf("emid = %+v, %v", e, ok)
	}
	if _, err := (DBLookups{Store: refStore{err: errors.New("relation does not exist")}}).Load(context.Background()); err == nil {
		t.Error("store error swallowed")
	}
}

func TestLookupsFor(t *testing.T) {
	cfg := config.Default()
	if _, err := LookupsFor(cfg, nil, zerolog.Nop()); err == nil {
		t.Error("db references without a store accepted")
	}
	if src, err := LookupsFor(cfg, refStore{}, zerolog.Nop()); err != nil {
		t.Error(err)
	} else if _, ok := src.(DBLookups); !ok {
		t.Errorf("source = %T", src)
	}
	cfg.References = config.References{Source: config.ReferencesFiles, Jobs: "jobs.csv"}
	if src, _ := LookupsFor(cfg, nil, zerolog.Nop()); src == nil {
		t.Error("file references not built")
	}
}

func TestReadMasterInvoices(t *testing.T) {
	tbl, err := sheet.ReadBytes([]byte("Invoice Number,EMID,Invoice Total,Invoice Date\n40011284.0,E100,\"1,200.50\",2024-06-30\n,E1,1,\nNaN,E2,2,\n"), "invoices.csv")
	if err != nil {
		t.Fatal(err)
	}
	got, err := ReadMasterInvoices(tbl)
	if err != nil {
		t.Fatalf("ReadMasterInvoices: %v", err)
	}
	if len(got) != 1 || got[0].InvoiceNo != "40011284" || got[0].EMID != "E100" {
		t.Fatalf("invoices = %+v", got)
	}
	if got[0].InvoiceTotal.StringFixed(2) != "1200.50" || !got[0].InvoiceDate.Valid {
		t.Errorf("invoice = %+v", got[0])
	}
}

// slowStore notices when two runs overlap.
type slowStore struct {
	active, overlaps int32
}

func (s *slowStore) MasterInvoices(context.Context) ([]model.MasterInvoice, error) {
	if atomic.AddInt32(&s.active, 1) > 1 {
		atomic.AddInt32(&s.overlaps, 1)
	}
	time.Sleep(5 * time.Millisecond)
	return []model.MasterInvoice{{InvoiceNo: "1"}}, nil
}

func (s *slowStore) ExistingDetails(context.Context, []string) ([]*model.DetailRecord, error) {
	atomic.AddInt32(&s.active, -1)
	return nil, nil
}

type emptyLookups struct{}

func (emptyLookups) Load(context.Context) (*lookup.Lookups, error) { return lookup.New(zerolog.Nop()), nil }

func testConfig() *config.RunConfig {
	cfg := config.Default()
	cfg.DuplicatePolicy = "basic"
	cfg.OutputDir = ""
	return cfg
}

func TestRunsAreSerialized(t *testing.T) {
	store := &slowStore{}
	svc, err := New(testConfig(), Deps{Store: store, Lookups: emptyLookups{}}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tbl := &sheet.Table{
		Name:    "aus.csv",
		Headers: []string{"Invoice Number", "Employee Number", "Work Date", "Hours", "Rate"},
		Rows:    []sheet.Row{{Line: 2, Cells: []string{"1", "2", "2024-06-01", "1", "1"}}},
	}
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.IngestTable(context.Background(), model.SourceAUS, tbl, true); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	if store.overlaps != 0 {
		t.Errorf("%d runs overlapped", store.overlaps)
	}
	runs, _ := svc.Runs().Recent(context.Background(), 10)
	if len(runs) != 4 {
		t.Errorf("recorded %d runs, want 4", len(runs))
	}
}

func TestOptionsFollowConfig(t *testing.T) {
	cfg := testConfig()
	cfg.InBatch = "keep_first"
	cfg.BatchSize = 100
	svc, err := New(cfg, Deps{Store: FileStore{}, Lookups: emptyLookups{}}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	o, err := svc.Options(model.SourceBCI, false)
	if err != nil {
		t.Fatal(err)
	}
	if o.Policy.Name != "basic" || o.InBatch != "keep_first" || o.BatchSize != 100 || o.DryRun {
		t.Errorf("options = %+v", o)
	}

	cfg.DuplicatePolicy = ""
	if _, err := New(cfg, Deps{Store: FileStore{}, Lookups: emptyLookups{}}, zerolog.Nop()); err == nil {
		t.Error("service built without a duplicate policy")
	}
}

func TestMissingInserterOnlyFailsRealRuns(t *testing.T) {
	svc, err := New(testConfig(), Deps{Store: &slowStore{}, Lookups: emptyLookups{}}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	tbl := &sheet.Table{
		Name:    "aus.csv",
		Headers: []string{"Invoice Number", "Employee Number", "Work Date", "Hours", "Rate"},
		Rows:    []sheet.Row{{Line: 2, Cells: []string{"1", "2", "2024-06-01", "1", "1"}}},
	}
	if _, err := svc.IngestTable(context.Background(), model.SourceAUS, tbl, false); !errors.Is(err, persist.ErrDatabaseUnavailable) {
		t.Errorf("err = %v", err)
	}
}
