package jobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"InvoiceRecon/internal/config"
	"InvoiceRecon/internal/model"
	"InvoiceRecon/internal/persist"
	"InvoiceRecon/internal/pipeline"
)

type fakeIngester struct {
	calls []string
	errs  map[string]error
}

func (f *fakeIngester) IngestFile(_ context.Context, source model.SourceSystem, path string, _ bool) (*pipeline.Outcome, error) {
	name := filepath.Base(path)
	f.calls = append(f.calls, string(source)+"/"+name)
	return nil, f.errs[name]
}

func inbox(t *testing.T, files ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, f := range files {
		p := filepath.Join(dir, f)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestScanOnceMovesFiles(t *testing.T) {
	dir := inbox(t, "BCI/b2.xlsx", "BCI/b1.csv", "BCI/~$b1.xlsx", "BCI/notes.pdf", "AUS/a.csv")
	ing := &fakeIngester{errs: map[string]error{"a.csv": errors.New("missing required headers")}}
	s := NewInboxScanner(NewDefaultInboxConfig(config.Inbox{Dir: dir}), ing, zerolog.Nop())

	done, err := s.ScanOnce(context.Background())
	if err != nil {
		t.Fatalf("ScanOnce: %v", err)
	}
	want := []string{"BCI/b1.csv", "BCI/b2.xlsx", "AUS/a.csv"}
	if fmt.Sprint(ing.calls) != fmt.Sprint(want) {
		t.Errorf("calls = %v, want %v", ing.calls, want)
	}
	if len(done) != 3 {
		t.Fatalf("processed = %+v", done)
	}
	for _, p := range []string{"processed/BCI/b1.csv", "processed/BCI/b2.xlsx", "failed/AUS/a.csv", "BCI/notes.pdf"} {
		if _, err := os.Stat(filepath.Join(dir, p)); err != nil {
			t.Errorf("%s: %v", p, err)
		}
	}
}

func TestDatabaseOutageLeavesFilesAndTripsBreaker(t *testing.T) {
	dir := inbox(t, "AUS/a.csv", "AUS/b.csv")
	ing := &fakeIngester{errs: map[string]error{"a.csv": fmt.Errorf("run failed: %w", persist.ErrDatabaseUnavailable)}}
	cfg := NewDefaultInboxConfig(config.Inbox{Dir: dir})
	cfg.MaxFailures = 1
	s := NewInboxScanner(cfg, ing, zerolog.Nop())

	if _, err := s.ScanOnce(context.Background()); !errors.Is(err, persist.ErrDatabaseUnavailable) {
		t.Fatalf("err = %v", err)
	}
	if len(ing.calls) != 1 {
		t.Errorf("calls after outage = %v", ing.calls)
	}
	if _, err := os.Stat(filepath.Join(dir, "AUS/a.csv")); err != nil {
		t.Error("file moved out of inbox during outage")
	}
	if _, err := s.ScanOnce(context.Background()); !errors.Is(err, ErrBreakerOpen) {
		t.Errorf("second scan err = %v, want open breaker", err)
	}
}

func TestCircuitBreaker(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(2, time.Minute)
	cb.now = func() time.Time { return now }

	cb.Record(errors.New("x"))
	if cb.State() != StateClosed || cb.Allow() != nil {
		t.Fatal("opened before max failures")
	}
	cb.Record(errors.New("x"))
	if cb.Allow() != ErrBreakerOpen {
		t.Fatal("not open after max failures")
	}
	now = now.Add(2 * time.Minute)
	if cb.Allow() != nil || cb.State() != StateHalfOpen {
		t.Fatal("not half-open after reset timeout")
	}
	cb.Record(errors.New("x"))
	if cb.State() != StateOpen {
		t.Fatal("half-open failure did not reopen")
	}
	now = now.Add(2 * time.Minute)
	_ = cb.Allow()
	cb.Record(nil)
	if cb.State() != StateClosed {
		t.Error("success did not close the breaker")
	}
}

func TestRunInboxSchedulerRejectsBadSchedule(t *testing.T) {
	cfg := NewDefaultInboxConfig(config.Inbox{Dir: t.TempDir(), Schedule: "every tuesday"})
	if _, err := RunInboxScheduler(cfg, NewInboxScanner(cfg, &fakeIngester{}, zerolog.Nop())); err == nil {
		t.Error("bad schedule accepted")
	}
	cfg.Schedule = config.DefaultInboxSchedule
	cfg.TimeZone = "Mars/Olympus"
	if _, err := RunInboxScheduler(cfg, NewInboxScanner(cfg, &fakeIngester{}, zerolog.Nop())); err == nil {
		t.Error("bad time zone accepted")
	}
}
