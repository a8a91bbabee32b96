package runlog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

func TestMemoryLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	first := &Run{Source: "AUS", FileHash: "abc", StartedAt: time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)}
	if err := m.Start(ctx, first); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if first.ID == uuid.Nil || first.Status != StatusRunning {
		t.Fatalf("run = %+v", first)
	}
	first.Status = StatusSucceeded
	first.Inserted = 12
	if err := m.Finish(ctx, first); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	dry := &Run{Source: "AUS", FileHash: "abc", DryRun: true, StartedAt: first.StartedAt.Add(time.Hour)}
	_ = m.Start(ctx, dry)

	got, err := m.Get(ctx, first.ID)
	if err != nil || got.Inserted != 12 || got.FinishedAt == nil {
		t.Errorf("Get = %+v, %v", got, err)
	}
	last, err := m.LastByHash(ctx, "abc")
	if err != nil || last.ID != first.ID {
		t.Errorf("LastByHash = %+v, %v; dry runs must be ignored", last, err)
	}
	recent, _ := m.Recent(ctx, 10)
	if len(recent) != 2 || recent[0].ID != dry.ID {
		t.Errorf("Recent order wrong: %+v", recent)
	}
	if _, err := m.Get(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get unknown err = %v", err)
	}
	if err := m.Finish(ctx, &Run{ID: uuid.New()}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Finish unknown err = %v", err)
	}
}

func TestClassifyUndefinedTable(t *testing.T) {
	err := classify(&pq.Error{Code: "42P01", Message: `relation "ingestion_runs" does not exist`})
	if !errors.Is(err, ErrNoTable) {
		t.Errorf("err = %v, want ErrNoTable", err)
	}
	other := &pq.Error{Code: "23505", Message: "duplicate key"}
	if got := classify(other); got != error(other) {
		t.Errorf("classify changed an unrelated error: %v", got)
	}
}
