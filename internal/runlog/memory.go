package runlog

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is a Recorder kept in process memory. Used when no database is
// configured for history and in tests.
type Memory struct {
	mu   sync.Mutex
	runs map[uuid.UUID]Run
}

func NewMemory() *Memory {
	return &Memory{runs: make(map[uuid.UUID]Run)}
}

func (m *Memory) Start(_ context.Context, run *Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	run.Status = StatusRunning
	m.runs[run.ID] = *run
	return nil
}

func (m *Memory) Finish(_ context.Context, run *Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[run.ID]; !ok {
		return ErrNotFound
	}
	if run.FinishedAt == nil {
		now := time.Now().UTC()
		run.FinishedAt = &now
	}
	m.runs[run.ID] = *run
	return nil
}

func (m *Memory) Get(_ context.Context, id uuid.UUID) (*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (m *Memory) Recent(_ context.Context, limit int) ([]Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Run, 0, len(m.runs))
	for _, r := range m.runs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) LastByHash(_ context.Context, hash string) (*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *Run
	for _, r := range m.runs {
		if r.FileHash != hash || r.DryRun {
			continue
		}
		if best == nil || r.StartedAt.After(best.StartedAt) {
			r := r
			best = &r
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	return best, nil
}
