package jobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"InvoiceRecon/internal/config"
	"InvoiceRecon/internal/model"
	"InvoiceRecon/internal/persist"
	"InvoiceRecon/internal/pipeline"
	"InvoiceRecon/internal/sheet"
)

// Ingester runs one file. *ingest.Service implements it.
type Ingester interface {
	IngestFile(ctx context.Context, source model.SourceSystem, path string, dryRun bool) (*pipeline.Outcome, error)
}

type InboxConfig struct {
	Dir          string
	ProcessedDir string
	FailedDir    string
	Schedule     string
	TimeZone     string
	DryRun       bool
	MaxFailures  int32
	ResetTimeout time.Duration
}

// NewDefaultInboxConfig fills the blanks of the configured inbox.
func NewDefaultInboxConfig(in config.Inbox) *InboxConfig {
	cfg := &InboxConfig{
		Dir:          in.Dir,
		ProcessedDir: in.ProcessedDir,
		FailedDir:    in.FailedDir,
		Schedule:     in.Schedule,
		TimeZone:     in.TimeZone,
		DryRun:       in.DryRun,
		MaxFailures:  3,
		ResetTimeout: 10 * time.Minute,
	}
	if cfg.Schedule == "" {
		cfg.Schedule = config.DefaultInboxSchedule
	}
	if cfg.TimeZone == "" {
		cfg.TimeZone = config.DefaultTimeZone
	}
	if cfg.ProcessedDir == "" {
		cfg.ProcessedDir = filepath.Join(cfg.Dir, "processed")
	}
	if cfg.FailedDir == "" {
		cfg.FailedDir = filepath.Join(cfg.Dir, "failed")
	}
	return cfg
}

// Processed is one file the scanner picked up.
type Processed struct {
	Source  model.SourceSystem
	File    string
	MovedTo string
	RunID   string
	Err     error
}

// InboxScanner ingests files dropped into <dir>/BCI and <dir>/AUS. Files
// that complete a run move to the processed dir, files that fail move to the
// failed dir. A file whose run failed because the database was unreachable
// stays in the inbox for the next scan.
type InboxScanner struct {
	cfg     *InboxConfig
	ing     Ingester
	breaker *CircuitBreaker
	log     zerolog.Logger
}

func NewInboxScanner(cfg *InboxConfig, ing Ingester, log zerolog.Logger) *InboxScanner {
	return &InboxScanner{
		cfg:     cfg,
		ing:     ing,
		breaker: NewCircuitBreaker(cfg.MaxFailures, cfg.ResetTimeout),
		log:     log.With().Str("component", "inbox").Logger(),
	}
}

// ScanOnce processes every waiting file, oldest name first per source.
func (s *InboxScanner) ScanOnce(ctx context.Context) ([]Processed, error) {
	if err := s.breaker.Allow(); err != nil {
		return nil, err
	}
	var out []Processed
	for _, source := range []model.SourceSystem{model.SourceBCI, model.SourceAUS} {
		files, err := s.pending(source)
		if err != nil {
			return out, err
		}
		for _, path := range files {
			p := s.process(ctx, source, path)
			out = append(out, p)
			if errors.Is(p.Err, persist.ErrDatabaseUnavailable) {
				s.breaker.Record(p.Err)
				return out, p.Err
			}
		}
	}
	s.breaker.Record(nil)
	return out, nil
}

func (s *InboxScanner) pending(source model.SourceSystem) ([]string, error) {
	dir := filepath.Join(s.cfg.Dir, string(source))
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read inbox %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		name := e.Name()
		// skip partial uploads and lock files
		if e.IsDir() || strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~$") || !sheet.Supported(name) {
			continue
		}
		files = append(files, filepath.Join(dir, name))
	}
	sort.Strings(files)
	return files, nil
}

func (s *InboxScanner) process(ctx context.Context, source model.SourceSystem, path string) Processed {
	p := Processed{Source: source, File: path}
	out, err := s.ing.IngestFile(ctx, source, path, s.cfg.DryRun)
	if out != nil && out.Run != nil {
		p.RunID = out.Run.ID.String()
	}
	p.Err = err
	if errors.Is(err, persist.ErrDatabaseUnavailable) {
		s.log.Warn().Err(err).Str("file", path).Msg("database unavailable, file left in inbox")
		return p
	}

	target := s.cfg.ProcessedDir
	if err != nil {
		target = s.cfg.FailedDir
		s.log.Error().Err(err).Str("file", path).Msg("inbox file failed")
	}
	moved, merr := moveInto(path, filepath.Join(target, string(source)))
	if merr != nil {
		s.log.Error().Err(merr).Str("file", path).Msg("could not move inbox file")
		if p.Err == nil {
			p.Err = merr
		}
		return p
	}
	p.MovedTo = moved
	return p
}

// moveInto renames path into dir, prefixing a timestamp when the name is taken.
func moveInto(path, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	dst := filepath.Join(dir, filepath.Base(path))
	if _, err := os.Stat(dst); err == nil {
		dst = filepath.Join(dir, time.Now().Format("20060102_150405_")+filepath.Base(path))
	}
	return dst, os.Rename(path, dst)
}
