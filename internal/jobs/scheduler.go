package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"InvoiceRecon/internal/config"
	"InvoiceRecon/internal/logger"
	"InvoiceRecon/internal/serviceiface"
)

type CronService struct {
	config map[string]interface{}
	inbox  config.Inbox
	ing    Ingester
	cron   *cron.Cron
	log    zerolog.Logger
}

func NewCronService(cfg map[string]interface{}, inbox config.Inbox, ing Ingester, log zerolog.Logger) serviceiface.Service {
	return &CronService{
		config: cfg,
		inbox:  inbox,
		ing:    ing,
		log:    log,
	}
}

func (s *CronService) Name() string {
	return "cron"
}

func (s *CronService) Start() error {
	inboxConfig := NewDefaultInboxConfig(s.inbox)

	// services.yaml wins over recon.yaml for the schedule
	if s.config != nil {
		if schedule, ok := s.config["inbox_schedule"].(string); ok && schedule != "" {
			inboxConfig.Schedule = schedule
		}
		if n, ok := s.config["max_failures"].(int); ok && n > 0 {
			inboxConfig.MaxFailures = int32(n)
		}
	}
	if !s.inbox.Enabled {
		s.log.Info().Msg("inbox disabled, cron service idle")
		return nil
	}

	c, err := RunInboxScheduler(inboxConfig, NewInboxScanner(inboxConfig, s.ing, s.log))
	if err != nil {
		return fmt.Errorf("failed to start inbox scheduler: %w", err)
	}
	s.cron = c
	logger.Audit("Cron service started with inbox %s on %q", inboxConfig.Dir, inboxConfig.Schedule)
	return nil
}

func (s *CronService) Stop() error {
	if s.cron != nil {
		// waits for a running scan to finish
		<-s.cron.Stop().Done()
	}
	return nil
}

// RunInboxScheduler schedules scanner on cfg.Schedule and starts the cron.
func RunInboxScheduler(cfg *InboxConfig, scanner *InboxScanner) (*cron.Cron, error) {
	loc, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone for inbox scheduler: %w", err)
	}
	// a slow run must not overlap the next tick
	c := cron.New(cron.WithLocation(loc), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err = c.AddFunc(cfg.Schedule, func() {
		done, err := scanner.ScanOnce(context.Background())
		switch {
		case errors.Is(err, ErrBreakerOpen):
			scanner.log.Debug().Msg("inbox scan skipped, database marked unavailable")
		case err != nil:
			logger.Audit("inbox scan stopped after %d files: %v", len(done), err)
		case len(done) > 0:
			logger.Audit("inbox scan processed %d files", len(done))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid inbox schedule %q: %w", cfg.Schedule, err)
	}
	c.Start()
	return c, nil
}
