package appmanager

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"InvoiceRecon/api"
	"InvoiceRecon/internal/config"
	"InvoiceRecon/internal/ingest"
	"InvoiceRecon/internal/jobs"
	"InvoiceRecon/internal/logger"
	"InvoiceRecon/internal/resource"
	"InvoiceRecon/internal/serviceiface"
)

// Deps are the process-wide objects the service constructors share. A nil
// Logger or Resources is built from its services.yaml entry instead.
type Deps struct {
	Logger    *logger.LoggerService
	RunConfig *config.RunConfig
	Ingest    *ingest.Service
	Resources *resource.ResourceManager
}

type constructor func(cfg map[string]interface{}, am *AppManager) serviceiface.Service

var serviceConstructors = map[string]constructor{
	"logger": func(cfg map[string]interface{}, am *AppManager) serviceiface.Service {
		if am.deps.Logger != nil {
			return am.deps.Logger
		}
		return logger.NewLoggerService(cfg)
	},
	"resourcemanager": func(cfg map[string]interface{}, am *AppManager) serviceiface.Service {
		if am.deps.Resources != nil {
			return am.deps.Resources
		}
		return resource.NewResourceManagerService(cfg)
	},
	"cron": func(cfg map[string]interface{}, am *AppManager) serviceiface.Service {
		return jobs.NewCronService(cfg, am.deps.RunConfig.Inbox, am.deps.Ingest, am.log())
	},
	"gateway": func(cfg map[string]interface{}, am *AppManager) serviceiface.Service {
		var ping api.Pinger
		if am.deps.Resources != nil {
			ping = am.deps.Resources
		}
		return api.NewGatewayService(cfg, am.deps.Ingest, ping, am.log())
	},
}

// ------------------- MANAGER -------------------

type AppManager struct {
	services []serviceiface.Service
	deps     Deps
	mu       sync.Mutex
}

func NewAppManager(deps Deps) *AppManager {
	return &AppManager{
		services: make([]serviceiface.Service, 0),
		deps:     deps,
	}
}

func (am *AppManager) log() zerolog.Logger {
	if logger.GlobalLogger != nil {
		return logger.GlobalLogger.Logger()
	}
	return zerolog.Nop()
}

func (am *AppManager) RegisterService(s serviceiface.Service) {
	am.mu.Lock()
	defer am.mu.Unlock()
	am.services = append(am.services, s)
}

// StartAll starts services in registration order, resourcemanager last so
// its heartbeat only begins once everything it watches is up.
func (am *AppManager) StartAll() error {
	am.mu.Lock()
	defer am.mu.Unlock()

	for _, service := range am.services {
		if service.Name() == "resourcemanager" {
			continue
		}
		logger.Audit("Starting service: %s", service.Name())
		if err := service.Start(); err != nil {
			return fmt.Errorf("failed to start service %s: %w", service.Name(), err)
		}
	}

	for _, service := range am.services {
		if service.Name() == "resourcemanager" {
			logger.Audit("Starting service: %s", service.Name())
			if err := service.Start(); err != nil {
				return fmt.Errorf("failed to start service %s: %w", service.Name(), err)
			}
		}
	}
	return nil
}

// StopAll stops services in reverse order and returns the first error after
// trying all of them.
func (am *AppManager) StopAll() error {
	am.mu.Lock()
	defer am.mu.Unlock()
	var firstErr error
	for i := len(am.services) - 1; i >= 0; i-- {
		svc := am.services[i]
		if err := svc.Stop(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to stop service %s: %w", svc.Name(), err)
		}
	}
	return firstErr
}

// ------------------- YAML CONFIG -------------------

type ServiceSequencer struct {
	Services []ServiceConfig `yaml:"services"`
}

type ServiceConfig struct {
	Name       string                 `yaml:"name"`
	StartOrder int                    `yaml:"start_order"`
	Config     map[string]interface{} `yaml:"config"`
}

func LoadServiceSequence(path string) ([]ServiceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var seq ServiceSequencer
	if err := yaml.Unmarshal(data, &seq); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	// sort by start_order
	sort.SliceStable(seq.Services, func(i, j int) bool {
		return seq.Services[i].StartOrder < seq.Services[j].StartOrder
	})

	return seq.Services, nil
}

// AutoRegisterServices builds every known service in start order. The logger
// is installed as GlobalLogger as soon as it is built so later constructors
// log through it. Unknown names are an error.
func (am *AppManager) AutoRegisterServices(configs []ServiceConfig) error {
	for _, svc := range configs {
		constructor, ok := serviceConstructors[svc.Name]
		if !ok {
			return fmt.Errorf("unknown service %q in service sequence", svc.Name)
		}
		if (svc.Name == "cron" || svc.Name == "gateway") && (am.deps.Ingest == nil || am.deps.RunConfig == nil) {
			return fmt.Errorf("service %s needs the ingest service", svc.Name)
		}
		service := constructor(svc.Config, am)
		if l, ok := service.(*logger.LoggerService); ok {
			logger.SetGlobalLogger(l)
		}
		am.RegisterService(service)
	}
	return nil
}

// ConfigFor returns the config block of the named service, or nil.
func ConfigFor(configs []ServiceConfig, name string) map[string]interface{} {
	for _, c := range configs {
		if c.Name == name {
			return c.Config
		}
	}
	return nil
}

func (am *AppManager) GetServiceByName(name string) serviceiface.Service {
	am.mu.Lock()
	defer am.mu.Unlock()
	for _, svc := range am.services {
		if svc.Name() == name {
			return svc
		}
	}
	return nil
}

func (am *AppManager) ServiceNames() []string {
	am.mu.Lock()
	defer am.mu.Unlock()
	names := make([]string, len(am.services))
	for i, svc := range am.services {
		names[i] = svc.Name()
	}
	return names
}
