package resource

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"

	"InvoiceRecon/internal/config"
	"InvoiceRecon/internal/logger"
	"InvoiceRecon/internal/serviceiface"
)

const (
	KeyPgxPool = "pgxpool"
	KeySQLDB   = "sqldb"
)

type ResourceManager struct {
	resources         map[string]interface{}
	mu                sync.RWMutex
	stopChan          chan struct{}
	stopOnce          sync.Once
	heartbeatInterval time.Duration
	log               zerolog.Logger
}

func NewResourceManagerService(cfg map[string]interface{}) serviceiface.Service {
	return NewResourceManager(cfg, zerolog.Nop())
}

func NewResourceManager(cfg map[string]interface{}, log zerolog.Logger) *ResourceManager {
	interval := 30 * time.Second // default
	if val, ok := cfg["heartbeat_interval"]; ok {
		switch v := val.(type) {
		case string:
			if d, err := time.ParseDuration(v); err == nil {
				interval = d
			}
		case int:
			interval = time.Duration(v) * time.Second
		case float64:
			interval = time.Duration(v) * time.Second
		}
	}
	return &ResourceManager{
		resources:         make(map[string]interface{}),
		stopChan:          make(chan struct{}),
		heartbeatInterval: interval,
		log:               log.With().Str("component", "resource").Logger(),
	}
}

// Open connects both database handles: a pgx pool for the detail inserts and
// reference queries, and a database/sql handle on lib/pq for run history.
func Open(ctx context.Context, db config.DBConfig, log zerolog.Logger) (*ResourceManager, error) {
	rm := NewResourceManager(nil, log)
	if err := rm.Connect(ctx, db); err != nil {
		return nil, err
	}
	return rm, nil
}

// Connect opens and pings the database handles and registers them.
func (rm *ResourceManager) Connect(ctx context.Context, db config.DBConfig) error {
	dsn := db.DSN()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("ping %s:%s/%s: %w", db.Host, db.Port, db.Name, err)
	}
	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		pool.Close()
		return fmt.Errorf("open database/sql handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(4)
	rm.AddResource(KeyPgxPool, pool)
	rm.AddResource(KeySQLDB, sqlDB)
	rm.log.Info().Str("host", db.Host).Str("db", db.Name).Msg("database connected")
	return nil
}

func (rm *ResourceManager) Pool() *pgxpool.Pool {
	if r, ok := rm.GetResource(KeyPgxPool); ok {
		return r.(*pgxpool.Pool)
	}
	return nil
}

func (rm *ResourceManager) SQL() *sql.DB {
	if r, ok := rm.GetResource(KeySQLDB); ok {
		return r.(*sql.DB)
	}
	return nil
}

func (rm *ResourceManager) Name() string { return "resourcemanager" }

func (rm *ResourceManager) Start() error {
	logger.Audit("ResourceManager started with %d resources", len(rm.ListResources()))
	go rm.heartbeatLoop()
	return nil
}

// Stop ends the heartbeat and releases every resource.
func (rm *ResourceManager) Stop() error {
	rm.stopOnce.Do(func() { close(rm.stopChan) })
	return rm.Close()
}

// Close releases every resource that can be closed.
func (rm *ResourceManager) Close() error {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	var firstErr error
	for key, r := range rm.resources {
		switch c := r.(type) {
		case interface{ Close() error }:
			if err := c.Close(); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("close %s: %w", key, err)
			}
		case interface{ Close() }:
			c.Close()
		}
		delete(rm.resources, key)
	}
	return firstErr
}

func (rm *ResourceManager) heartbeatLoop() {
	ticker := time.NewTicker(rm.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-rm.stopChan:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), rm.heartbeatInterval)
			for key, err := range rm.Ping(ctx) {
				rm.log.Warn().Str("resource", key).Err(err).Msg("heartbeat failed")
				logger.Audit("heartbeat failed for %s: %v", key, err)
			}
			cancel()
		}
	}
}

// Ping checks every resource that can be pinged and returns the failures.
func (rm *ResourceManager) Ping(ctx context.Context) map[string]error {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	failed := make(map[string]error)
	for key, r := range rm.resources {
		var err error
		switch p := r.(type) {
		case interface{ Ping(context.Context) error }:
			err = p.Ping(ctx)
		case interface{ PingContext(context.Context) error }:
			err = p.PingContext(ctx)
		default:
			continue
		}
		if err != nil {
			failed[key] = err
		}
	}
	return failed
}

func (rm *ResourceManager) AddResource(key string, resource interface{}) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.resources[key] = resource
}

func (rm *ResourceManager) GetResource(key string) (interface{}, bool) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	resource, exists := rm.resources[key]
	return resource, exists
}

func (rm *ResourceManager) RemoveResource(key string) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	delete(rm.resources, key)
}

func (rm *ResourceManager) ListResources() []string {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	keys := make([]string, 0, len(rm.resources))
	for key := range rm.resources {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
