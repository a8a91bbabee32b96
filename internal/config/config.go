package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"InvoiceRecon/internal/dedup"
	"InvoiceRecon/internal/persist"
)

const (
	DefaultTimeZone      = "UTC"
	DefaultInboxSchedule = "*/5 * * * *"
	DefaultOutputDir     = "./runs"
	DefaultRunConfigPath = "recon.yaml"
	DefaultServicesPath  = "services.yaml"

	// reference data comes from the dimension tables unless files are configured
	ReferencesDB    = "db"
	ReferencesFiles = "files"
)

// RunConfig is the ingestion configuration read from recon.yaml.
type RunConfig struct {
	// DuplicatePolicy has no default: basic, extended or fullhash must be named.
	DuplicatePolicy string     `yaml:"duplicate_policy"`
	InBatch         string     `yaml:"in_batch"`
	OrgPolicy       string     `yaml:"org_policy"`
	BatchSize       int        `yaml:"batch_size"`
	DetailTable     string     `yaml:"detail_table"`
	OutputDir       string     `yaml:"output_dir"`
	Workbook        bool       `yaml:"workbook"`
	References      References `yaml:"references"`
	Inbox           Inbox      `yaml:"inbox"`
}

type References struct {
	Source    string `yaml:"source"`
	Buildings string `yaml:"buildings"`
	EMIDs     string `yaml:"emids"`
	Jobs      string `yaml:"jobs"`
}

// Inbox is the directory the scheduler polls. Files are picked up from
// <dir>/BCI and <dir>/AUS.
type Inbox struct {
	Enabled      bool   `yaml:"enabled"`
	Dir          string `yaml:"dir"`
	Schedule     string `yaml:"schedule"`
	TimeZone     string `yaml:"time_zone"`
	ProcessedDir string `yaml:"processed_dir"`
	FailedDir    string `yaml:"failed_dir"`
	DryRun       bool   `yaml:"dry_run"`
}

// Default returns the configuration used for every key recon.yaml omits.
func Default() *RunConfig {
	return &RunConfig{
		InBatch:     string(dedup.FlagAll),
		OrgPolicy:   string(dedup.OrgSkip),
		BatchSize:   persist.DefaultBatchSize,
		DetailTable: persist.DefaultTable,
		OutputDir:   DefaultOutputDir,
		Workbook:    true,
		References:  References{Source: ReferencesDB},
		Inbox: Inbox{
			Dir:      "./inbox",
			Schedule: DefaultInboxSchedule,
			TimeZone: DefaultTimeZone,
		},
	}
}

// Load reads path over the defaults, applies RECON_* environment overrides
// and validates the result. An empty path skips the file.
func Load(path string) (*RunConfig, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read is Load without validation, for callers that apply their own
// overrides first.
func Read(path string) (*RunConfig, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read run config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse run config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *RunConfig) applyEnv(lookup func(string) (string, bool)) error {
	str := map[string]*string{
		"RECON_DUPLICATE_POLICY":  &c.DuplicatePolicy,
		"RECON_IN_BATCH":          &c.InBatch,
		"RECON_ORG_POLICY":        &c.OrgPolicy,
		"RECON_DETAIL_TABLE":      &c.DetailTable,
		"RECON_OUTPUT_DIR":        &c.OutputDir,
		"RECON_REFERENCES_SOURCE": &c.References.Source,
		"RECON_INBOX_DIR":         &c.Inbox.Dir,
		"RECON_INBOX_SCHEDULE":    &c.Inbox.Schedule,
	}
	for key, dst := range str {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	if v, ok := lookup("RECON_BATCH_SIZE"); ok && v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("RECON_BATCH_SIZE: %w", err)
		}
		c.BatchSize = n
	}
	return nil
}

// Validate rejects settings a run cannot start with.
func (c *RunConfig) Validate() error {
	var errs []error
	if strings.TrimSpace(c.DuplicatePolicy) == "" {
		errs = append(errs, fmt.Errorf("duplicate_policy must be set explicitly (one of %s)", strings.Join(dedup.PolicyNames(), ", ")))
	} else if _, err := dedup.PolicyByName(c.DuplicatePolicy); err != nil {
		errs = append(errs, err)
	}
	if _, err := dedup.ParseInBatchMode(c.InBatch); err != nil {
		errs = append(errs, err)
	}
	if _, err := dedup.ParseOrgPolicy(c.OrgPolicy); err != nil {
		errs = append(errs, err)
	}
	if c.BatchSize < 1 || c.BatchSize > persist.MaxBatchSize {
		errs = append(errs, fmt.Errorf("batch_size %d out of range 1..%d", c.BatchSize, persist.MaxBatchSize))
	}
	switch c.References.Source {
	case ReferencesDB:
	case ReferencesFiles:
		if c.References.Buildings == "" && c.References.EMIDs == "" && c.References.Jobs == "" {
			errs = append(errs, errors.New("references.source is files but no reference file is configured"))
		}
	default:
		errs = append(errs, fmt.Errorf("references.source %q (expected %s or %s)", c.References.Source, ReferencesDB, ReferencesFiles))
	}
	if c.Inbox.Enabled && c.Inbox.Dir == "" {
		errs = append(errs, errors.New("inbox.dir is required when the inbox is enabled"))
	}
	return errors.Join(errs...)
}

// DBConfig holds the connection settings read from DB_* variables.
type DBConfig struct {
	User     string
	Password string
	Host     string
	Port     string
	Name     string
	SSLMode  string
}

func DBConfigFromEnv() DBConfig {
	c := DBConfig{
		User:     os.Getenv("DB_USER"),
		Password: os.Getenv("DB_PASSWORD"),
		Host:     os.Getenv("DB_HOST"),
		Port:     os.Getenv("DB_PORT"),
		Name:     os.Getenv("DB_NAME"),
		SSLMode:  os.Getenv("DB_SSLMODE"),
	}
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == "" {
		c.Port = "5432"
	}
	if c.SSLMode == "" {
		c.SSLMode = "disable"
	}
	return c
}

// DSN is a keyword/value connection string; both lib/pq and pgx accept it.
func (c DBConfig) DSN() string {
	return fmt.Sprintf(
		"user=%s password=%s host=%s port=%s dbname=%s sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode,
	)
}

// Configured reports whether enough is set to attempt a connection.
func (c DBConfig) Configured() bool {
	return c.User != "" && c.Name != ""
}
