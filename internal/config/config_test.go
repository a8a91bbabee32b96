package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "recon.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadKeepsDefaultsForOmittedKeys(t *testing.T) {
	cfg, err := Load(writeYAML(t, "duplicate_policy: extended\norg_policy: review\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DuplicatePolicy != "extended" || cfg.OrgPolicy != "review" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.InBatch != "flag_all" || cfg.BatchSize != 500 || !cfg.Workbook || cfg.References.Source != ReferencesDB {
		t.Errorf("defaults lost: %+v", cfg)
	}
}

func TestDuplicatePolicyHasNoDefault(t *testing.T) {
	_, err := Load(writeYAML(t, "org_policy: skip\n"))
	if err == nil || !strings.Contains(err.Error(), "duplicate_policy must be set") {
		t.Fatalf("err = %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RunConfig)
		want   string
	}{
		{"ok", func(*RunConfig) {}, ""},
		{"unknown policy", func(c *RunConfig) { c.DuplicatePolicy = "fuzzy" }, "unknown duplicate policy"},
		{"batch too big", func(c *RunConfig) { c.BatchSize = 5000 }, "batch_size 5000"},
		{"batch zero", func(c *RunConfig) { c.BatchSize = 0 }, "batch_size 0"},
		{"in batch", func(c *RunConfig) { c.InBatch = "drop" }, "in-batch mode"},
		{"org", func(c *RunConfig) { c.OrgPolicy = "keep" }, "org policy"},
		{"files without paths", func(c *RunConfig) { c.References.Source = ReferencesFiles }, "no reference file"},
		{"inbox without dir", func(c *RunConfig) { c.Inbox.Enabled = true; c.Inbox.Dir = "" }, "inbox.dir"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			c.DuplicatePolicy = "basic"
			tt.mutate(c)
			err := c.Validate()
			if tt.want == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	env := map[string]string{
		"RECON_DUPLICATE_POLICY": "fullhash",
		"RECON_BATCH_SIZE":       "250",
		"RECON_OUTPUT_DIR":       " /tmp/out ",
	}
	c := Default()
	if err := c.applyEnv(func(k string) (string, bool) { v, ok := env[k]; return v, ok }); err != nil {
		t.Fatal(err)
	}
	if c.DuplicatePolicy != "fullhash" || c.BatchSize != 250 || c.OutputDir != "/tmp/out" {
		t.Errorf("cfg = %+v", c)
	}

	env["RECON_BATCH_SIZE"] = "lots"
	if err := c.applyEnv(func(k string) (string, bool) { v, ok := env[k]; return v, ok }); err == nil {
		t.Error("non-numeric batch size accepted")
	}
}

func TestDSN(t *testing.T) {
	c := DBConfig{User: "u", Password: "p", Host: "h", Port: "1", Name: "d", SSLMode: "disable"}
	if got := c.DSN(); got != "user=u password=p host=h port=1 dbname=d sslmode=disable" {
		t.Errorf("DSN = %q", got)
	}
	if !c.Configured() || (DBConfig{}).Configured() {
		t.Error("Configured")
	}
}
