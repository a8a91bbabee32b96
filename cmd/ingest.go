package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"InvoiceRecon/internal/config"
	"InvoiceRecon/internal/model"
)

var ingestFlags struct {
	source    string
	file      string
	dryRun    bool
	policy    string
	inBatch   string
	orgPolicy string
	invoices  string
	outputDir string
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run one BCI or AUS file through the pipeline",
	Long: `ingest runs a single file through filter, transform, deduplicate, validate
and persist. Malformed rows, duplicates and rows without a master invoice are
reported, not fatal. The run fails when the headers do not match the source
or the database cannot be reached.

With --invoices the master invoices come from an exported file and no
database is opened; that mode only supports --dry-run and needs
references.source: files in the run configuration.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f := ingestFlags
		source, err := model.ParseSourceSystem(f.source)
		if err != nil {
			return err
		}
		if f.invoices != "" && !f.dryRun {
			return errors.New("--invoices only works with --dry-run")
		}
		cfg, err := loadRunConfig(func(c *config.RunConfig) {
			if f.policy != "" {
				c.DuplicatePolicy = f.policy
			}
			if f.inBatch != "" {
				c.InBatch = f.inBatch
			}
			if f.orgPolicy != "" {
				c.OrgPolicy = f.orgPolicy
			}
			if f.outputDir != "" {
				c.OutputDir = f.outputDir
			}
		})
		if err != nil {
			return err
		}

		log := consoleLogger()
		env, err := openEnvironment(cmd.Context(), cfg, f.invoices, log)
		if err != nil {
			return err
		}
		defer env.Close()

		out, err := env.ingest.IngestFile(cmd.Context(), source, f.file, f.dryRun)
		printOutcome(out)
		if err != nil {
			return err
		}
		if out.Run.Failed > 0 {
			return fmt.Errorf("%d rows were in rolled-back batches, see %s", out.Run.Failed, out.Dir)
		}
		return nil
	},
}

func init() {
	fl := ingestCmd.Flags()
	fl.StringVarP(&ingestFlags.source, "source", "s", "", "source system: bci or aus")
	fl.StringVarP(&ingestFlags.file, "file", "f", "", "csv, xlsx or xls file to ingest")
	fl.BoolVar(&ingestFlags.dryRun, "dry-run", false, "run every stage but write nothing to invoice_details")
	fl.StringVar(&ingestFlags.policy, "policy", "", "duplicate policy: basic, extended or fullhash (overrides duplicate_policy)")
	fl.StringVar(&ingestFlags.inBatch, "in-batch", "", "in-file duplicates: flag_all or keep_first")
	fl.StringVar(&ingestFlags.orgPolicy, "org-policy", "", "-ORG invoices: skip or review")
	fl.StringVar(&ingestFlags.invoices, "invoices", "", "exported master invoices file for offline dry runs")
	fl.StringVar(&ingestFlags.outputDir, "output", "", "artifact directory (overrides output_dir)")
	_ = ingestCmd.MarkFlagRequired("source")
	_ = ingestCmd.MarkFlagRequired("file")
}
