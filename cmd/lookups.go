package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"InvoiceRecon/internal/config"
	"InvoiceRecon/internal/ingest"
	"InvoiceRecon/internal/persist"
	"InvoiceRecon/internal/resource"
)

var lookupsCmd = &cobra.Command{
	Use:   "lookups",
	Short: "Build the reference indexes and list their conflicts",
	Long: `lookups builds the building, EMID and job indexes the way a run does and
prints the entry count of each plus every reference row rejected as a
conflicting duplicate key.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadRunConfig(func(c *config.RunConfig) {
			// no run is started, any policy passes validation
			if c.DuplicatePolicy == "" {
				c.DuplicatePolicy = "basic"
			}
		})
		if err != nil {
			return err
		}
		log := consoleLogger()

		var refs ingest.ReferenceStore
		if cfg.References.Source == config.ReferencesDB {
			rm, err := resource.Open(cmd.Context(), config.DBConfigFromEnv(), log)
			if err != nil {
				return err
			}
			defer rm.Close()
			refs = persist.NewStore(rm.Pool(), cfg.DetailTable)
		}
		src, err := ingest.LookupsFor(cfg, refs, log)
		if err != nil {
			return err
		}
		l, err := src.Load(cmd.Context())
		if err != nil {
			return err
		}

		for _, s := range l.Stats() {
			fmt.Println(s)
		}
		conflicts := l.Conflicts()
		if len(conflicts) == 0 {
			fmt.Println("no conflicting reference rows")
			return nil
		}
		fmt.Printf("\n%d conflicting reference rows (first row kept):\n", len(conflicts))
		for _, c := range conflicts {
			fmt.Println("  " + c.String())
		}
		return nil
	},
}
