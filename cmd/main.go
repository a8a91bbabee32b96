package main

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"InvoiceRecon/internal/config"
)

var (
	cfgFile string
	envFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "recon",
	Short: "Reconcile BCI and AUS invoice detail exports into invoice_details",
	Long: `recon loads BCI and AUS invoice detail files, enriches every row from the
building, EMID and job reference tables, drops -ORG invoices and duplicates,
checks each row against the master invoices and writes the rest to
invoice_details. Every run leaves a summary and audit files under output_dir.

Database settings come from DB_USER, DB_PASSWORD, DB_HOST, DB_PORT, DB_NAME
and DB_SSLMODE, optionally loaded from a .env file.

Example Usage:
  recon ingest --source bci --file BCI_2024_06.xlsx --dry-run
  recon ingest --source aus --file aus.csv --invoices invoices.xlsx --dry-run
  recon lookups
  recon serve --services services.yaml`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Load .env for local dev; real deployments set the variables
		_ = godotenv.Load(envFile)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", config.DefaultRunConfigPath, "run configuration file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "dotenv file with DB_* settings")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(ingestCmd, lookupsCmd, serveCmd)
}

// consoleLogger is the logger for one-shot commands.
func consoleLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).With().Timestamp().Logger()
}

// loadRunConfig reads --config, lets the command apply its flags and then
// validates. A missing default file is not an error; the defaults and
// RECON_* variables still apply.
func loadRunConfig(override func(*config.RunConfig)) (*config.RunConfig, error) {
	path := cfgFile
	if path == config.DefaultRunConfigPath {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			path = ""
		}
	}
	cfg, err := config.Read(path)
	if err != nil {
		return nil, err
	}
	if override != nil {
		override(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
