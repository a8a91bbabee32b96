package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"InvoiceRecon/internal/appmanager"
	"InvoiceRecon/internal/config"
	"InvoiceRecon/internal/logger"
)

var serveFlags struct {
	services string
	invoices string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the upload gateway and the inbox scheduler",
	Long: `serve starts the services listed in services.yaml in start_order: the log
file, the upload gateway, the inbox scheduler and the database heartbeat.
It runs until SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadRunConfig(nil)
		if err != nil {
			return err
		}
		seq, err := appmanager.LoadServiceSequence(serveFlags.services)
		if err != nil {
			return fmt.Errorf("failed to load service sequence: %w", err)
		}

		// the log file is opened first so the run pipeline logs into it
		logSvc := logger.NewLoggerService(appmanager.ConfigFor(seq, "logger"))
		logger.SetGlobalLogger(logSvc)
		log := logSvc.Logger()

		env, err := openEnvironment(cmd.Context(), cfg, serveFlags.invoices, log)
		if err != nil {
			return err
		}
		defer env.Close()

		manager := appmanager.NewAppManager(appmanager.Deps{
			Logger:    logSvc,
			RunConfig: cfg,
			Ingest:    env.ingest,
			Resources: env.rm,
		})
		if err := manager.AutoRegisterServices(seq); err != nil {
			return err
		}
		if err := manager.StartAll(); err != nil {
			_ = manager.StopAll()
			return err
		}
		log.Info().Strs("services", manager.ServiceNames()).Msg("recon started")

		// Graceful shutdown handling
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
		<-sigs

		return manager.StopAll()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.services, "services", config.DefaultServicesPath, "service sequence file")
	serveCmd.Flags().StringVar(&serveFlags.invoices, "invoices", "", "serve offline from an exported invoices file (dry runs only)")
}
