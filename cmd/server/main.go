package main

import (
	"fmt"
	"os"

	"donationpay/internal/config"
	"donationpay/internal/infrastructure/database"
	"donationpay/pkg/idgen"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var (
	configPath string
	workerID   int64
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "donationpay",
		Short: "Donation payment and reconciliation service",
		// With no subcommand the binary serves HTTP, as it always has.
		RunE:          runServe,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config/config.yaml", "path to the yaml config file")
	rootCmd.PersistentFlags().Int64Var(&workerID, "worker-id", 1, "snowflake worker id, unique per instance")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(auditCmd())
	rootCmd.AddCommand(outboxCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// bootstrap loads the config and opens MySQL. Every subcommand needs both.
func bootstrap() (*config.Config, *gorm.DB, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	if err := idgen.Init(workerID); err != nil {
		return nil, nil, fmt.Errorf("init id generator: %w", err)
	}
	db, err := database.InitMySQL(&cfg.MySQL)
	if err != nil {
		return nil, nil, err
	}
	return cfg, db, nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, err := bootstrap()
			if err != nil {
				return err
			}
			if err := database.AutoMigrate(db); err != nil {
				return err
			}
			fmt.Println("schema is up to date")
			return nil
		},
	}
}
