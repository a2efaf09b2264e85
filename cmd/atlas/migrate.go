package main

import (
	"github.com/spf13/cobra"

	"github.com/primestride/atlas-backend/internal/app"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema and exit",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	log, err := app.NewLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	svc, err := app.OpenDatabase(log, app.LoadConfig(log))
	if err != nil {
		log.Error("migration failed", "error", err)
		return err
	}
	defer svc.Close()
	log.Info("migration complete", "driver", svc.Driver())
	return nil
}
