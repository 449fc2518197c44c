package cli

import (
	"database/sql"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ycagraoglu/PulseMetric-sub001/internal/config"
	"github.com/ycagraoglu/PulseMetric-sub001/internal/devapi"
	"github.com/ycagraoglu/PulseMetric-sub001/internal/logging"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate [version]",
	Short: "Run devapi database migrations",
	Long: `Run migrations on the devapi database.

Without arguments, runs all pending migrations.
With a version number, migrates to that version (up or down as needed).

Examples:
  pulsemetric migrate      # Run all pending migrations
  pulsemetric migrate 0    # Roll back all migrations`,
	Args: cobra.MaximumNArgs(1),
	RunE: runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.LoadDev()
	if err != nil {
		return err
	}
	log, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}

	db, err := devapi.Connect(ctx, cfg.DevAPI.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if len(args) == 0 {
		if err := devapi.Migrate(ctx, db, log); err != nil {
			return err
		}
		return printVersion(cmd, db)
	}

	target, err := strconv.Atoi(args[0])
	if err != nil || target < 0 {
		return fmt.Errorf("invalid version number: %s", args[0])
	}
	if err := devapi.MigrateTo(ctx, db, target, log); err != nil {
		return err
	}
	if err := devapi.Rollback(ctx, db, target); err != nil {
		return err
	}
	return printVersion(cmd, db)
}

func printVersion(cmd *cobra.Command, db *sql.DB) error {
	version, _, err := devapi.CurrentVersion(cmd.Context(), db)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Schema version: %d\n", version)
	return nil
}
