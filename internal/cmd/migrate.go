package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"fabric-fusion-backend/internal/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Long: `Apply the embedded SQL migrations to DATABASE_URL.

With --dry-run the pending migrations are listed and nothing is applied.`,
	Args: cobra.NoArgs,
	RunE: runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadRuntime(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	migrator, err := database.NewMigrator(cfg.DatabaseURL, log)
	if err != nil {
		return err
	}
	defer migrator.Close()

	ctx := commandContext(cmd)
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	if dryRun {
		pending, err := migrator.Pending(ctx)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(pending) == 0 {
			fmt.Fprintln(out, "no pending migrations")
			return nil
		}
		for _, name := range pending {
			fmt.Fprintln(out, name)
		}
		return nil
	}

	return migrator.Run(ctx)
}

func init() {
	migrateCmd.Flags().Bool("dry-run", false, "list pending migrations without applying them")
	rootCmd.AddCommand(migrateCmd)
}
