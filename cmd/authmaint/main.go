package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/timekeeper-hq/authcore/internal/config"
	"github.com/timekeeper-hq/authcore/internal/db"
	"github.com/timekeeper-hq/authcore/internal/repository"
	"github.com/timekeeper-hq/authcore/internal/service"
)

var reapTables = []string{"refresh_tokens", "active_sessions", "password_resets"}

type options struct {
	envFile string
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{Use: "authmaint", Short: "Maintenance tasks for the auth data stores"}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "optional .env file to load")
	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newReapCommand(opts))
	cmd.AddCommand(newUnlockCommand(opts))
	return cmd
}

func newMigrateCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			gdb, err := openDB(opts)
			if err != nil {
				return err
			}
			if err := db.Migrate(gdb); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			slog.Info("schema migrated")
			return nil
		},
	}
}

func newReapCommand(opts *options) *cobra.Command {
	var vacuum bool
	cmd := &cobra.Command{
		Use:   "reap",
		Short: "Delete expired tokens, sessions and reset rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			gdb, err := openDB(opts)
			if err != nil {
				return err
			}
			reaper := service.NewReaper(
				repository.NewRefreshTokenRepository(gdb),
				repository.NewSessionRepository(gdb),
				repository.NewPasswordResetRepository(gdb),
			)
			report, err := reaper.Run(cmd.Context())
			slog.Info("reap finished",
				"refresh_tokens", report.RefreshTokens,
				"sessions", report.Sessions,
				"password_resets", report.Resets)
			if err != nil {
				return err
			}
			if vacuum {
				vacuumTables(cmd.Context(), gdb)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&vacuum, "vacuum", true, "run VACUUM (ANALYZE) on the swept tables")
	return cmd
}

func newUnlockCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "unlock <user-id>",
		Short: "Clear a user's login lockout ahead of its expiry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gdb, err := openDB(opts)
			if err != nil {
				return err
			}
			users := repository.NewUserRepository(gdb)
			cleared, err := users.UnlockAccount(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !cleared {
				return fmt.Errorf("user %s not found", args[0])
			}
			slog.Info("account unlocked", "user_id", args[0])
			return nil
		},
	}
}

// vacuumTables reclaims space after a sweep. Only Postgres understands the
// statement; other dialects skip it.
func vacuumTables(ctx context.Context, gdb *gorm.DB) {
	if gdb.Dialector.Name() != "postgres" {
		return
	}
	for _, table := range reapTables {
		if err := gdb.WithContext(ctx).Exec("VACUUM (ANALYZE) " + table).Error; err != nil {
			slog.Warn("vacuum failed", "table", table, "error", err)
		}
	}
}

func openDB(opts *options) (*gorm.DB, error) {
	cfg, err := config.Load(opts.envFile)
	if err != nil {
		return nil, err
	}
	return db.Open(cfg.DatabaseDSN, cfg.ReadReplicaDSN)
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		slog.Error("authmaint failed", "error", err)
		os.Exit(1)
	}
}
