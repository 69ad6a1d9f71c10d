// Command migrate applies the order sync schema migrations.
package main

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/beautyops/backend/internal/infrastructure/config"
	"github.com/beautyops/backend/internal/infrastructure/logger"
	"github.com/beautyops/backend/internal/infrastructure/migration"
)

const defaultMigrationsPath = "migrations"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type migrateCLI struct {
	path     string
	logLevel string
	log      *zap.Logger
}

func newRootCmd() *cobra.Command {
	m := &migrateCLI{log: zap.NewNop()}

	root := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the order sync database schema",
		Long: `Applies and inspects the SQL migrations under ./migrations.
Connection settings come from the BEAUTYOPS_DATABASE_* environment variables.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log, err := logger.New(&logger.Config{
				Level:      m.logLevel,
				Format:     "console",
				Output:     "stdout",
				TimeFormat: "2006-01-02 15:04:05",
			})
			if err != nil {
				return err
			}
			m.log = log
			m.path, err = resolveMigrationsPath(m.path)
			return err
		},
	}
	root.PersistentFlags().StringVar(&m.path, "path", "", "Path to migrations directory (default: ./migrations)")
	root.PersistentFlags().StringVar(&m.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	root.AddCommand(
		m.dbCommand("up", "Apply all pending migrations", cobra.NoArgs, func(mg *migration.Migrator, _ []string) error {
			return mg.Up()
		}),
		m.dbCommand("down", "Roll back all migrations", cobra.NoArgs, func(mg *migration.Migrator, _ []string) error {
			return mg.Down()
		}),
		m.dbCommand("step <n>", "Apply n migrations (positive=up, negative=down)", numericArg(isInt), func(mg *migration.Migrator, args []string) error {
			n, _ := strconv.Atoi(args[0])
			return mg.Steps(n)
		}),
		m.dbCommand("goto <version>", "Migrate to a specific version", numericArg(isVersion), func(mg *migration.Migrator, args []string) error {
			version, _ := strconv.ParseUint(args[0], 10, 32)
			return mg.GoTo(uint(version))
		}),
		m.dbCommand("version", "Show the current migration version", cobra.NoArgs, func(mg *migration.Migrator, _ []string) error {
			version, dirty, err := mg.Version()
			if err != nil {
				return err
			}
			pending := 0
			for _, mig := range mg.Migrations() {
				if mig.Version > version {
					pending++
				}
			}
			m.log.Info("Current migration version",
				zap.Uint("version", version),
				zap.Uint("latest", mg.Latest()),
				zap.Int("pending", pending),
				zap.Bool("dirty", dirty))
			return nil
		}),
		m.dbCommand("force <version>", "Force set the migration version (use with caution)", numericArg(isInt), func(mg *migration.Migrator, args []string) error {
			version, _ := strconv.Atoi(args[0])
			m.log.Warn("Forcing migration version", zap.Int("version", version))
			return mg.Force(version)
		}),
		m.newDropCmd(),
		m.newCreateCmd(),
		m.newListCmd(),
	)
	return root
}

// numericArg accepts exactly one argument that passes valid
func numericArg(valid func(string) bool) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(1)(cmd, args); err != nil {
			return err
		}
		if !valid(args[0]) {
			return fmt.Errorf("invalid number %q", args[0])
		}
		return nil
	}
}

func isInt(s string) bool {
	_, err := strconv.Atoi(s)
	return err == nil
}

func isVersion(s string) bool {
	_, err := strconv.ParseUint(s, 10, 32)
	return err == nil
}

// dbCommand builds a subcommand that needs a migrator
func (m *migrateCLI) dbCommand(use, short string, args cobra.PositionalArgs, run func(*migration.Migrator, []string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			return m.withMigrator(cmd.Name(), func(mg *migration.Migrator) error {
				return run(mg, args)
			})
		},
	}
}

func (m *migrateCLI) newDropCmd() *cobra.Command {
	var confirm bool
	cmd := &cobra.Command{
		Use:   "drop",
		Short: "Drop all database objects (DANGEROUS)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !confirm {
				return errors.New("drop cancelled, pass --confirm to drop every table")
			}
			return m.withMigrator(cmd.Name(), func(mg *migration.Migrator) error {
				return mg.Drop()
			})
		},
	}
	cmd.Flags().BoolVar(&confirm, "confirm", false, "Confirm dropping all database objects")
	return cmd
}

func (m *migrateCLI) newCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <name> [description]",
		Short: "Create a new migration file pair",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(_ *cobra.Command, args []string) error {
			description := ""
			if len(args) > 1 {
				description = args[1]
			}
			mf, err := migration.CreateMigration(m.path, args[0], description)
			if err != nil {
				return err
			}
			m.log.Info("Migration created successfully",
				zap.Uint("version", mf.Version),
				zap.String("up_file", filepath.Join(m.path, mf.UpFile)),
				zap.String("down_file", filepath.Join(m.path, mf.DownFile)),
			)
			return nil
		},
	}
}

func (m *migrateCLI) newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			migrations, err := migration.ListMigrations(m.path)
			if err != nil {
				return err
			}
			if len(migrations) == 0 {
				m.log.Info("No migrations found")
				return nil
			}
			for _, mig := range migrations {
				fmt.Fprintf(cmd.OutOrStdout(), "  - %s  %s\n", mig.BaseName(), mig.Description)
			}
			return nil
		},
	}
}

// withMigrator opens the configured database and runs fn against it
func (m *migrateCLI) withMigrator(command string, fn func(*migration.Migrator) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	mg, err := migration.New(db, m.path, m.log)
	if err != nil {
		return err
	}
	defer mg.Close()

	m.log.Info("Running migration command",
		zap.String("command", command),
		zap.String("migrations_path", m.path))
	return fn(mg)
}

// resolveMigrationsPath finds the migrations directory next to the working
// directory or the executable and returns it as an absolute path.
func resolveMigrationsPath(path string) (string, error) {
	if path == "" {
		path = defaultMigrationsPath
		if _, err := os.Stat(path); err != nil {
			if execPath, err := os.Executable(); err == nil {
				candidate := filepath.Join(filepath.Dir(execPath), "..", "..", defaultMigrationsPath)
				if _, err := os.Stat(candidate); err == nil {
					path = candidate
				}
			}
		}
	}
	return filepath.Abs(path)
}
