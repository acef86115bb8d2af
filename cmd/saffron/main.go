package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/saffron/internal/cli"
	"github.com/Veraticus/saffron/internal/common"
	"github.com/Veraticus/saffron/internal/config"
	"github.com/Veraticus/saffron/internal/storage"
)

var version = "dev"

// app carries the per-invocation configuration shared by all commands.
type app struct {
	v        *viper.Viper
	settings *config.Settings
	out      io.Writer
	errOut   io.Writer
	cfgFile  string
	envFile  string
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	a := &app{v: viper.New(), out: out, errOut: errOut}

	rootCmd := &cobra.Command{
		Use:   "saffron",
		Short: "Hybrid transaction categorization",
		Long: `saffron categorizes bank transactions with learned merchant rules, falling
back to a language model for merchants it has not seen and queuing anything
uncertain for review.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.initConfig,
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default: $HOME/.config/saffron/config.yaml)")
	flags.StringVar(&a.envFile, "env-file", ".env", "dotenv file with provider API keys")
	flags.String("db", "", "database path (overrides database.path)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "console", "log format (console, json)")

	_ = a.v.BindPFlag("database.path", flags.Lookup("db"))
	_ = a.v.BindPFlag("logging.level", flags.Lookup("log-level"))
	_ = a.v.BindPFlag("logging.format", flags.Lookup("log-format"))

	rootCmd.AddCommand(a.categorizeCmd())
	rootCmd.AddCommand(a.reviewCmd())
	rootCmd.AddCommand(a.categoriesCmd())
	rootCmd.AddCommand(a.patternsCmd())
	rootCmd.AddCommand(a.migrateCmd())
	rootCmd.AddCommand(versionCmd())

	return rootCmd
}

func main() {
	handler := cli.NewInterruptHandler(os.Stderr)
	ctx := handler.HandleInterrupts(context.Background())

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, cli.FormatError(err.Error()))
		os.Exit(1)
	}
}

func (a *app) initConfig(_ *cobra.Command, _ []string) error {
	if a.envFile != "" {
		if err := godotenv.Load(a.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", a.envFile, err)
		}
	}

	if err := config.Configure(a.v, a.cfgFile); err != nil {
		return err
	}

	settings, err := config.Load(a.v)
	if err != nil {
		return err
	}
	a.settings = settings

	if err := common.SetupLogger(a.errOut, settings.Logging.Level, settings.Logging.Format); err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	return nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "saffron %s\n", version)
		},
	}
}

// openStore opens the configured database and brings its schema up to date.
func (a *app) openStore(ctx context.Context) (*storage.SQLiteStorage, func(), error) {
	store, err := storage.NewSQLiteStorage(a.settings.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	cleanup := func() {
		if err := store.Close(); err != nil {
			slog.Error("failed to close database", "error", err)
		}
	}
	return store, cleanup, nil
}
