package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"spendwise/internal/cli"
	"spendwise/internal/config"
	"spendwise/internal/core"
	applog "spendwise/internal/log"
)

var (
	cfgFile string
	envFile string
	v       = viper.New()
	cfg     *config.Config
	logger  *applog.Logger

	rootCmd = &cobra.Command{
		Use:   "spendwisectl",
		Short: "Administer a spendwise database",
		Long: `spendwisectl runs maintenance tasks against the spendwise database:
migrations, demo data, bulk imports, budget alerts and reports.

Settings come from the same environment variables as the server. A YAML
config file and command line flags override them.`,
		SilenceUsage:      true,
		PersistentPreRunE: initConfig,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file with the server's settings as keys")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file to load (default: .env when present)")
	rootCmd.PersistentFlags().String("db", "", "SQLite database path (SQLITE_DB_PATH)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn or error (LOG_LEVEL)")

	_ = v.BindPFlag("SQLITE_DB_PATH", rootCmd.PersistentFlags().Lookup("db"))
	_ = v.BindPFlag("LOG_LEVEL", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(categorizeCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(alertsCmd())
	rootCmd.AddCommand(reportCmd())
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initConfig(_ *cobra.Command, _ []string) error {
	if envFile != "" {
		cli.LoadEnvFile(envFile)
	} else {
		cli.LoadEnvFile()
	}

	for _, key := range config.Keys() {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("bind %s: %w", key, err)
		}
	}
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
	}

	cfg = config.LoadFrom(v.GetString)
	// stdout carries command output.
	logger = cli.SetupLoggerTo(os.Stderr, cfg, applog.ComponentCLI)
	return nil
}

// openApp builds the full service graph. Callers must Close it.
func openApp(ctx context.Context) (*cli.App, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.SQLiteDBPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	return cli.Build(ctx, cfg, logger)
}

// lookupUser resolves the --email flag to a stored user.
func lookupUser(ctx context.Context, app *cli.App, email string) (core.User, error) {
	if email == "" {
		return core.User{}, fmt.Errorf("--email is required")
	}
	u, err := app.Repo.GetUserByEmail(ctx, email)
	if err != nil {
		return core.User{}, fmt.Errorf("find user %s: %w", email, err)
	}
	return u, nil
}
