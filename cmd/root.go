package cmd

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mCat-0/mCat-ac/internal/app"
	"github.com/mCat-0/mCat-ac/internal/config"
	"github.com/mCat-0/mCat-ac/internal/logger"
	"github.com/mCat-0/mCat-ac/internal/metrics"
	"github.com/mCat-0/mCat-ac/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "mcat-ac",
	Short: "Genshin achievement gap checker",
	Long: "mcat-ac tracks completed achievements per user, imports exports from share codes and files, " +
		"and lists what is still missing against the downloaded achievement catalog.",
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to config file (default: ./config.yaml if present)")
	rootCmd.PersistentFlags().String("data-dir", "", "Data directory (overrides data_dir)")
	rootCmd.PersistentFlags().String("db", "", "Path to SQLite event log (overrides MCATAC_DB env var)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (overrides log.level)")

	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(messageCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(debugCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads the config file and env, then applies flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if dir, _ := cmd.Flags().GetString("data-dir"); dir != "" {
		cfg.DataDir = dir
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	return cfg, nil
}

// resolveDBPath returns the database path using --db flag (highest priority),
// then db.path from config, then MCATAC_DB env var, then the default XDG path.
func resolveDBPath(cmd *cobra.Command, cfg *config.Config) (string, error) {
	if p, _ := cmd.Flags().GetString("db"); p != "" {
		return p, store.EnsureDir(p)
	}
	if cfg.DB.Path != "" {
		return cfg.DB.Path, store.EnsureDir(cfg.DB.Path)
	}
	return store.DefaultDBPath()
}

// env is everything a command needs; close releases the event log.
type env struct {
	cfg   *config.Config
	log   *logrus.Logger
	app   *app.App
	store *store.Store
}

func (e *env) close() {
	if e.store != nil {
		_ = e.store.Close()
	}
}

// setup builds the app for a command. An event log that cannot be opened is
// reported and skipped.
func setup(cmd *cobra.Command, m *metrics.Metrics) (*env, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	e := &env{cfg: cfg, log: log}
	opts := app.Options{Logger: log, Metrics: m}

	dbPath, err := resolveDBPath(cmd, cfg)
	if err == nil {
		e.store, err = store.Open(dbPath)
	}
	if err != nil {
		log.WithError(err).Warn("event log unavailable, continuing without it")
	} else {
		opts.Events = e.store.EventRepo()
	}

	e.app = app.New(cfg, opts)
	return e, nil
}

// friendly replaces domain errors with the sentence a user can act on and
// logs the original at debug level.
func friendly(e *env, err error) error {
	if err == nil {
		return nil
	}
	e.log.WithError(err).Debug("command failed")
	return errors.New(app.UserMessage(err))
}
