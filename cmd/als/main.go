package main

import (
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"github.com/coffersTech/als/internal/config"
	"github.com/coffersTech/als/internal/engine"
	"github.com/coffersTech/als/internal/logging"
	"github.com/coffersTech/als/internal/session"
	"github.com/coffersTech/als/internal/storage"
)

var (
	// Global flags
	configPath string
	logDir     string
	project    string
	dev        bool

	cfg    *config.Config
	logger logr.Logger
	store  *storage.Store
	qe     *engine.QueryEngine
)

var rootCmd = &cobra.Command{
	Use:   "als",
	Short: "ALS - per-instance log files, viewer queries and live inspection",
	Long: `als writes and reads ALS instance log files.

Every process appends records to "<Project>_<Role> (<Index>).log" under the log
directory. The viewer commands list instances, sessions and contexts, and run
filtered or grouped queries over one instance file.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if logDir != "" {
			cfg.LogDir = logDir
		}
		if project != "" {
			cfg.ProjectName = project
		}

		logger, err = logging.NewLogger(dev)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		session.Configure(cfg.SessionIDFormat)
		store, err = storage.Open(storage.Options{
			Dir:                       cfg.LogDir,
			Project:                   cfg.ProjectName,
			Logger:                    logger,
			CreateSessionOnlyIfLogged: cfg.CreateSessionOnlyIfLogged,
			CompressArchives:          cfg.CompressArchives,
		})
		if err != nil {
			return err
		}

		qe = engine.NewQueryEngine(store, logger)
		qe.MaxParseMiB = cfg.MaxParseSizeMiB
		qe.MaxListEntries = cfg.MaxListEntries
		qe.IncludeArchived = cfg.IncludeArchived
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "als.yaml", "Path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "", "Log directory (overrides config)")
	rootCmd.PersistentFlags().StringVar(&project, "project", "", "Project name used in instance names (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&dev, "dev", false, "Human-readable debug diagnostics")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(followCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(contextsCmd)
	rootCmd.AddCommand(instancesCmd)
	rootCmd.AddCommand(rotateCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(hashPasswordCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, engine.UserMessage(err))
		os.Exit(1)
	}
}
