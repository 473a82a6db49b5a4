// Package cmd contains the CLI commands for logmon.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/e-intern-tkondo-wq/auto-log-management/internal/logging"
	"github.com/e-intern-tkondo-wq/auto-log-management/internal/patterns"
	"github.com/e-intern-tkondo-wq/auto-log-management/internal/rules"
	"github.com/e-intern-tkondo-wq/auto-log-management/internal/storage"
)

var (
	// Used for flags
	configFile string
	dbPath     string
	logLevel   string
	verbose    bool
	output     string

	cfg    *Config
	logger = zap.NewNop()
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "logmon",
	Short: "logmon - template-based system log anomaly monitor",
	Long: `logmon ingests syslog/kernel log lines, learns a regex template for every
distinct message shape, extracts parameters through manual templates with
named captures and flags anomalies with per-template rules.

Examples:
  # Ingest a log file
  logmon ingest /var/log/syslog

  # Keep following a log file
  logmon ingest /var/log/kern.log --follow

  # Register a manual template with a named capture
  logmon templates add --regex 'pci\s+\S+:\s+(?P<available_bandwidth>\d+\.?\d*)\s+Gb/s' --label normal

  # Flag low PCIe bandwidth
  logmon rules add --template 12 --kind threshold --field available_bandwidth --op '<=' --value 50 --severity warning

  # Serve the alert viewer and deliver notifications
  logmon serve`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig(cmd)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync()
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (optional)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path (overrides config and "+envDatabase+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "output format (table, json)")
}

// initConfig loads the config file, applies environment and flag overrides
// and builds the logger.
func initConfig(cmd *cobra.Command) error {
	if configFile != "" {
		loaded, err := LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	} else {
		cfg = DefaultConfig()
	}

	cfg.applyEnv()
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	} else if verbose {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	l, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger = l
	return nil
}

// openStorage opens and migrates the configured database.
func openStorage() (*storage.SQLiteStorage, error) {
	st := storage.NewSQLiteStorage(cfg.Database.Path, cfg.BusyTimeout())
	if err := st.Open(); err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := st.Migrate(); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	logger.Debug("database ready", zap.String("path", cfg.Database.Path))
	return st, nil
}

// newPatternStore wires the pattern store with its rule engine.
func newPatternStore(st storage.Storage) (*patterns.Store, *rules.Engine) {
	engine := rules.NewEngine(logger.Named("rules"))
	return patterns.NewStore(st, engine, nil, logger.Named("patterns")), engine
}

// PrintError prints an error message to stderr.
func PrintError(msg string) {
	fmt.Fprintln(os.Stderr, "Error:", msg)
}

// PrintVerbose prints a message only if verbose mode is enabled.
func PrintVerbose(format string, args ...any) {
	if verbose {
		fmt.Printf(format+"\n", args...)
	}
}

func jsonOutput() bool {
	return output == "json"
}
