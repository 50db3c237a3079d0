package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/katasec/dstream-rowwatch/internal/config"
	"github.com/katasec/dstream-rowwatch/internal/logging"
)

var (
	cfgFile  string
	logLevel string
	logJSON  bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "rowwatch",
	Short: "Detect new, updated and deleted rows by polling SQL queries",
	Long: `rowwatch polls SQL queries on a fixed interval and reports rows that were
inserted, changed or removed since the previous poll. Changes can be streamed to
stdout, NATS JetStream or Azure Service Bus, and turned into per-row notifications.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "rowwatch.hcl", "config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level, overrides the config file (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "log in JSON format")
}

// loadConfig reads the config file and installs the process logger it describes.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, err
	}

	level := cfg.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	logging.SetLogger(logging.New(logging.Options{
		Level: level,
		JSON:  logJSON || cfg.LogFormat == "json",
	}))
	return cfg, nil
}
