package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/BDNK1/agentflow/cli/internal/config"
	"github.com/BDNK1/agentflow/runtime"
)

var (
	configPath string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:   "agentflow",
	Short: "agentflow - multi-tenant workflow execution engine",
	Long: `agentflow executes graph-structured flows that coordinate chat completion,
vector search and external tools on behalf of a tenant.

Flows are read from YAML or JSON files; capabilities are configured in
agentflow.yaml.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "agentflow.yaml", "Path to the engine configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: text or json (overrides config)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
}

// LogConfig is the log section of agentflow.yaml.
type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" default:"text" validate:"oneof=text json"`
}

// loadConfig reads the config file. A missing file at the default location
// yields an empty config so flows without capabilities still run.
func loadConfig(cmd *cobra.Command) (*config.File, error) {
	f, err := config.Load(configPath, os.LookupEnv)
	if err == nil {
		return f, nil
	}
	if errors.Is(err, os.ErrNotExist) && !cmd.Flags().Changed("config") {
		return &config.File{}, nil
	}
	return nil, err
}

func newLogger(raw map[string]any) (*slog.Logger, error) {
	var cfg LogConfig
	if logLevel != "" || logFormat != "" {
		if raw == nil {
			raw = map[string]any{}
		}
		if logLevel != "" {
			raw["level"] = strings.ToLower(logLevel)
		}
		if logFormat != "" {
			raw["format"] = strings.ToLower(logFormat)
		}
	}
	if err := runtime.InitializeConfig(&cfg, raw); err != nil {
		return nil, fmt.Errorf("log config: %w", err)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
}
