// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the cad2step CLI.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/cad2step/internal/secrets"
	"github.com/pdiddy/cad2step/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds credentials loaded from .secrets/ at startup.
var loadedSecrets secrets.Secrets

// logger is the console logger configured in PersistentPreRunE.
var logger = slog.Default()

// rootCmd is the base command for the cad2step CLI.
var rootCmd = &cobra.Command{
	Use:   "cad2step",
	Short: "Batch-export CAD parts, assemblies, and drawings to STEP",
	Long: `cad2step drives a CAD host through its scripting bridge to export native
part, assembly, and drawing files to STEP. Many files are converted in one
host session; a file that fails does not stop the rest.

Runs are recorded in a local history database and can optionally be
announced on NATS.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger = newLogger(cfg.Log)
		slog.SetDefault(logger)

		s, err := secrets.Load(".secrets/", logger)
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := s.Keys()
			sort.Strings(keys)
			logger.Debug("loaded secrets", "keys", keys)
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./cad2step.yaml or ~/.config/cad2step/cad2step.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, or error")
	rootCmd.PersistentFlags().Bool("no-color", false, "disable coloured log output")

	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	_ = godotenv.Load()

	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("cad2step")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "cad2step"))
		}
	}

	viper.SetEnvPrefix("CAD2STEP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	setDefaults()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	if noColor, _ := rootCmd.PersistentFlags().GetBool("no-color"); noColor {
		viper.Set("log.color", false)
	}
}

func setDefaults() {
	viper.SetDefault("host.bridge", "swbridge")
	viper.SetDefault("host.visible", false)
	viper.SetDefault("host.start_retries", 5)
	viper.SetDefault("conversion.output_dir", "")
	viper.SetDefault("conversion.item_timeout", 10*time.Minute)
	viper.SetDefault("history.enabled", true)
	viper.SetDefault("history.db", defaultHistoryDB())
	viper.SetDefault("notify.nats_url", "")
	viper.SetDefault("notify.subject", "cad2step.events")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.color", true)
}

func defaultHistoryDB() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".cad2step", "history.db")
	}
	return filepath.Join(home, ".local", "state", "cad2step", "history.db")
}

// loadConfig decodes the merged flag, env, file, and default settings.
func loadConfig() (types.Config, error) {
	var cfg types.Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decoding configuration: %w", err)
	}
	return cfg, nil
}

// newLogger builds the stderr console logger.
func newLogger(cfg types.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
		NoColor:    !cfg.Color,
	}))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
