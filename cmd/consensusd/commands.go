package main

import (
	"fmt"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"consensus-engine/config"
	"consensus-engine/logging"
)

var (
	configPath string
	presetName string
	lawName    string
	logLevel   string
	devLog     bool

	rootCmd = &cobra.Command{
		Use:   "consensusd",
		Short: "Per-tick longitudinal controller for simulated vehicle fleets",
		Long: `consensusd computes one acceleration per vehicle and tick for an external
traffic simulator, using IDM, the self-regulating baseline or one of the
consensus laws. Snapshots arrive over UDP; commands go back to the sender.`,
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "experiment file (YAML or JSON)")
	rootCmd.PersistentFlags().StringVar(&presetName, "preset", "", fmt.Sprintf("start from a preset %v", config.Presets()))
	rootCmd.PersistentFlags().StringVar(&lawName, "law", "", "override controller.law")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level (info, verbose, debug, trace)")
	rootCmd.PersistentFlags().BoolVar(&devLog, "dev", false, "human readable logs")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(configCmd)
}

// loadConfig resolves preset, file, environment and flags, in that order.
func loadConfig() (config.Config, error) {
	base := config.Default()
	if presetName != "" {
		p, err := config.Preset(presetName)
		if err != nil {
			return config.Config{}, err
		}
		base = p
	}
	cfg, err := config.LoadFrom(base, configPath)
	if err != nil {
		return cfg, err
	}
	if lawName != "" {
		cfg.Controller.Law = lawName
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if devLog {
		cfg.Log.Dev = true
	}
	return cfg, cfg.Validate()
}

func newLogger(cfg config.Config) (logr.Logger, error) {
	return logging.New(cfg.LogLevel(), cfg.Log.Dev)
}
