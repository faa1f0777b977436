package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/oriys/letletme/internal/config"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "letletme",
		Short: "LetLetMe fantasy football API",
		Long:  "Serve the LetLetMe statistics API and manage its response cache",
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (JSON or YAML)")

	rootCmd.AddCommand(
		serveCmd(),
		cacheCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads --config when given, then applies LETLETME_* overrides.
func loadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if configPath != "" {
		loaded, err := config.LoadFromFile(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	config.LoadFromEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
