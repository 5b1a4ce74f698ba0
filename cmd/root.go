package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/j2kenton/apptrack/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "apptrack",
	Short: "Job application tracker driven by your mailbox",
	Long:  "Reads application-related email, reconciles multi-source observations into canonical application records with provenance and a validated status timeline, and optionally mirrors them to Notion.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
