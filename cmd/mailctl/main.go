package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nhle/mailcore/internal/app"
	"github.com/nhle/mailcore/internal/logger"
	"github.com/nhle/mailcore/internal/model"
)

var (
	flagConfig  string
	flagAccount string
	flagOffline bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "mailctl",
		Short:         "Local-first mailbox cache with threading, search, and safe sending",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", model.DefaultConfigPath(), "config file path")
	rootCmd.PersistentFlags().StringVarP(&flagAccount, "account", "a", "", "account name (defaults to the configured default account)")
	rootCmd.PersistentFlags().BoolVar(&flagOffline, "offline", false, "serve cached data only, never contact the server")

	rootCmd.AddCommand(
		newInboxCmd(),
		newShowCmd(),
		newMessageCmd(),
		newReadCmd(),
		newUnreadCmd(),
		newFlagCmd(),
		newUnflagCmd(),
		newMoveCmd(),
		newSearchCmd(),
		newComposeCmd(),
		newReplyCmd(),
		newDraftsCmd(),
		newSendCmd(),
		newSendLogCmd(),
		newStatsCmd(),
		newQueryCmd(),
		newAuthCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// openApp loads configuration and wires the application facade.
func openApp() (*app.App, error) {
	cfg, err := model.LoadConfig(flagConfig)
	if err != nil {
		return nil, err
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}

	return app.New(cfg, log, app.WithOffline(flagOffline))
}
