package main

import (
	"github.com/spf13/cobra"

	"github.com/speakdoc/speakdoc/internal/config"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the SpeakDoc CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "speakdoc",
		Short: "SpeakDoc - account and session service",
		Long: `SpeakDoc manages user accounts: signup with email verification,
login sessions and password reset over a JSON API.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: XDG_CONFIG_HOME/speakdoc/config.yaml)")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewConfigCmd())
	cmd.AddCommand(NewSessionsCmd())

	return cmd
}

// loadConfig reads the configuration for cmd, applying flags the user set.
func loadConfig(cmd *cobra.Command) (*config.Result, error) {
	return config.Load(config.Options{File: configFile, Flags: cmd.Flags()})
}

// loadValidConfig is loadConfig followed by validation.
func loadValidConfig(cmd *cobra.Command) (*config.Config, error) {
	res, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if err := res.Config.Validate(); err != nil {
		return nil, err
	}
	return res.Config, nil
}
