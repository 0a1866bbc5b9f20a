// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SpeakDoc Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/speakdoc/speakdoc/internal/config"
)

// NewConfigCmd creates the config subcommand.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			out, err := res.YAML()
			if err != nil {
				return err
			}
			if res.File != "" {
				cmd.Printf("# loaded from %s\n", res.File)
			}
			cmd.Print(string(out))
			if err := res.Config.Validate(); err != nil {
				cmd.PrintErrln("warning:", err)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema of the config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := config.Schema()
			if err != nil {
				return err
			}
			cmd.Println(string(data))
			return nil
		},
	})

	return cmd
}
