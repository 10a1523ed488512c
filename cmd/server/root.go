package main

import (
	"github.com/spf13/cobra"

	"github.com/hongminglow/aria-characters/internal/config"
)

const serviceName = "aria-characters"

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command. Without a subcommand it serves.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   serviceName,
		Short: "Aria character sheet API",
		Long: `Aria character sheet API: accounts with cookie or bearer sessions
and per-owner storage of character sheets.`,
		SilenceUsage: true,
		RunE:         runServe,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (YAML)")
	config.RegisterFlags(cmd.Flags())

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewSchemaCmd())

	return cmd
}
