package main

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command. Without a subcommand it serves HTTP.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "secureapi",
		Short:        "Authenticated HTTP API with role based access control",
		SilenceUsage: true,
		RunE:         runServe,
	}

	flags := cmd.PersistentFlags()
	flags.String("config", "", "config file path")
	flags.String("db-driver", "", "database driver (sqlite or postgres)")
	flags.String("db-path", "", "sqlite database path")
	flags.String("log-level", "", "log level")
	flags.String("log-format", "", "log format (text or json)")
	cmd.Flags().String("addr", "", "listen address")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewUserCmd())

	return cmd
}
