package cmd

import (
	"github.com/spf13/cobra"
	"manuscript-ingest/config"
	server2 "manuscript-ingest/server"
)

func server(config *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "start http server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return server2.RunHttp(config)
		},
	}
}
