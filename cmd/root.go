package cmd

import (
	"github.com/spf13/cobra"
	"manuscript-ingest/config"
)

func Root(config *config.Config) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "manuscript-ingest",
		Short:        "podcast ingestion and transcription for manuscripts",
		SilenceUsage: true,
	}
	rootCmd.AddCommand(server(config))
	rootCmd.AddCommand(migrate(config))
	rootCmd.AddCommand(recoverStale(config))
	return rootCmd
}
