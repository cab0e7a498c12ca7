package cmd

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"manuscript-ingest/config"
	"manuscript-ingest/repository"
	server2 "manuscript-ingest/server"
	"manuscript-ingest/service"
)

func recoverStale(config *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recover",
		Short: "fail transcriptions left running by a crashed process",
	}
	olderThan := cmd.Flags().Duration("older-than", config.Server.StaleAfter, "only recover records idle for longer than this")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		ctx := server2.SetupLogger(config)
		db, err := config.OpenDB()
		if err != nil {
			return err
		}
		defer db.Close()

		repo, err := repository.NewRepo(db, false)
		if err != nil {
			return err
		}

		// Recovery only touches the record store.
		svc := service.NewIngestionService(repo, nil, nil, service.NewMetrics(prometheus.NewRegistry()), config)
		n, err := svc.RecoverStale(ctx, *olderThan)
		if err != nil {
			return err
		}
		zerolog.Ctx(ctx).Info().Int64("recovered", n).Msg("stale transcriptions recovered")
		return nil
	}
	return cmd
}
