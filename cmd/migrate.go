package cmd

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"manuscript-ingest/config"
	"manuscript-ingest/repository"
	server2 "manuscript-ingest/server"
)

func migrate(config *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := server2.SetupLogger(config)
			db, err := config.OpenDB()
			if err != nil {
				return err
			}
			defer db.Close()

			repo, err := repository.NewRepo(db, true)
			if err != nil {
				return err
			}
			if err := repo.Migrate(ctx); err != nil {
				return err
			}
			zerolog.Ctx(ctx).Info().Msg("schema migrated")
			return nil
		},
	}
}
