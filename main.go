package main

import (
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"manuscript-ingest/cmd"
	"manuscript-ingest/config"
	"os"
)

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	path, err := os.Getwd()
	if err != nil {
		log.Fatal().Err(err).Send()
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	root := cmd.Root(cfg)
	if err := root.Execute(); err != nil {
		log.Fatal().Err(err).Send()
	}
}
