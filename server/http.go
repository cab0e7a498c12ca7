package server

import (
	"context"
	"errors"
	"fmt"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"manuscript-ingest/config"
	"manuscript-ingest/constant"
	"manuscript-ingest/handler"
	"manuscript-ingest/pkg/blobstore"
	"manuscript-ingest/pkg/rabbitmq"
	"manuscript-ingest/pkg/transcription"
	"manuscript-ingest/repository"
	"manuscript-ingest/service"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func RunHttp(cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(SetupLogger(cfg), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Bool("isProduction", cfg.IsProduction()).Send()
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := cfg.OpenDB()
	if err != nil {
		return err
	}
	defer db.Close()

	repo, err := repository.NewRepo(db, cfg.App.Environment == constant.EnvironmentDevelop.String())
	if err != nil {
		return fmt.Errorf("open repository: %w", err)
	}

	store, err := blobstore.New(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}

	gateway := transcription.NewClient(cfg.Transcription, &http.Client{})
	if err := gateway.CheckCredentials(); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("transcription requests will fail until an API key is configured")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := service.NewMetrics(registry)

	ingestionService := service.NewIngestionService(repo, store, gateway, metrics, cfg)
	manuscriptService := service.NewManuscriptService(repo, metrics)

	if _, err := ingestionService.RecoverStale(ctx, cfg.Server.StaleAfter); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to recover stale transcriptions")
	}

	var publisher rabbitmq.Publisher
	var queueDone <-chan struct{}
	if cfg.Queue.Enabled {
		publisher, queueDone, err = startQueue(ctx, cfg, handler.ServiceDependencies{IngestionService: ingestionService})
		if err != nil {
			return err
		}
	}

	api := handler.NewHttpHandler(ingestionService, manuscriptService, publisher, cfg.Upload.MaxSizeBytes)
	r := newRouter(ctx, cfg, api, registry)

	srv := http.Server{
		Handler:           r,
		Addr:              fmt.Sprintf(":%s", cfg.Server.HttpPort),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Str("addr", srv.Addr).Msg("start http server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zerolog.Ctx(ctx).Error().Str("env", cfg.App.Environment).Msg(err.Error())
			cancel()
		}
	}()

	<-ctx.Done()
	zerolog.Ctx(ctx).Info().Msg("shutting down server")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownPeriod)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zerolog.Ctx(ctx).Error().Str("env", cfg.App.Environment).Msg(err.Error())
	}
	if queueDone != nil {
		select {
		case <-queueDone:
		case <-shutdownCtx.Done():
			zerolog.Ctx(ctx).Warn().Msg("transcription consumer did not stop before the shutdown period")
		}
	}

	zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Msg("server shutdown")
	return nil
}

// startQueue connects to RabbitMQ, starts the transcription consumer and
// returns the publisher the API uses for async requests. The channel closes
// once every consumer worker has returned.
func startQueue(ctx context.Context, cfg *config.Config, deps handler.ServiceDependencies) (rabbitmq.Publisher, <-chan struct{}, error) {
	conn, err := config.NewRabbitMQConn(ctx, cfg.Queue)
	if err != nil {
		return nil, nil, err
	}

	topology := rabbitmq.TranscriptionTopology(cfg.Queue)
	publisher, err := rabbitmq.NewPublisher(ctx, conn, cfg.Queue, topology)
	if err != nil {
		return nil, nil, err
	}

	done := make(chan struct{})
	transcribeConsumer := rabbitmq.NewConsumer(conn, cfg.Queue, topology, cfg.Server.Workers, handler.TranscribeHandler)
	go func() {
		defer close(done)
		err := transcribeConsumer.Consume(ctx, deps)
		if err != nil && !errors.Is(err, context.Canceled) {
			zerolog.Ctx(ctx).Error().Err(err).Msg("transcription consumer error")
		}
	}()
	return publisher, done, nil
}

func SetupLogger(cfg *config.Config) context.Context {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.App.Environment == constant.EnvironmentDevelop.String() {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	ctx := logger.WithContext(context.Background())

	return ctx
}
