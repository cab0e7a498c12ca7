package handler

import (
	"context"
	"encoding/json"
	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"manuscript-ingest/dto"
	"manuscript-ingest/service"
)

type ServiceDependencies struct {
	IngestionService service.IngestionService
}

// TranscribeHandler runs a queued transcription. Only internal failures are
// retried; everything else is already reflected in the record's state.
func TranscribeHandler(ctx context.Context, msg amqp.Delivery, deps ServiceDependencies) error {
	var job dto.TranscribeMessage
	if err := json.Unmarshal(msg.Body, &job); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to unmarshal transcribe message")
		return backoff.Permanent(err)
	}
	if job.PodcastImportId == uuid.Nil {
		zerolog.Ctx(ctx).Error().Msg("transcribe message without podcast import id")
		return backoff.Permanent(service.ErrValidation)
	}

	zerolog.Ctx(ctx).Info().
		Str("podcast_import_id", job.PodcastImportId.String()).
		Msg("received transcribe message")

	_, err := deps.IngestionService.Transcribe(ctx, job.PodcastImportId)
	if err == nil {
		return nil
	}
	if service.Category(err) == service.CategoryInternal {
		return err
	}
	return backoff.Permanent(err)
}
