package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"io"
	"manuscript-ingest/config"
	"manuscript-ingest/constant"
	"manuscript-ingest/dto"
	"manuscript-ingest/entities"
	"manuscript-ingest/pkg/blobstore"
	"manuscript-ingest/pkg/transcription"
	"manuscript-ingest/repository"
	"strings"
	"time"
)

const (
	failureWriteTimeout = 10 * time.Second
	staleMessage        = "transcription interrupted"
)

type IngestionService interface {
	SubmitUpload(ctx context.Context, req dto.UploadRequest) (*entities.PodcastImport, error)
	Transcribe(ctx context.Context, id uuid.UUID) (*entities.PodcastImport, error)
	DeleteImport(ctx context.Context, id uuid.UUID) (*dto.DeleteResult, error)
	GetImport(ctx context.Context, id uuid.UUID) (*entities.PodcastImport, error)
	ListImports(ctx context.Context, bookId uuid.UUID) ([]*entities.PodcastImport, error)
	RecoverStale(ctx context.Context, olderThan time.Duration) (int64, error)
}

type ingestService struct {
	repo    repository.Repository
	store   blobstore.Store
	gateway transcription.Gateway
	metrics *Metrics
	clock   *keyClock
	now     func() time.Time

	maxUploadBytes int64
	timeout        time.Duration
}

func NewIngestionService(repo repository.Repository, store blobstore.Store, gateway transcription.Gateway, metrics *Metrics, cfg *config.Config) IngestionService {
	return &ingestService{
		repo:           repo,
		store:          store,
		gateway:        gateway,
		metrics:        metrics,
		clock:          &keyClock{now: time.Now},
		now:            time.Now,
		maxUploadBytes: cfg.Upload.MaxSizeBytes,
		timeout:        cfg.Transcription.Timeout,
	}
}

func (s *ingestService) SubmitUpload(ctx context.Context, req dto.UploadRequest) (*entities.PodcastImport, error) {
	logger := zerolog.Ctx(ctx).With().
		Str("book_id", req.BookId.String()).
		Str("filename", req.File.Filename).
		Int64("file_size", req.File.Size).
		Logger()

	if err := validateAudio(&req.File, s.maxUploadBytes); err != nil {
		logger.Info().Err(err).Msg("upload rejected")
		s.metrics.upload("rejected", req.File.Size)
		return nil, err
	}

	if _, err := s.repo.FindBookById(ctx, req.BookId); err != nil {
		logger.Error().Err(err).Msg("failed to find book")
		return nil, repoError(err)
	}

	key := storageKey(req.BookId, s.clock.next(), req.File.Filename)
	logger.Info().Str("storage_key", key).Msg("uploading audio")
	storedKey, err := s.store.Put(ctx, key, io.LimitReader(req.File.Body, req.File.Size), req.File.Size, req.File.ContentType)
	if err != nil {
		logger.Error().Err(err).Str("storage_key", key).Msg("failed to upload audio")
		s.metrics.upload("failed", req.File.Size)
		return nil, errors.Join(ErrStorage, fmt.Errorf("upload failed: %w", err))
	}

	podcast := &entities.PodcastImport{
		ID:          uuid.New(),
		BookId:      req.BookId,
		ChapterId:   req.ChapterId,
		ParagraphId: req.ParagraphId,
		Filename:    req.File.Filename,
		StorageKey:  &storedKey,
		FileSize:    req.File.Size,
		State:       constant.ImportStateUploaded,
	}
	if err := s.repo.CreateImport(ctx, podcast); err != nil {
		// No compensation: the blob stays behind and is reported here.
		logger.Error().Err(err).Str("storage_key", storedKey).Msg("failed to create podcast import, audio left orphaned")
		s.metrics.upload("failed", req.File.Size)
		return nil, err
	}

	s.metrics.upload("accepted", req.File.Size)
	s.metrics.transition(constant.ImportStateUploaded)
	logger.Info().Str("podcast_import_id", podcast.ID.String()).Str("storage_key", storedKey).Msg("podcast uploaded")
	return podcast, nil
}

func (s *ingestService) Transcribe(ctx context.Context, id uuid.UUID) (*entities.PodcastImport, error) {
	logger := zerolog.Ctx(ctx).With().Str("podcast_import_id", id.String()).Logger()

	if err := s.gateway.CheckCredentials(); err != nil {
		logger.Error().Err(err).Msg("transcription not configured")
		return nil, errors.Join(ErrConfiguration, err)
	}

	podcast, err := s.repo.TransitionState(ctx, id, constant.TranscribableStates, constant.ImportStateTranscribing, map[string]interface{}{
		"error_message": nil,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("podcast import cannot be transcribed")
		return podcast, repoError(err)
	}
	s.metrics.transition(constant.ImportStateTranscribing)
	logger.Info().Msg("transcription started")

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	text, runErr := s.run(callCtx, podcast)

	// Terminal writes must land even when the caller has gone away.
	writeCtx, cancelWrite := context.WithTimeout(context.WithoutCancel(ctx), failureWriteTimeout)
	defer cancelWrite()

	if runErr != nil {
		message := s.failureMessage(callCtx, ctx, runErr)
		logger.Error().Err(runErr).Str("error_message", message).Msg("transcription failed")
		s.metrics.transcription("failed")

		failed, err := s.repo.TransitionState(writeCtx, id, []constant.ImportState{constant.ImportStateTranscribing}, constant.ImportStateError, map[string]interface{}{
			"error_message": message,
		})
		if err != nil {
			logger.Error().Err(err).Msg("failed to record transcription error")
			return podcast, errors.Join(runErr, err)
		}
		s.metrics.transition(constant.ImportStateError)
		return failed, runErr
	}

	done, err := s.repo.TransitionState(writeCtx, id, []constant.ImportState{constant.ImportStateTranscribing}, constant.ImportStateTranscribed, map[string]interface{}{
		"raw_transcription": text,
		"error_message":     nil,
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to store transcription")
		s.metrics.transcription("failed")
		// Leave the record retryable rather than stuck in transcribing.
		failed, failErr := s.repo.TransitionState(writeCtx, id, []constant.ImportState{constant.ImportStateTranscribing}, constant.ImportStateError, map[string]interface{}{
			"error_message": fmt.Sprintf("failed to store transcription: %v", err),
		})
		if failErr != nil {
			logger.Error().Err(failErr).Msg("failed to record transcription error")
			return podcast, repoError(errors.Join(err, failErr))
		}
		s.metrics.transition(constant.ImportStateError)
		return failed, repoError(err)
	}

	s.metrics.transcription("transcribed")
	s.metrics.transition(constant.ImportStateTranscribed)
	logger.Info().Int("transcription_length", len(text)).Msg("transcription completed")
	return done, nil
}

func (s *ingestService) run(ctx context.Context, podcast *entities.PodcastImport) (string, error) {
	if podcast.StorageKey == nil || *podcast.StorageKey == "" {
		return "", errors.Join(ErrStorage, errors.New("podcast import has no stored audio"))
	}

	rc, err := s.store.Get(ctx, *podcast.StorageKey)
	if err != nil {
		return "", errors.Join(ErrStorage, fmt.Errorf("failed to download audio: %w", err))
	}
	audio, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return "", errors.Join(ErrStorage, fmt.Errorf("failed to download audio: %w", err))
	}

	started := s.now()
	text, err := s.gateway.Transcribe(ctx, podcast.Filename, bytes.NewReader(audio))
	s.metrics.gatewayCall(s.now().Sub(started).Seconds())
	if err != nil {
		return "", errors.Join(ErrGateway, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.Join(ErrGateway, errors.New("transcription gateway returned empty text"))
	}
	return text, nil
}

func (s *ingestService) failureMessage(callCtx, parent context.Context, err error) string {
	switch {
	case parent.Err() != nil:
		return "transcription cancelled"
	case errors.Is(callCtx.Err(), context.DeadlineExceeded):
		return fmt.Sprintf("transcription timed out after %s", s.timeout)
	}
	return Message(err)
}

func (s *ingestService) DeleteImport(ctx context.Context, id uuid.UUID) (*dto.DeleteResult, error) {
	logger := zerolog.Ctx(ctx).With().Str("podcast_import_id", id.String()).Logger()

	podcast, err := s.repo.FindImportById(ctx, id)
	if err != nil {
		return nil, repoError(err)
	}

	result := &dto.DeleteResult{}
	if podcast.StorageKey != nil && *podcast.StorageKey != "" {
		if err := s.store.Delete(ctx, *podcast.StorageKey); err != nil {
			logger.Warn().Err(err).Str("storage_key", *podcast.StorageKey).Msg("failed to remove audio, deleting record anyway")
			result.Warning = fmt.Sprintf("audio file could not be removed: %v", err)
		} else {
			result.BlobRemoved = true
		}
	}

	if err := s.repo.DeleteImport(ctx, id); err != nil {
		logger.Error().Err(err).Msg("failed to delete podcast import")
		return nil, repoError(err)
	}
	result.Deleted = true

	logger.Info().Bool("blob_removed", result.BlobRemoved).Msg("podcast import deleted")
	return result, nil
}

func (s *ingestService) GetImport(ctx context.Context, id uuid.UUID) (*entities.PodcastImport, error) {
	podcast, err := s.repo.FindImportById(ctx, id)
	if err != nil {
		return nil, repoError(err)
	}
	return podcast, nil
}

func (s *ingestService) ListImports(ctx context.Context, bookId uuid.UUID) ([]*entities.PodcastImport, error) {
	podcasts, err := s.repo.ListImportsByBook(ctx, bookId)
	if err != nil {
		return nil, repoError(err)
	}
	return podcasts, nil
}

// RecoverStale fails records left in transcribing by a process that died
// mid-call, so they can be retried.
func (s *ingestService) RecoverStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	n, err := s.repo.FailStaleTranscriptions(ctx, s.now().Add(-olderThan), staleMessage)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		zerolog.Ctx(ctx).Warn().Int64("count", n).Dur("older_than", olderThan).Msg("recovered stale transcriptions")
	}
	return n, nil
}
