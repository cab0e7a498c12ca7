package service

import (
	"context"
	"errors"
	"fmt"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"manuscript-ingest/constant"
	"manuscript-ingest/entities"
	"manuscript-ingest/repository"
	"slices"
	"strings"
)

var applicableStates = []constant.ImportState{constant.ImportStateTranscribed, constant.ImportStateProcessed}

type ManuscriptService interface {
	ApplyTranscription(ctx context.Context, podcastImportId uuid.UUID, paragraphId uuid.UUID) (*entities.Paragraph, error)
}

type manuscriptService struct {
	repo    repository.Repository
	metrics *Metrics
}

func NewManuscriptService(repo repository.Repository, metrics *Metrics) ManuscriptService {
	return &manuscriptService{
		repo:    repo,
		metrics: metrics,
	}
}

// ApplyTranscription appends the import's text to a paragraph of the same book
// and marks the import as used.
func (s *manuscriptService) ApplyTranscription(ctx context.Context, podcastImportId uuid.UUID, paragraphId uuid.UUID) (*entities.Paragraph, error) {
	logger := zerolog.Ctx(ctx).With().
		Str("podcast_import_id", podcastImportId.String()).
		Str("paragraph_id", paragraphId.String()).
		Logger()

	var paragraph *entities.Paragraph
	err := s.repo.Transaction(ctx, func(ctx context.Context) error {
		podcast, err := s.repo.FindImportById(ctx, podcastImportId)
		if err != nil {
			return repoError(err)
		}
		if !slices.Contains(applicableStates, podcast.State) {
			return errors.Join(ErrInvalidState, fmt.Errorf("podcast import is %s, no transcription to apply", podcast.State))
		}
		text := strings.TrimSpace(podcast.Transcription())
		if text == "" {
			return errors.Join(ErrInvalidState, errors.New("podcast import has an empty transcription"))
		}

		paragraph, err = s.repo.FindParagraphById(ctx, paragraphId)
		if err != nil {
			return repoError(err)
		}
		chapter, err := s.repo.FindChapterById(ctx, paragraph.ChapterId)
		if err != nil {
			return repoError(err)
		}
		if chapter.BookId != podcast.BookId {
			return errors.Join(ErrValidation, errors.New("paragraph belongs to a different book"))
		}

		paragraph.Content = appendText(paragraph.Content, text)
		paragraph.WordCount = CountWords(paragraph.Content)
		if err := s.repo.UpdateParagraphContent(ctx, paragraph.ID, paragraph.Content, paragraph.WordCount); err != nil {
			return repoError(err)
		}
		if err := s.repo.RefreshWordCounts(ctx, chapter.ID, chapter.BookId); err != nil {
			return err
		}

		_, err = s.repo.TransitionState(ctx, podcast.ID, applicableStates, constant.ImportStateUsed, map[string]interface{}{
			"chapter_id":   chapter.ID,
			"paragraph_id": paragraph.ID,
		})
		return repoError(err)
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to apply transcription")
		return nil, err
	}

	s.metrics.transition(constant.ImportStateUsed)
	logger.Info().Int("word_count", paragraph.WordCount).Msg("transcription applied to paragraph")
	return paragraph, nil
}

// CountWords counts whitespace separated words.
func CountWords(text string) int {
	return len(strings.Fields(text))
}

func appendText(content, text string) string {
	content = strings.TrimRight(content, " \t\r\n")
	if content == "" {
		return text
	}
	return content + "\n\n" + text
}
