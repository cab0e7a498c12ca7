package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"manuscript-ingest/constant"
	"manuscript-ingest/entities"
	"time"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrStateConflict = errors.New("state conflict")
)

type ImportRepository interface {
	Transaction(ctx context.Context, callback func(ctx context.Context) error, opts ...*sql.TxOptions) error
	CreateImport(ctx context.Context, podcast *entities.PodcastImport) error
	FindImportById(ctx context.Context, id uuid.UUID) (*entities.PodcastImport, error)
	ListImportsByBook(ctx context.Context, bookId uuid.UUID) ([]*entities.PodcastImport, error)
	// TransitionState moves the record to `to` only while its persisted state is
	// one of `from`, applying extra column updates in the same statement.
	TransitionState(ctx context.Context, id uuid.UUID, from []constant.ImportState, to constant.ImportState, updates map[string]interface{}) (*entities.PodcastImport, error)
	DeleteImport(ctx context.Context, id uuid.UUID) error
	FailStaleTranscriptions(ctx context.Context, before time.Time, message string) (int64, error)
}

type ManuscriptRepository interface {
	FindBookById(ctx context.Context, id uuid.UUID) (*entities.Book, error)
	FindChapterById(ctx context.Context, id uuid.UUID) (*entities.Chapter, error)
	FindParagraphById(ctx context.Context, id uuid.UUID) (*entities.Paragraph, error)
	UpdateParagraphContent(ctx context.Context, id uuid.UUID, content string, wordCount int) error
	RefreshWordCounts(ctx context.Context, chapterId uuid.UUID, bookId uuid.UUID) error
}

type Repository interface {
	ImportRepository
	ManuscriptRepository
	Migrate(ctx context.Context) error
}

type txKey struct{}

type repo struct {
	db  *gorm.DB
	now func() time.Time
}

func NewRepo(db *sql.DB, debug bool) (Repository, error) {
	level := logger.Warn
	if debug {
		level = logger.Info
	}
	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db}),
		&gorm.Config{
			Logger:                 logger.Default.LogMode(level),
			SkipDefaultTransaction: true,
		},
	)
	if err != nil {
		return nil, err
	}
	return &repo{
		db:  gormDB,
		now: time.Now,
	}, nil
}

// GetDB returns the transaction bound to ctx, if any.
func (r *repo) GetDB(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx
	}
	return r.db.WithContext(ctx)
}

func (r *repo) Transaction(ctx context.Context, callback func(ctx context.Context) error, opts ...*sql.TxOptions) error {
	return r.GetDB(ctx).Transaction(func(tx *gorm.DB) error {
		return callback(context.WithValue(ctx, txKey{}, tx))
	}, opts...)
}

func (r *repo) Migrate(ctx context.Context) error {
	return r.GetDB(ctx).AutoMigrate(
		&entities.Book{},
		&entities.Chapter{},
		&entities.Paragraph{},
		&entities.PodcastImport{},
	)
}

func (r *repo) CreateImport(ctx context.Context, podcast *entities.PodcastImport) error {
	if podcast.ID == uuid.Nil {
		podcast.ID = uuid.New()
	}
	now := r.now()
	podcast.CreatedAt = now
	podcast.UpdatedAt = now
	return r.GetDB(ctx).Create(podcast).Error
}

func (r *repo) FindImportById(ctx context.Context, id uuid.UUID) (*entities.PodcastImport, error) {
	podcast := &entities.PodcastImport{}
	if err := r.GetDB(ctx).First(podcast, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "podcast import", id)
	}
	return podcast, nil
}

func (r *repo) ListImportsByBook(ctx context.Context, bookId uuid.UUID) ([]*entities.PodcastImport, error) {
	var podcasts []*entities.PodcastImport
	err := r.GetDB(ctx).Where("book_id = ?", bookId).Order("created_at DESC").Find(&podcasts).Error
	if err != nil {
		return nil, err
	}
	return podcasts, nil
}

func (r *repo) TransitionState(ctx context.Context, id uuid.UUID, from []constant.ImportState, to constant.ImportState, updates map[string]interface{}) (*entities.PodcastImport, error) {
	values := map[string]interface{}{
		"state":      to,
		"updated_at": r.now(),
	}
	for k, v := range updates {
		values[k] = v
	}

	res := r.GetDB(ctx).Model(&entities.PodcastImport{}).
		Where("id = ? AND state IN ?", id, from).
		Updates(values)
	if res.Error != nil {
		return nil, res.Error
	}

	current, err := r.FindImportById(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.RowsAffected == 0 {
		return current, fmt.Errorf("%w: podcast import %s is %s, expected one of %v", ErrStateConflict, id, current.State, from)
	}
	return current, nil
}

func (r *repo) DeleteImport(ctx context.Context, id uuid.UUID) error {
	res := r.GetDB(ctx).Delete(&entities.PodcastImport{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: podcast import %s", ErrNotFound, id)
	}
	return nil
}

func (r *repo) FailStaleTranscriptions(ctx context.Context, before time.Time, message string) (int64, error) {
	res := r.GetDB(ctx).Model(&entities.PodcastImport{}).
		Where("state = ? AND updated_at < ?", constant.ImportStateTranscribing, before).
		Updates(map[string]interface{}{
			"state":         constant.ImportStateError,
			"error_message": message,
			"updated_at":    r.now(),
		})
	return res.RowsAffected, res.Error
}

func (r *repo) FindBookById(ctx context.Context, id uuid.UUID) (*entities.Book, error) {
	book := &entities.Book{}
	if err := r.GetDB(ctx).First(book, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "book", id)
	}
	return book, nil
}

func (r *repo) FindChapterById(ctx context.Context, id uuid.UUID) (*entities.Chapter, error) {
	chapter := &entities.Chapter{}
	if err := r.GetDB(ctx).First(chapter, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "chapter", id)
	}
	return chapter, nil
}

func (r *repo) FindParagraphById(ctx context.Context, id uuid.UUID) (*entities.Paragraph, error) {
	paragraph := &entities.Paragraph{}
	if err := r.GetDB(ctx).First(paragraph, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "paragraph", id)
	}
	return paragraph, nil
}

func (r *repo) UpdateParagraphContent(ctx context.Context, id uuid.UUID, content string, wordCount int) error {
	res := r.GetDB(ctx).Model(&entities.Paragraph{}).Where("id = ?", id).Updates(map[string]interface{}{
		"content":    content,
		"word_count": wordCount,
		"updated_at": r.now(),
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: paragraph %s", ErrNotFound, id)
	}
	return nil
}

func (r *repo) RefreshWordCounts(ctx context.Context, chapterId uuid.UUID, bookId uuid.UUID) error {
	now := r.now()
	err := r.GetDB(ctx).Exec(
		`UPDATE chapters SET word_count = (SELECT COALESCE(SUM(word_count), 0) FROM paragraphs WHERE chapter_id = ?), updated_at = ? WHERE id = ?`,
		chapterId, now, chapterId,
	).Error
	if err != nil {
		return err
	}
	return r.GetDB(ctx).Exec(
		`UPDATE books SET word_count = (SELECT COALESCE(SUM(word_count), 0) FROM chapters WHERE book_id = ?), updated_at = ? WHERE id = ?`,
		bookId, now, bookId,
	).Error
}

func notFound(err error, kind string, id uuid.UUID) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
	}
	return err
}
