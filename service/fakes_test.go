package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"manuscript-ingest/constant"
	"manuscript-ingest/entities"
	"manuscript-ingest/pkg/blobstore"
	"manuscript-ingest/repository"
)

type fakeRepo struct {
	mu         sync.Mutex
	imports    map[uuid.UUID]*entities.PodcastImport
	books      map[uuid.UUID]*entities.Book
	chapters   map[uuid.UUID]*entities.Chapter
	paragraphs map[uuid.UUID]*entities.Paragraph
	createErr  error
	refreshes  int
	// failTo makes the next transition into the given state fail once.
	failTo map[constant.ImportState]error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		imports:    map[uuid.UUID]*entities.PodcastImport{},
		books:      map[uuid.UUID]*entities.Book{},
		chapters:   map[uuid.UUID]*entities.Chapter{},
		paragraphs: map[uuid.UUID]*entities.Paragraph{},
	}
}

func (f *fakeRepo) addBook() *entities.Book {
	f.mu.Lock()
	defer f.mu.Unlock()
	book := &entities.Book{ID: uuid.New(), Title: "Il libro", Status: constant.BookStatusDraft}
	f.books[book.ID] = book
	return book
}

func (f *fakeRepo) addImport(p *entities.PodcastImport) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *p
	f.imports[p.ID] = &cp
}

func (f *fakeRepo) get(id uuid.UUID) *entities.PodcastImport {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.imports[id]
	if !ok {
		return nil
	}
	cp := *p
	return &cp
}

func (f *fakeRepo) Transaction(ctx context.Context, callback func(ctx context.Context) error, _ ...*sql.TxOptions) error {
	return callback(ctx)
}

func (f *fakeRepo) Migrate(context.Context) error { return nil }

func (f *fakeRepo) CreateImport(_ context.Context, podcast *entities.PodcastImport) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	podcast.CreatedAt, podcast.UpdatedAt = now, now
	cp := *podcast
	f.imports[podcast.ID] = &cp
	return nil
}

func (f *fakeRepo) FindImportById(_ context.Context, id uuid.UUID) (*entities.PodcastImport, error) {
	if p := f.get(id); p != nil {
		return p, nil
	}
	return nil, fmt.Errorf("%w: podcast import %s", repository.ErrNotFound, id)
}

func (f *fakeRepo) ListImportsByBook(_ context.Context, bookId uuid.UUID) ([]*entities.PodcastImport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*entities.PodcastImport
	for _, p := range f.imports {
		if p.BookId == bookId {
			cp := *p
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, func(a, b *entities.PodcastImport) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

func (f *fakeRepo) TransitionState(_ context.Context, id uuid.UUID, from []constant.ImportState, to constant.ImportState, updates map[string]interface{}) (*entities.PodcastImport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failTo[to]; ok {
		delete(f.failTo, to)
		return nil, err
	}
	p, ok := f.imports[id]
	if !ok {
		return nil, fmt.Errorf("%w: podcast import %s", repository.ErrNotFound, id)
	}
	if !slices.Contains(from, p.State) {
		cp := *p
		return &cp, fmt.Errorf("%w: podcast import %s is %s", repository.ErrStateConflict, id, p.State)
	}
	p.State = to
	p.UpdatedAt = time.Now()
	for k, v := range updates {
		switch k {
		case "error_message":
			p.ErrorMessage = optionalString(v)
		case "raw_transcription":
			p.RawTranscription = optionalString(v)
		case "chapter_id":
			id := v.(uuid.UUID)
			p.ChapterId = &id
		case "paragraph_id":
			id := v.(uuid.UUID)
			p.ParagraphId = &id
		default:
			panic("unexpected column " + k)
		}
	}
	cp := *p
	return &cp, nil
}

func optionalString(v interface{}) *string {
	if v == nil {
		return nil
	}
	s := v.(string)
	return &s
}

func (f *fakeRepo) DeleteImport(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.imports[id]; !ok {
		return fmt.Errorf("%w: podcast import %s", repository.ErrNotFound, id)
	}
	delete(f.imports, id)
	return nil
}

func (f *fakeRepo) FailStaleTranscriptions(_ context.Context, before time.Time, message string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, p := range f.imports {
		if p.State == constant.ImportStateTranscribing && p.UpdatedAt.Before(before) {
			msg := message
			p.State = constant.ImportStateError
			p.ErrorMessage = &msg
			n++
		}
	}
	return n, nil
}

func (f *fakeRepo) FindBookById(_ context.Context, id uuid.UUID) (*entities.Book, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.books[id]; ok {
		cp := *b
		return &cp, nil
	}
	return nil, fmt.Errorf("%w: book %s", repository.ErrNotFound, id)
}

func (f *fakeRepo) FindChapterById(_ context.Context, id uuid.UUID) (*entities.Chapter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.chapters[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, fmt.Errorf("%w: chapter %s", repository.ErrNotFound, id)
}

func (f *fakeRepo) FindParagraphById(_ context.Context, id uuid.UUID) (*entities.Paragraph, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.paragraphs[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, fmt.Errorf("%w: paragraph %s", repository.ErrNotFound, id)
}

func (f *fakeRepo) UpdateParagraphContent(_ context.Context, id uuid.UUID, content string, wordCount int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.paragraphs[id]
	if !ok {
		return fmt.Errorf("%w: paragraph %s", repository.ErrNotFound, id)
	}
	p.Content = content
	p.WordCount = wordCount
	return nil
}

func (f *fakeRepo) RefreshWordCounts(_ context.Context, chapterId uuid.UUID, bookId uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	total := 0
	for _, p := range f.paragraphs {
		if p.ChapterId == chapterId {
			total += p.WordCount
		}
	}
	f.chapters[chapterId].WordCount = total
	f.books[bookId].WordCount = total
	return nil
}

type fakeStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	puts      int
	deletes   int
	putErr    error
	getErr    error
	deleteErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string][]byte{}}
}

func (s *fakeStore) Put(_ context.Context, key string, body io.Reader, _ int64, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts++
	if s.putErr != nil {
		return "", s.putErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	s.objects[key] = data
	return key, nil
}

func (s *fakeStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	data, ok := s.objects[key]
	if !ok {
		return nil, blobstore.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *fakeStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes++
	if s.deleteErr != nil {
		return s.deleteErr
	}
	delete(s.objects, key)
	return nil
}

type fakeGateway struct {
	credErr error
	text    string
	err     error
	// block, when set, holds the call until the channel is closed or ctx ends.
	block   chan struct{}
	started chan struct{}
	calls   int
	mu      sync.Mutex
}

func (g *fakeGateway) CheckCredentials() error { return g.credErr }

func (g *fakeGateway) Transcribe(ctx context.Context, _ string, audio io.Reader) (string, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	if _, err := io.Copy(io.Discard, audio); err != nil {
		return "", err
	}
	if g.started != nil {
		close(g.started)
	}
	if g.block != nil {
		select {
		case <-g.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return g.text, g.err
}

var errBoom = errors.New("boom")
