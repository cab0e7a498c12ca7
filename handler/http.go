package handler

import (
	"errors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"manuscript-ingest/constant"
	"manuscript-ingest/dto"
	"manuscript-ingest/pkg/rabbitmq"
	"manuscript-ingest/service"
	"net/http"
	"slices"
	"strconv"
)

// multipart framing allowance on top of the file size ceiling
const formOverhead = 1 << 20

type HttpHandler struct {
	ingestion      service.IngestionService
	manuscript     service.ManuscriptService
	publisher      rabbitmq.Publisher
	maxUploadBytes int64
}

// NewHttpHandler builds the API handlers. publisher may be nil when the
// transcription queue is disabled; async requests then run inline.
func NewHttpHandler(ingestion service.IngestionService, manuscript service.ManuscriptService, publisher rabbitmq.Publisher, maxUploadBytes int64) *HttpHandler {
	return &HttpHandler{
		ingestion:      ingestion,
		manuscript:     manuscript,
		publisher:      publisher,
		maxUploadBytes: maxUploadBytes,
	}
}

func (h *HttpHandler) Register(r gin.IRouter) {
	r.POST("/transcribe", h.TranscribeByFile)
	r.POST("/books/:bookId/podcasts", h.Upload)
	r.GET("/books/:bookId/podcasts", h.List)
	r.GET("/podcasts/:id", h.Get)
	r.POST("/podcasts/:id/transcribe", h.Transcribe)
	r.DELETE("/podcasts/:id", h.Delete)
	r.POST("/podcasts/:id/apply", h.Apply)
}

func (h *HttpHandler) TranscribeByFile(c *gin.Context) {
	var req dto.TranscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.PodcastId == "" || req.FileUrl == "" {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Missing podcastId or fileUrl", Category: service.CategoryValidation})
		return
	}
	id, err := uuid.Parse(req.PodcastId)
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid podcastId", Category: service.CategoryValidation})
		return
	}

	ctx := c.Request.Context()
	podcast, err := h.ingestion.GetImport(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}
	if podcast.StorageKey == nil || *podcast.StorageKey != req.FileUrl {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "fileUrl does not match the podcast's stored file", Category: service.CategoryValidation})
		return
	}

	podcast, err = h.ingestion.Transcribe(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.TranscribeResponse{
		Success:       true,
		Transcription: podcast.Transcription(),
		Message:       "Trascrizione completata!",
	})
}

func (h *HttpHandler) Upload(c *gin.Context) {
	bookId, ok := pathId(c, "bookId")
	if !ok {
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+formOverhead)
	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "file too large", Category: service.CategoryValidation})
			return
		}
		msg := "invalid multipart upload"
		if errors.Is(err, http.ErrMissingFile) {
			msg = "file is required"
		}
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: msg, Category: service.CategoryValidation})
		return
	}

	req := dto.UploadRequest{BookId: bookId}
	optionalIds := []struct {
		field string
		dst   **uuid.UUID
	}{
		{"chapterId", &req.ChapterId},
		{"paragraphId", &req.ParagraphId},
	}
	for _, opt := range optionalIds {
		field, dst := opt.field, opt.dst
		raw := c.PostForm(field)
		if raw == "" {
			continue
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid " + field, Category: service.CategoryValidation})
			return
		}
		*dst = &id
	}

	file, err := header.Open()
	if err != nil {
		writeError(c, err)
		return
	}
	defer file.Close()

	req.File = dto.UploadFile{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	}
	podcast, err := h.ingestion.SubmitUpload(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, podcast)
}

func (h *HttpHandler) List(c *gin.Context) {
	bookId, ok := pathId(c, "bookId")
	if !ok {
		return
	}
	podcasts, err := h.ingestion.ListImports(c.Request.Context(), bookId)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, podcasts)
}

func (h *HttpHandler) Get(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	podcast, err := h.ingestion.GetImport(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, podcast)
}

func (h *HttpHandler) Transcribe(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	async, _ := strconv.ParseBool(c.Query("async"))
	if async && h.publisher != nil {
		podcast, err := h.ingestion.GetImport(ctx, id)
		if err != nil {
			writeError(c, err)
			return
		}
		if !slices.Contains(constant.TranscribableStates, podcast.State) {
			c.JSON(http.StatusConflict, dto.ErrorResponse{Error: "podcast import is " + podcast.State.String(), Category: service.CategoryConflict})
			return
		}
		if err := h.publisher.Publish(ctx, dto.TranscribeMessage{PodcastImportId: id}); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Str("podcast_import_id", id.String()).Msg("failed to publish transcribe message")
			c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "failed to queue transcription", Category: service.CategoryInternal})
			return
		}
		c.JSON(http.StatusAccepted, podcast)
		return
	}

	podcast, err := h.ingestion.Transcribe(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, podcast)
}

func (h *HttpHandler) Delete(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	res, err := h.ingestion.DeleteImport(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *HttpHandler) Apply(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	var req dto.ApplyTranscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ParagraphId == "" {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "paragraphId is required", Category: service.CategoryValidation})
		return
	}
	paragraphId, err := uuid.Parse(req.ParagraphId)
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid paragraphId", Category: service.CategoryValidation})
		return
	}

	paragraph, err := h.manuscript.ApplyTranscription(c.Request.Context(), id, paragraphId)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, paragraph)
}

func pathId(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid " + name, Category: service.CategoryValidation})
		return uuid.Nil, false
	}
	return id, true
}

func writeError(c *gin.Context, err error) {
	category := service.Category(err)
	status := statusFor(category)
	if status >= http.StatusInternalServerError {
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Str("category", category).Str("path", c.FullPath()).Msg("request failed")
	}
	// Upstream and storage details stay in the logs and the record's error_message.
	msg := service.Message(err)
	switch category {
	case service.CategoryGateway:
		msg = "Transcription failed"
	case service.CategoryStorage:
		msg = "Storage operation failed"
	case service.CategoryInternal:
		msg = "Internal server error"
	}
	c.JSON(status, dto.ErrorResponse{Error: msg, Category: category})
}

func statusFor(category string) int {
	switch category {
	case service.CategoryValidation:
		return http.StatusBadRequest
	case service.CategoryNotFound:
		return http.StatusNotFound
	case service.CategoryConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
