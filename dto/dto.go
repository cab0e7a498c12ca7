package dto

import (
	"github.com/google/uuid"
	"io"
)

type UploadFile struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

type UploadRequest struct {
	BookId      uuid.UUID
	ChapterId   *uuid.UUID
	ParagraphId *uuid.UUID
	File        UploadFile
}

type DeleteResult struct {
	Deleted     bool   `json:"deleted"`
	BlobRemoved bool   `json:"blobRemoved"`
	Warning     string `json:"warning,omitempty"`
}

type TranscribeRequest struct {
	PodcastId string `json:"podcastId"`
	FileUrl   string `json:"fileUrl"`
}

type TranscribeResponse struct {
	Success       bool   `json:"success"`
	Transcription string `json:"transcription"`
	Message       string `json:"message"`
}

type ApplyTranscriptionRequest struct {
	ParagraphId string `json:"paragraphId"`
}

type ErrorResponse struct {
	Error    string `json:"error"`
	Category string `json:"category,omitempty"`
}

// TranscribeMessage is published to the transcription queue.
type TranscribeMessage struct {
	PodcastImportId uuid.UUID `json:"podcastImportId"`
}
