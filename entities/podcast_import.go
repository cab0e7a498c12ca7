package entities

import (
	"github.com/google/uuid"
	"manuscript-ingest/constant"
	"time"
)

type PodcastImport struct {
	ID                     uuid.UUID            `json:"id" gorm:"type:uuid;primaryKey"`
	BookId                 uuid.UUID            `json:"bookId" gorm:"type:uuid;not null;index:idx_podcast_imports_book_created,priority:1"`
	Book                   *Book                `json:"-" gorm:"foreignKey:BookId;constraint:OnDelete:CASCADE"`
	ChapterId              *uuid.UUID           `json:"chapterId" gorm:"type:uuid"`
	ParagraphId            *uuid.UUID           `json:"paragraphId" gorm:"type:uuid"`
	Filename               string               `json:"filename" gorm:"type:varchar(500);not null"`
	StorageKey             *string              `json:"storageKey" gorm:"type:varchar(1024)"`
	FileSize               int64                `json:"fileSize" gorm:"type:bigint;not null"`
	DurationSeconds        *int                 `json:"durationSeconds" gorm:"type:integer"`
	RawTranscription       *string              `json:"rawTranscription" gorm:"type:text"`
	ProcessedTranscription *string              `json:"processedTranscription" gorm:"type:text"`
	State                  constant.ImportState `json:"state" gorm:"type:varchar(20);not null;index:idx_podcast_imports_state;check:state IN ('uploaded','transcribing','transcribed','processed','used','error')"`
	ErrorMessage           *string              `json:"errorMessage" gorm:"type:text"`
	CreatedAt              time.Time            `json:"createdAt" gorm:"type:timestamptz;not null;index:idx_podcast_imports_book_created,priority:2,sort:desc"`
	UpdatedAt              time.Time            `json:"updatedAt" gorm:"type:timestamptz;not null"`
}

func (PodcastImport) TableName() string {
	return "podcast_imports"
}

// Transcription returns the best text available for the import, preferring the
// processed transcription over the raw one.
func (p *PodcastImport) Transcription() string {
	if p.ProcessedTranscription != nil && *p.ProcessedTranscription != "" {
		return *p.ProcessedTranscription
	}
	if p.RawTranscription != nil {
		return *p.RawTranscription
	}
	return ""
}
