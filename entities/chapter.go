package entities

import (
	"github.com/google/uuid"
	"manuscript-ingest/constant"
	"time"
)

type Chapter struct {
	ID        uuid.UUID              `json:"id" gorm:"type:uuid;primaryKey"`
	BookId    uuid.UUID              `json:"bookId" gorm:"type:uuid;not null;index:idx_chapters_book_id"`
	Book      *Book                  `json:"-" gorm:"foreignKey:BookId;constraint:OnDelete:CASCADE"`
	Position  int                    `json:"position" gorm:"not null"`
	Title     string                 `json:"title" gorm:"type:varchar(255);not null"`
	Status    constant.SectionStatus `json:"status" gorm:"type:varchar(20);not null"`
	Notes     *string                `json:"notes" gorm:"type:text"`
	WordCount int                    `json:"wordCount" gorm:"not null"`
	CreatedAt time.Time              `json:"createdAt" gorm:"type:timestamptz;not null"`
	UpdatedAt time.Time              `json:"updatedAt" gorm:"type:timestamptz;not null"`
}

func (Chapter) TableName() string {
	return "chapters"
}
