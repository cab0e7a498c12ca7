package entities

import (
	"github.com/google/uuid"
	"manuscript-ingest/constant"
	"time"
)

type Paragraph struct {
	ID        uuid.UUID              `json:"id" gorm:"type:uuid;primaryKey"`
	ChapterId uuid.UUID              `json:"chapterId" gorm:"type:uuid;not null;index:idx_paragraphs_chapter_id"`
	Chapter   *Chapter               `json:"-" gorm:"foreignKey:ChapterId;constraint:OnDelete:CASCADE"`
	Position  int                    `json:"position" gorm:"not null"`
	Title     string                 `json:"title" gorm:"type:varchar(255);not null"`
	Content   string                 `json:"content" gorm:"type:text;not null"`
	Status    constant.SectionStatus `json:"status" gorm:"type:varchar(20);not null"`
	WordCount int                    `json:"wordCount" gorm:"not null"`
	CreatedAt time.Time              `json:"createdAt" gorm:"type:timestamptz;not null"`
	UpdatedAt time.Time              `json:"updatedAt" gorm:"type:timestamptz;not null"`
}

func (Paragraph) TableName() string {
	return "paragraphs"
}
