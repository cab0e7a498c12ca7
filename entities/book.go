package entities

import (
	"github.com/google/uuid"
	"manuscript-ingest/constant"
	"time"
)

type Book struct {
	ID          uuid.UUID           `json:"id" gorm:"type:uuid;primaryKey"`
	UserId      uuid.UUID           `json:"userId" gorm:"type:uuid;not null;index:idx_books_user_id"`
	Title       string              `json:"title" gorm:"type:varchar(255);not null"`
	Subtitle    *string             `json:"subtitle" gorm:"type:varchar(255)"`
	Description *string             `json:"description" gorm:"type:text"`
	Genre       *string             `json:"genre" gorm:"type:varchar(100)"`
	Status      constant.BookStatus `json:"status" gorm:"type:varchar(20);not null"`
	CoverURL    *string             `json:"coverUrl" gorm:"type:varchar(1024)"`
	WordCount   int                 `json:"wordCount" gorm:"not null"`
	CreatedAt   time.Time           `json:"createdAt" gorm:"type:timestamptz;not null"`
	UpdatedAt   time.Time           `json:"updatedAt" gorm:"type:timestamptz;not null"`
}

func (Book) TableName() string {
	return "books"
}
