package models

import "time"

// Article types.
const (
	ArticleSystematicReview = "revision_sistematica"
	ArticleEmpirical        = "empirico"
	ArticleTheoretical      = "teorico"
	ArticleCaseStudy        = "estudio_caso"
)

// Presentation shifts.
const (
	ShiftMorning   = "mañana"
	ShiftAfternoon = "tarde"
)

// Article is the presentation owned by one speaker. StudentID is unique:
// a speaker owns at most one article.
type Article struct {
	ID               uint       `gorm:"primaryKey"`
	StudentID        uint       `gorm:"uniqueIndex;not null"`
	Title            string     `gorm:"size:255;not null"`
	Description      string     `gorm:"type:text"`
	Type             string     `gorm:"size:32;index;not null;default:empirico"`
	PresentationDate *time.Time `gorm:"type:date"`
	PresentationTime string     `gorm:"size:5"` // HH:MM
	Shift            string     `gorm:"size:16;index"`
	CreatedAt        time.Time
	UpdatedAt        time.Time

	Student Student `gorm:"constraint:OnDelete:CASCADE"`
}

// ArticleJuror is the join row between articles and their jurors.
type ArticleJuror struct {
	ArticleID uint `gorm:"primaryKey;autoIncrement:false"`
	JurorID   uint `gorm:"primaryKey;autoIncrement:false;index"`
	CreatedAt time.Time
}

func (ArticleJuror) TableName() string { return "article_jurors" }
