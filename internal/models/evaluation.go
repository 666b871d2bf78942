package models

import "time"

// Evaluation is a juror's rubric score for one article.
type Evaluation struct {
	ID           uint    `gorm:"primaryKey"`
	ArticleID    uint    `gorm:"uniqueIndex:idx_evaluation_article_juror,priority:1;not null"`
	JurorID      uint    `gorm:"uniqueIndex:idx_evaluation_article_juror,priority:2;index;not null"`
	Introduction float64 `gorm:"not null;default:0"`
	Methodology  float64 `gorm:"not null;default:0"`
	Development  float64 `gorm:"not null;default:0"`
	Conclusions  float64 `gorm:"not null;default:0"`
	Presentation float64 `gorm:"not null;default:0"`
	Average      float64 `gorm:"not null;default:0"`
	Comments     string  `gorm:"type:text"`
	CreatedAt    time.Time
	UpdatedAt    time.Time

	Article Article `gorm:"constraint:OnDelete:CASCADE"`
	Juror   Juror   `gorm:"constraint:OnDelete:CASCADE"`
}
