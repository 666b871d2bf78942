package models

import "time"

// QRToken is one issuance of an attendance QR for an article. Rows are never
// updated; a token stops being active once ExpiresAt passes.
type QRToken struct {
	ID        uint      `gorm:"primaryKey"`
	ArticleID uint      `gorm:"index:idx_qr_article_expires,priority:1;not null"`
	Token     string    `gorm:"type:text;not null"`
	ExpiresAt time.Time `gorm:"index:idx_qr_article_expires,priority:2;not null"`
	CreatedAt time.Time

	Article Article `gorm:"constraint:OnDelete:CASCADE"`
}

func (QRToken) TableName() string { return "article_qr_codes" }
