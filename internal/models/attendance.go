package models

import "time"

// Attendance records that a listener attended an article's presentation.
// The (article_id, student_id) pair is unique.
type Attendance struct {
	ID        uint      `gorm:"primaryKey"`
	ArticleID uint      `gorm:"uniqueIndex:idx_attendance_article_student,priority:1;not null"`
	StudentID uint      `gorm:"uniqueIndex:idx_attendance_article_student,priority:2;index;not null"`
	QRTokenID *uint     `gorm:"column:qr_token_id;index"`
	ScannedAt time.Time `gorm:"not null"`
	CreatedAt time.Time

	Article Article `gorm:"constraint:OnDelete:CASCADE"`
	Student Student `gorm:"constraint:OnDelete:CASCADE"`
}
