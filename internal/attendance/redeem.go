package attendance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Renzo-Juli-M/proyecto-cero/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Record is a confirmed attendance.
type Record struct {
	AttendanceID   uint
	ArticleID      uint
	ArticleTitle   string
	ArticleType    string
	SpeakerName    string
	StudentID      uint
	ScannedAt      time.Time
	TotalAttendees int64
}

// RedeemToken validates a scanned QR token and records the listener's
// attendance. A second redemption by the same listener, sequential or
// concurrent, fails with ErrAlreadyRegistered.
func (s *Service) RedeemToken(ctx context.Context, rawToken string, studentID uint) (*Record, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}
	now := s.now().UTC()

	// 1. signature and structure
	claims, err := s.parseToken(rawToken)
	if err != nil {
		return nil, err
	}

	// 2. expiry from the payload
	if !claims.ExpiresAt.After(now) {
		return nil, fmt.Errorf("token for article %d expired at %s: %w",
			claims.ArticleID, claims.ExpiresAt.UTC().Format(time.RFC3339), ErrExpired)
	}

	// 3. still present in the store for the same article
	var row models.QRToken
	err = s.db.WithContext(ctx).
		Where("token = ? AND article_id = ? AND expires_at > ?", rawToken, claims.ArticleID, now).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("qr token not in store: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query qr token: %w", err)
	}

	// 4. article
	article, err := s.loadArticle(ctx, claims.ArticleID)
	if err != nil {
		return nil, err
	}

	// 5. listener role
	student, err := s.loadStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if !student.IsListener() {
		return nil, fmt.Errorf("student %d is not a listener: %w", studentID, ErrForbidden)
	}

	// 6. fast path for a plain repeat scan
	var prior int64
	if err := s.db.WithContext(ctx).Model(&models.Attendance{}).
		Where("article_id = ? AND student_id = ?", article.ID, student.ID).
		Count(&prior).Error; err != nil {
		return nil, fmt.Errorf("query attendance: %w", err)
	}
	if prior > 0 {
		return nil, fmt.Errorf("student %d, article %d: %w", student.ID, article.ID, ErrAlreadyRegistered)
	}

	// 7. insert; the unique (article_id, student_id) index decides races
	attendance := models.Attendance{
		ArticleID: article.ID,
		StudentID: student.ID,
		QRTokenID: &row.ID,
		ScannedAt: now,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "article_id"}, {Name: "student_id"}},
			DoNothing: true,
		}).Create(&attendance)
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) || (res.Error == nil && res.RowsAffected == 0) {
			return ErrConflict
		}
		return res.Error
	})
	if errors.Is(err, ErrConflict) {
		return nil, fmt.Errorf("student %d, article %d: %w: %w", student.ID, article.ID, ErrAlreadyRegistered, ErrConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("create attendance: %w", err)
	}

	total, err := s.CountAttendees(ctx, article.ID)
	if err != nil {
		// the attendance is committed; a failed count only degrades the reply
		s.log.WarnContext(ctx, "count attendees failed", "article_id", article.ID, "error", err)
	}

	s.log.InfoContext(ctx, "attendance registered",
		"article_id", article.ID, "student_id", student.ID, "total_attendees", total)
	s.publish(ctx, article.ID, EventAttendanceRegistered, map[string]any{
		"message":         "Nueva asistencia registrada",
		"student_name":    student.FullName(),
		"student_code":    student.StudentCode,
		"total_attendees": total,
		"timestamp":       now.Format(time.RFC3339),
	})

	return &Record{
		AttendanceID:   attendance.ID,
		ArticleID:      article.ID,
		ArticleTitle:   article.Title,
		ArticleType:    article.Type,
		SpeakerName:    article.Student.FullName(),
		StudentID:      student.ID,
		ScannedAt:      now,
		TotalAttendees: total,
	}, nil
}
