// Package attendance issues signed, time-boxed QR tokens for articles and
// redeems them into at-most-once attendance records.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Renzo-Juli-M/proyecto-cero/internal/models"

	"gorm.io/gorm"
)

// Notification events, published on ArticleChannel(articleID).
const (
	EventQRGenerated          = "qr.generated"
	EventAttendanceRegistered = "attendance.registered"
)

// DefaultTTL is the validity window of a freshly minted token.
const DefaultTTL = 30 * time.Minute

// Publisher delivers real-time events. Delivery is best-effort: errors are
// logged by the service and never reach the caller.
type Publisher interface {
	Publish(ctx context.Context, channel, event string, payload map[string]any) error
}

// ArticleChannel is the notification channel of one article.
func ArticleChannel(articleID uint) string {
	return fmt.Sprintf("article.%d", articleID)
}

type Config struct {
	Secret string
	Issuer string
	TTL    time.Duration
}

type Service struct {
	db     *gorm.DB
	secret []byte
	issuer string
	ttl    time.Duration
	pub    Publisher
	log    *slog.Logger
	now    func() time.Time
}

type Option func(*Service)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService builds the service. pub may be nil to disable notifications.
func NewService(db *gorm.DB, cfg Config, pub Publisher, log *slog.Logger, opts ...Option) *Service {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if log == nil {
		log = slog.Default()
	}
	s := &Service{
		db:     db,
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		ttl:    cfg.TTL,
		pub:    pub,
		log:    log.With("component", "attendance"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// publish hands the event to the publisher after the primary write has
// committed. Failures are logged only.
func (s *Service) publish(ctx context.Context, articleID uint, event string, payload map[string]any) {
	if s.pub == nil {
		return
	}
	if err := s.pub.Publish(context.WithoutCancel(ctx), ArticleChannel(articleID), event, payload); err != nil {
		s.log.WarnContext(ctx, "publish notification failed",
			"event", event, "article_id", articleID, "error", err)
	}
}

func (s *Service) loadArticle(ctx context.Context, articleID uint) (*models.Article, error) {
	var article models.Article
	err := s.db.WithContext(ctx).Preload("Student").First(&article, articleID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("article %d: %w", articleID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query article: %w", err)
	}
	return &article, nil
}

// loadStudent returns ErrForbidden for an unknown student: a caller without
// a student profile may not act as a speaker or listener.
func (s *Service) loadStudent(ctx context.Context, studentID uint) (*models.Student, error) {
	var student models.Student
	err := s.db.WithContext(ctx).First(&student, studentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("student %d: %w", studentID, ErrForbidden)
	}
	if err != nil {
		return nil, fmt.Errorf("query student: %w", err)
	}
	return &student, nil
}

// ownedArticle resolves articleID and checks the student is its speaker.
func (s *Service) ownedArticle(ctx context.Context, articleID, studentID uint) (*models.Article, error) {
	article, err := s.loadArticle(ctx, articleID)
	if err != nil {
		return nil, err
	}
	student, err := s.loadStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if !student.IsSpeaker() || article.StudentID != student.ID {
		return nil, fmt.Errorf("student %d does not own article %d: %w", studentID, articleID, ErrForbidden)
	}
	return article, nil
}

// SpeakerArticle returns the article owned by a speaker.
func (s *Service) SpeakerArticle(ctx context.Context, studentID uint) (*models.Article, error) {
	student, err := s.loadStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if !student.IsSpeaker() {
		return nil, fmt.Errorf("student %d is not a speaker: %w", studentID, ErrForbidden)
	}

	var article models.Article
	err = s.db.WithContext(ctx).Preload("Student").Where("student_id = ?", student.ID).First(&article).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("speaker %d has no article: %w", studentID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query article: %w", err)
	}
	return &article, nil
}

// CountAttendees returns the number of attendance rows of an article.
func (s *Service) CountAttendees(ctx context.Context, articleID uint) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.Attendance{}).
		Where("article_id = ?", articleID).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count attendees: %w", err)
	}
	return n, nil
}

// Attendees lists the attendance rows of an article, newest first, with
// their students loaded.
func (s *Service) Attendees(ctx context.Context, articleID uint) ([]models.Attendance, error) {
	var rows []models.Attendance
	if err := s.db.WithContext(ctx).Preload("Student").
		Where("article_id = ?", articleID).
		Order("scanned_at DESC, id DESC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list attendees: %w", err)
	}
	return rows, nil
}
