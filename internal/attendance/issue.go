package attendance

import (
	"context"
	"fmt"
	"time"

	"github.com/Renzo-Juli-M/proyecto-cero/internal/models"
)

// IssuedToken is the result of IssueToken.
type IssuedToken struct {
	Token        string
	ArticleID    uint
	ArticleTitle string
	IssuedAt     time.Time
	ExpiresAt    time.Time
	// RemainingMinutes is measured from the time of the call.
	RemainingMinutes int
	// Reused is true when an active token already existed and was returned
	// unchanged.
	Reused bool
}

// IssueToken returns the active QR token of an article, minting and
// persisting a new one when none is active. Only the article's speaker may
// call it.
func (s *Service) IssueToken(ctx context.Context, articleID, studentID uint) (*IssuedToken, error) {
	article, err := s.ownedArticle(ctx, articleID, studentID)
	if err != nil {
		return nil, err
	}
	return s.issue(ctx, article)
}

// IssueForSpeaker issues a token for the article the speaker owns.
func (s *Service) IssueForSpeaker(ctx context.Context, studentID uint) (*IssuedToken, error) {
	article, err := s.SpeakerArticle(ctx, studentID)
	if err != nil {
		return nil, err
	}
	return s.issue(ctx, article)
}

func (s *Service) issue(ctx context.Context, article *models.Article) (*IssuedToken, error) {
	now := s.now().UTC()

	active, err := s.activeToken(ctx, article.ID, now)
	if err != nil {
		return nil, err
	}
	if active != nil {
		active.ArticleTitle = article.Title
		return active, nil
	}

	// JWT timestamps carry whole seconds; keep the stored expiry identical.
	issuedAt := now.Truncate(time.Second)
	expiresAt := issuedAt.Add(s.ttl)

	raw, err := s.signToken(article.ID, article.StudentID, article.Title, issuedAt, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("sign qr token: %w", err)
	}

	row := models.QRToken{
		ArticleID: article.ID,
		Token:     raw,
		ExpiresAt: expiresAt,
		CreatedAt: issuedAt,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, fmt.Errorf("persist qr token: %w", err)
	}

	s.log.InfoContext(ctx, "qr token issued",
		"article_id", article.ID, "qr_token_id", row.ID, "expires_at", expiresAt)
	s.publish(ctx, article.ID, EventQRGenerated, map[string]any{
		"message":       "QR de asistencia generado",
		"article_id":    article.ID,
		"article_title": article.Title,
		"expires_at":    expiresAt.Format(time.RFC3339),
		"timestamp":     now.Format(time.RFC3339),
	})

	return &IssuedToken{
		Token:        raw,
		ArticleID:    article.ID,
		ArticleTitle: article.Title,
		IssuedAt:     issuedAt,
		ExpiresAt:    expiresAt,

		RemainingMinutes: int(s.ttl / time.Minute),
	}, nil
}

// activeToken returns the newest unexpired token of the article whose
// signature still verifies. Rows that fail verification are deleted so a
// fresh token gets minted instead of failing the request.
func (s *Service) activeToken(ctx context.Context, articleID uint, now time.Time) (*IssuedToken, error) {
	var rows []models.QRToken
	if err := s.db.WithContext(ctx).
		Where("article_id = ? AND expires_at > ?", articleID, now).
		Order("created_at DESC, id DESC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query active qr token: %w", err)
	}

	for _, row := range rows {
		claims, err := s.parseToken(row.Token)
		if err == nil && claims.ArticleID == articleID && claims.ExpiresAt.After(now) {
			return &IssuedToken{
				Token:     row.Token,
				ArticleID: articleID,
				IssuedAt:  claims.IssuedAt.Time.UTC(),
				ExpiresAt: row.ExpiresAt.UTC(),
				Reused:    true,

				RemainingMinutes: int(row.ExpiresAt.Sub(now) / time.Minute),
			}, nil
		}

		s.log.WarnContext(ctx, "discarding unverifiable qr token",
			"article_id", articleID, "qr_token_id", row.ID, "error", err)
		if err := s.db.WithContext(ctx).Delete(&models.QRToken{}, row.ID).Error; err != nil {
			return nil, fmt.Errorf("delete corrupted qr token: %w", err)
		}
	}
	return nil, nil
}

// TokenStatus describes the active token of an article, if any.
type TokenStatus struct {
	Active           bool
	ArticleID        uint
	ArticleTitle     string
	Token            string
	ExpiresAt        time.Time
	RemainingMinutes int
}

// TokenStatus reports whether the speaker's article has an active token.
// It never mints or deletes tokens.
func (s *Service) TokenStatus(ctx context.Context, articleID, studentID uint) (*TokenStatus, error) {
	article, err := s.ownedArticle(ctx, articleID, studentID)
	if err != nil {
		return nil, err
	}
	return s.status(ctx, article)
}

// SpeakerTokenStatus is TokenStatus for the article the speaker owns.
func (s *Service) SpeakerTokenStatus(ctx context.Context, studentID uint) (*TokenStatus, error) {
	article, err := s.SpeakerArticle(ctx, studentID)
	if err != nil {
		return nil, err
	}
	return s.status(ctx, article)
}

func (s *Service) status(ctx context.Context, article *models.Article) (*TokenStatus, error) {
	now := s.now().UTC()
	st := &TokenStatus{ArticleID: article.ID, ArticleTitle: article.Title}

	var rows []models.QRToken
	if err := s.db.WithContext(ctx).
		Where("article_id = ? AND expires_at > ?", article.ID, now).
		Order("created_at DESC, id DESC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query active qr token: %w", err)
	}

	// Rows that fail verification are skipped, not deleted: status is read-only.
	for _, row := range rows {
		claims, err := s.parseToken(row.Token)
		if err != nil || claims.ArticleID != article.ID || !claims.ExpiresAt.After(now) {
			continue
		}
		st.Active = true
		st.Token = row.Token
		st.ExpiresAt = row.ExpiresAt.UTC()
		st.RemainingMinutes = int(st.ExpiresAt.Sub(now) / time.Minute)
		break
	}
	return st, nil
}
