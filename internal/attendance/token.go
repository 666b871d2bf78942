package attendance

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const tokenSubject = "attendance_qr"

// qrClaims is the payload embedded in every attendance QR.
type qrClaims struct {
	ArticleID    uint   `json:"article_id"`
	StudentID    uint   `json:"student_id"`
	ArticleTitle string `json:"article_title,omitempty"`
	jwt.RegisteredClaims
}

func (s *Service) signToken(articleID, speakerID uint, title string, issuedAt, expiresAt time.Time) (string, error) {
	claims := &qrClaims{
		ArticleID:    articleID,
		StudentID:    speakerID,
		ArticleTitle: title,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   tokenSubject,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// parseToken checks signature and structure only. Expiry is left to the
// caller so that an expired token is reported as ErrExpired, not as
// ErrInvalidToken.
func (s *Service) parseToken(raw string) (*qrClaims, error) {
	claims := &qrClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject != tokenSubject || claims.ArticleID == 0 ||
		claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return nil, fmt.Errorf("%w: missing claims", ErrInvalidToken)
	}
	if !claims.ExpiresAt.After(claims.IssuedAt.Time) {
		return nil, fmt.Errorf("%w: expiry before issuance", ErrInvalidToken)
	}
	return claims, nil
}
