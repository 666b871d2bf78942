package models

import "time"

// Session is one issued login token, keyed by the token's jti. Logout and
// password changes revoke sessions; the auth middleware rejects revoked or
// expired ones.
type Session struct {
	ID        string    `gorm:"primaryKey;size:64"` // jti (UUID)
	UserID    uint      `gorm:"index;not null"`
	ExpiresAt time.Time `gorm:"index;not null"`
	Revoked   bool      `gorm:"index;not null;default:false"`
	RevokedAt *time.Time
	ClientIP  string `gorm:"size:64"`
	CreatedAt time.Time

	User User `gorm:"constraint:OnDelete:CASCADE"`
}

// Active reports whether the session can still authenticate requests.
func (s *Session) Active(now time.Time) bool {
	return !s.Revoked && s.ExpiresAt.After(now)
}
