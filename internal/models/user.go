package models

import "time"

// Account roles.
const (
	RoleAdmin   = "admin"
	RoleStudent = "student"
	RoleJuror   = "juror"
)

// User is the login identity behind a student, a juror or an administrator.
type User struct {
	ID           uint   `gorm:"primaryKey"`
	Username     string `gorm:"size:64;uniqueIndex;not null"`
	PasswordHash string `gorm:"size:255"` // only administrators log in with a password
	Role         string `gorm:"size:16;index;not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time

	LastLoginAt *time.Time
	LastLoginIP string `gorm:"size:64"`
}
