package models

import "time"

// Juror scores the articles assigned to them.
type Juror struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    uint   `gorm:"uniqueIndex;not null"`
	DNI       string `gorm:"column:dni;size:8;uniqueIndex;not null"`
	Username  string `gorm:"size:50;uniqueIndex;not null"`
	FirstName string `gorm:"size:128;not null"`
	LastName  string `gorm:"size:128;not null"`
	Specialty string `gorm:"size:128"`
	CreatedAt time.Time
	UpdatedAt time.Time

	User User `gorm:"constraint:OnDelete:CASCADE"`
}

func (j *Juror) FullName() string {
	return j.FirstName + " " + j.LastName
}
