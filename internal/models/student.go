package models

import "time"

// Student types.
const (
	StudentSpeaker  = "ponente"
	StudentListener = "oyente"
)

// Student is either a speaker (ponente) presenting one article or a
// listener (oyente) attending presentations.
type Student struct {
	ID          uint   `gorm:"primaryKey"`
	UserID      uint   `gorm:"uniqueIndex;not null"`
	DNI         string `gorm:"column:dni;size:8;uniqueIndex;not null"`
	StudentCode string `gorm:"size:20;uniqueIndex;not null"`
	FirstName   string `gorm:"size:128;not null"`
	LastName    string `gorm:"size:128;not null"`
	Type        string `gorm:"size:16;index;not null;default:oyente"`
	Campus      string `gorm:"size:100;index"`
	School      string `gorm:"size:150;index"`
	Cycle       string `gorm:"size:20"`
	CreatedAt   time.Time
	UpdatedAt   time.Time

	User User `gorm:"constraint:OnDelete:CASCADE"`
}

func (s *Student) FullName() string {
	return s.FirstName + " " + s.LastName
}

func (s *Student) IsSpeaker() bool  { return s.Type == StudentSpeaker }
func (s *Student) IsListener() bool { return s.Type == StudentListener }
