package util

import (
	"fmt"
	"regexp"
	"time"
)

var (
	dniRe         = regexp.MustCompile(`^[0-9]{8}$`)
	studentCodeRe = regexp.MustCompile(`^[A-Za-z0-9-]{4,20}$`)
	clockRe       = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)
)

// Rubric bounds for every evaluation criterion.
const (
	MinScore = 0
	MaxScore = 20
)

// ValidateDNI checks a national id: exactly 8 digits.
func ValidateDNI(dni string) error {
	if !dniRe.MatchString(dni) {
		return fmt.Errorf("dni must be 8 digits, got %q", dni)
	}
	return nil
}

// ValidateStudentCode checks a student code: 4-20 letters, digits or dashes.
func ValidateStudentCode(code string) error {
	if !studentCodeRe.MatchString(code) {
		return fmt.Errorf("invalid student code %q", code)
	}
	return nil
}

// ValidateScore checks one rubric criterion is within [0, 20].
func ValidateScore(score float64) error {
	if score < MinScore || score > MaxScore {
		return fmt.Errorf("score must be between %d and %d, got %g", MinScore, MaxScore, score)
	}
	return nil
}

// ValidateDate checks the date format (YYYY-MM-DD).
func ValidateDate(dateStr string) error {
	if dateStr == "" {
		return fmt.Errorf("date is empty")
	}
	_, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		return fmt.Errorf("invalid date format: %w", err)
	}
	return nil
}

// ValidateClock checks a HH:MM presentation time.
func ValidateClock(s string) error {
	if !clockRe.MatchString(s) {
		return fmt.Errorf("invalid time %q, want HH:MM", s)
	}
	return nil
}
