package attendance

import "errors"

// Callers match these with errors.Is. They are mapped to transport status
// codes only at the HTTP boundary.
var (
	// ErrNotFound: article, speaker article or persisted token missing.
	ErrNotFound = errors.New("not found")

	// ErrForbidden: the requesting student has the wrong role or does not
	// own the article.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidToken: malformed token or signature mismatch.
	ErrInvalidToken = errors.New("invalid qr token")

	// ErrExpired: the token's expiry has passed.
	ErrExpired = errors.New("qr token expired")

	// ErrAlreadyRegistered: the attendee is already recorded for the article.
	// Terminal; retrying will not change the outcome.
	ErrAlreadyRegistered = errors.New("attendance already registered")

	// ErrConflict: a concurrent redemption won the insert. Always returned
	// wrapped together with ErrAlreadyRegistered.
	ErrConflict = errors.New("attendance insert conflict")
)
