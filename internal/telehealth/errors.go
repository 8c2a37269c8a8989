package telehealth

import "errors"

var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionEnded       = errors.New("session ended")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrConnectionNotFound = errors.New("connection not found")
	ErrConsentRequired    = errors.New("recording consent required")
	ErrRecordingActive    = errors.New("recording already in progress")
)
