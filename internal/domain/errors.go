package domain

import "errors"

var (
	// ErrInvalidRequest marks malformed or ambiguous orchestration requests.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrTemplateNotFound is returned when a template key has no exact match.
	ErrTemplateNotFound = errors.New("template not found")
	// ErrUnknownScope is returned when a gathering or group id does not exist.
	ErrUnknownScope = errors.New("unknown scope")
	// ErrContentUnavailable is returned when dynamic template data cannot be fetched.
	ErrContentUnavailable = errors.New("content unavailable")

	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)
