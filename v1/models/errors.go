package models

import "errors"

// Sentinel errors returned by the service layer. Handlers translate them to
// HTTP status codes with errors.Is, so wrap them with %w when adding context.
var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrValidation        = errors.New("validation failed")
	ErrForbidden         = errors.New("forbidden")
	ErrUnauthorized      = errors.New("invalid credentials")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrIntegrity         = errors.New("content integrity check failed")
	ErrTooLarge          = errors.New("payload too large")
)
