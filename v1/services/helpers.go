package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/chitbox-dev/chitfund-portal/v1/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Prefixes for generated ids
const (
	prefixUser          = "usr_"
	prefixAccessRequest = "req_"
	prefixScheme        = "sch_"
	prefixStep          = "stp_"
	prefixTransition    = "trn_"
	prefixEnrollment    = "enr_"
	prefixDocument      = "doc_"
	prefixCertificate   = "crt_"
	prefixReport        = "rpt_"
	prefixJob           = "job_"
)

func newID(prefix string) string {
	return prefix + uuid.New().String()
}

// notFound maps gorm.ErrRecordNotFound onto models.ErrNotFound
func notFound(err error, what, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %s: %w", what, id, models.ErrNotFound)
	}
	return fmt.Errorf("failed to load %s %s: %w", what, id, err)
}

func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", models.ErrValidation, fmt.Sprintf(format, args...))
}

func transitionError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", models.ErrInvalidTransition, fmt.Sprintf(format, args...))
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// trimmedComment returns nil for a missing or blank comment
func trimmedComment(comment *string) *string {
	if comment == nil {
		return nil
	}
	c := strings.TrimSpace(*comment)
	if c == "" {
		return nil
	}
	return &c
}

func ptr[T any](v T) *T {
	return &v
}
