package capi

import (
	"errors"

	"github.com/okian/attribd/internal/domain/model"
)

var (
	// ErrNotConfigured indicates the platform's credentials are missing.
	ErrNotConfigured = errors.New("platform credentials not configured")
	// ErrMissingIdentifier indicates the conversion lacks the identifiers the
	// platform requires. Not retryable.
	ErrMissingIdentifier = errors.New("missing required identifier")
	// ErrUnsupportedPlatform indicates no pusher exists for the platform.
	ErrUnsupportedPlatform = errors.New("unsupported platform")
)

func isNotFound(err error) bool {
	return errors.Is(err, model.ErrNotFound)
}
