package api

import "errors"

// Sentinel kinds for API errors.
var (
	ErrBadRequest       = errors.New("bad request")
	ErrBadSignature     = errors.New("invalid webhook signature")
	ErrMethodNotAllowed = errors.New("method not allowed")
)
