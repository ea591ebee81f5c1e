package repository

import (
	"errors"

	"github.com/okian/attribd/internal/domain/model"
)

var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = model.ErrNotFound
	// ErrDuplicate indicates a write collided with an existing idempotency key.
	ErrDuplicate = errors.New("duplicate")
	// ErrClosed indicates the store has been closed.
	ErrClosed = errors.New("store closed")
)
