package model

import "errors"

// ErrNotFound is the shared not-found sentinel. Storage adapters return it
// (possibly wrapped) so domain packages can test with errors.Is without
// importing the adapter.
var ErrNotFound = errors.New("not found")
