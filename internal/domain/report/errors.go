package report

import "errors"

var (
	// ErrInvalidParams indicates the report request failed validation.
	ErrInvalidParams = errors.New("invalid report parameters")
	// ErrInvalidParent indicates a drill-down parent the hierarchy does not
	// recognize.
	ErrInvalidParent = errors.New("invalid drill-down parent")
)
