package service

import "errors"

var (
	// ErrMissingVisitor indicates an identify call without a visitor id.
	ErrMissingVisitor = errors.New("visitor id required")
	// ErrMissingOrderID indicates a conversion without its idempotency key.
	ErrMissingOrderID = errors.New("order id required")
	// ErrInvalidAdName indicates an ad-name upsert with missing or bad fields.
	ErrInvalidAdName = errors.New("invalid ad name")
	// ErrCAPIDisabled indicates no conversion pusher is configured.
	ErrCAPIDisabled = errors.New("capi sync not configured")
	// ErrAdSyncDisabled indicates no ad-name fetcher is configured.
	ErrAdSyncDisabled = errors.New("ad name sync not configured")
)
