package capi

import (
	"net/http"

	"github.com/okian/attribd/internal/domain/model"
	"github.com/okian/attribd/pkg/logger"
)

const defaultMaxAttempts = 3

type syncerOptions struct {
	pushers     map[model.Platform]Pusher
	maxAttempts int
	log         logger.Logger
}

// SyncerOption customizes the syncer.
type SyncerOption func(*syncerOptions)

// WithPusher registers a platform pusher.
func WithPusher(p Pusher) SyncerOption {
	return func(o *syncerOptions) { o.pushers[p.Platform()] = p }
}

// WithMaxAttempts caps retries for failed pushes.
func WithMaxAttempts(n int) SyncerOption {
	return func(o *syncerOptions) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

// WithSyncerLogger sets the syncer logger.
func WithSyncerLogger(l logger.Logger) SyncerOption {
	return func(o *syncerOptions) { o.log = l }
}

func applySyncerOptions(opts []SyncerOption) syncerOptions {
	o := syncerOptions{
		pushers:     make(map[model.Platform]Pusher),
		maxAttempts: defaultMaxAttempts,
		log:         logger.Named("capi"),
	}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

type pusherOptions struct {
	client  *http.Client
	baseURL string
}

// PusherOption customizes a platform pusher.
type PusherOption func(*pusherOptions)

// WithHTTPClient overrides the pusher's HTTP client.
func WithHTTPClient(c *http.Client) PusherOption {
	return func(o *pusherOptions) { o.client = c }
}

// WithBaseURL overrides the platform endpoint, for tests.
func WithBaseURL(url string) PusherOption {
	return func(o *pusherOptions) { o.baseURL = url }
}

func applyPusherOptions(opts []PusherOption) pusherOptions {
	o := pusherOptions{client: newHTTPClient()}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}
