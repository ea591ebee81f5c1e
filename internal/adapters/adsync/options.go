package adsync

import "net/http"

type options struct {
	client  *http.Client
	baseURL string
}

// Option customizes a fetcher.
type Option func(*options)

// WithHTTPClient overrides the fetcher's HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.client = c }
}

// WithBaseURL overrides the platform API base URL, for tests.
func WithBaseURL(url string) Option {
	return func(o *options) { o.baseURL = url }
}

func applyOptions(opts []Option) options {
	o := options{client: newHTTPClient()}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}
