package identity

import "github.com/okian/attribd/pkg/logger"

type options struct {
	log logger.Logger
}

// Option customizes the resolver.
type Option func(*options)

// WithLogger sets the resolver logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.log = l }
}

func applyOptions(opts []Option) options {
	o := options{log: logger.Named("identity")}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}
