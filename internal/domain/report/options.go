package report

import (
	"runtime"

	"github.com/okian/attribd/internal/domain/reconcile"
	"github.com/okian/attribd/pkg/logger"
)

type options struct {
	checker *reconcile.Checker
	workers int
	log     logger.Logger
}

// Option customizes the builder.
type Option func(*options)

// WithWorkers sets the attribution fan-out parallelism.
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithChecker sets the reconciliation checker used for anomaly flagging.
func WithChecker(c *reconcile.Checker) Option {
	return func(o *options) { o.checker = c }
}

// WithLogger sets the builder logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.log = l }
}

func applyOptions(opts []Option) options {
	o := options{
		checker: reconcile.New(0.25),
		workers: runtime.NumCPU(),
		log:     logger.Named("report"),
	}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}
