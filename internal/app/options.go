package service

import (
	"runtime"
	"time"

	"github.com/okian/attribd/internal/adapters/adsync"
	"github.com/okian/attribd/internal/adapters/capi"
	"github.com/okian/attribd/pkg/logger"
)

const (
	defaultSessionTimeout   = 30 * time.Minute
	defaultLookbackDays     = 30
	defaultDedupeSize       = 10000
	defaultFeedBufferSize   = 50
	defaultHalfLifeDays     = 7
	defaultAnomalyThreshold = 0.25
)

type options struct {
	sessionTimeout   time.Duration
	lookbackDays     int
	dedupeSize       int
	feedBufferSize   int
	halfLifeDays     float64
	anomalyThreshold float64
	reportWorkers    int
	sweepInterval    time.Duration
	syncer           *capi.Syncer
	nameSyncer       *adsync.Syncer
	log              logger.Logger
}

// Option customizes the service.
type Option func(*options)

// WithSessionTimeout sets the idle gap after which a session is rolled over.
func WithSessionTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.sessionTimeout = d
		}
	}
}

// WithLookbackDays sets the default attribution lookback window.
func WithLookbackDays(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.lookbackDays = n
		}
	}
}

// WithDedupeSize bounds the in-memory conversion dedupe window.
func WithDedupeSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.dedupeSize = n
		}
	}
}

// WithFeedBufferSize bounds each live-feed subscriber channel.
func WithFeedBufferSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.feedBufferSize = n
		}
	}
}

// WithHalfLifeDays sets the time-decay attribution half-life.
func WithHalfLifeDays(days float64) Option {
	return func(o *options) {
		if days > 0 {
			o.halfLifeDays = days
		}
	}
}

// WithAnomalyThreshold sets the reconciliation delta above which a dimension
// is flagged.
func WithAnomalyThreshold(t float64) Option {
	return func(o *options) {
		if t > 0 {
			o.anomalyThreshold = t
		}
	}
}

// WithReportWorkers sets the attribution fan-out width for report builds.
func WithReportWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.reportWorkers = n
		}
	}
}

// WithCAPISyncer attaches a conversion push syncer. Interval > 0 also starts
// the background sweep loop.
func WithCAPISyncer(s *capi.Syncer, interval time.Duration) Option {
	return func(o *options) {
		o.syncer = s
		o.sweepInterval = interval
	}
}

// WithAdNameSyncer attaches the platform display-name syncer.
func WithAdNameSyncer(s *adsync.Syncer) Option {
	return func(o *options) { o.nameSyncer = s }
}

// WithLogger sets the service logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.log = l }
}

func applyOptions(opts []Option) options {
	o := options{
		sessionTimeout:   defaultSessionTimeout,
		lookbackDays:     defaultLookbackDays,
		dedupeSize:       defaultDedupeSize,
		feedBufferSize:   defaultFeedBufferSize,
		halfLifeDays:     defaultHalfLifeDays,
		anomalyThreshold: defaultAnomalyThreshold,
		reportWorkers:    runtime.NumCPU(),
	}
	for _, fn := range opts {
		fn(&o)
	}
	if o.log == nil {
		o.log = logger.Named("service")
	}
	return o
}
