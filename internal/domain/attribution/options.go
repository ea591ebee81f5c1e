package attribution

const defaultHalfLifeDays = 7

type options struct {
	halfLifeDays float64
}

// Option customizes the engine.
type Option func(*options)

// WithHalfLifeDays sets the time-decay half-life. A touchpoint this many days
// before the conversion carries half the weight of one at the conversion
// instant.
func WithHalfLifeDays(days float64) Option {
	return func(o *options) {
		if days > 0 {
			o.halfLifeDays = days
		}
	}
}

func applyOptions(opts []Option) options {
	o := options{halfLifeDays: defaultHalfLifeDays}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}
