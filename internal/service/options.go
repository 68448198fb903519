package service

import "time"

const (
	defaultHistoryLimit = 50
	defaultListLimit    = 50
	maxListLimit        = 500
	maxMessageRunes     = 4000
)

type options struct {
	now          func() time.Time
	historyLimit int
	metrics      *Metrics
}

// Option configures a service.
type Option func(*options)

// WithClock sets the time source. Times are stored in UTC.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithHistoryLimit sets how many recent messages a join returns.
func WithHistoryLimit(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.historyLimit = n
		}
	}
}

// WithMetrics sets the Prometheus collectors to update.
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now, historyLimit: defaultHistoryLimit}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

func (o options) clock() time.Time { return o.now().UTC() }

// wholeSeconds is floor(end - start) in seconds, never negative.
func wholeSeconds(start, end time.Time) int64 {
	d := end.Sub(start)
	if d <= 0 {
		return 0
	}
	return int64(d / time.Second)
}
