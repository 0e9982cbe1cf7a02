package probe

import "time"

const (
	DefaultTimeout  = 8 * time.Second
	DefaultAttempts = 5 // first try + 4 retries
	DefaultBackoff  = 300 * time.Millisecond
)

type Options struct {
	Timeout  time.Duration // per attempt
	Attempts int           // total transport attempts
	Backoff  time.Duration // wait between attempts
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Attempts < 1 {
		o.Attempts = DefaultAttempts
	}
	if o.Backoff < 0 {
		o.Backoff = 0
	}
	return o
}
