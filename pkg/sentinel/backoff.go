package sentinel

import "time"

// Backoff yields exponentially growing restart delays between Initial and
// Max. Zero fields take the defaults below.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
	Factor  float64

	current time.Duration
}

const (
	DefaultInitialBackoff = 5 * time.Second
	DefaultMaxBackoff     = 10 * time.Minute
	DefaultBackoffFactor  = 2.0
)

func (b *Backoff) defaults() {
	if b.Initial <= 0 {
		b.Initial = DefaultInitialBackoff
	}
	if b.Max <= 0 {
		b.Max = DefaultMaxBackoff
	}
	if b.Factor <= 1 {
		b.Factor = DefaultBackoffFactor
	}
}

// Next returns the delay to wait now and grows the following one.
func (b *Backoff) Next() time.Duration {
	b.defaults()
	if b.current <= 0 {
		b.current = b.Initial
	}
	d := b.current
	b.current = min(time.Duration(float64(b.current)*b.Factor), b.Max)
	return d
}

func (b *Backoff) Reset() {
	b.defaults()
	b.current = b.Initial
}
