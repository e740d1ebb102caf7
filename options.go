package spiboot

import "time"

// Protocol timing defaults.
const (
	DefaultAckTimeout      = 500 * time.Millisecond
	DefaultEraseTimeout    = 10 * time.Second // 256 pages take about 5.7s
	DefaultResetDelay      = 300 * time.Millisecond
	DefaultProcessingDelay = 100 * time.Millisecond
	DefaultWriteRetries    = 10
)

type config struct {
	log             Logger
	ackTimeout      time.Duration
	eraseTimeout    time.Duration
	resetDelay      time.Duration
	processingDelay time.Duration
	writeRetries    int
	progress        ProgressFunc

	// clock and delay primitives
	now   func() time.Time
	sleep func(time.Duration)
}

func defaultConfig() config {
	return config{
		log:             &nullLogger{},
		ackTimeout:      DefaultAckTimeout,
		eraseTimeout:    DefaultEraseTimeout,
		resetDelay:      DefaultResetDelay,
		processingDelay: DefaultProcessingDelay,
		writeRetries:    DefaultWriteRetries,
		now:             time.Now,
		sleep:           time.Sleep,
	}
}

func newConfig(opts []Option) config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Option configures the bootloader, memory and programmer components.
type Option func(*config)

// WithLogger sets the diagnostics sink.
func WithLogger(l Logger) Option {
	return func(c *config) {
		if l != nil {
			c.log = l
		}
	}
}

// WithAckTimeout sets how long ordinary handshakes poll for ACK/NAK.
func WithAckTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.ackTimeout = d
		}
	}
}

// WithEraseTimeout sets how long the erase handshake polls for ACK/NAK.
func WithEraseTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.eraseTimeout = d
		}
	}
}

// WithResetDelay sets the settle delay after a device self-reset.
func WithResetDelay(d time.Duration) Option {
	return func(c *config) {
		if d >= 0 {
			c.resetDelay = d
		}
	}
}

// WithProcessingDelay sets the wait between a protect/unprotect command and its
// confirmation frame.
func WithProcessingDelay(d time.Duration) Option {
	return func(c *config) {
		if d >= 0 {
			c.processingDelay = d
		}
	}
}

// WithWriteRetries sets how many times a chunk is rewritten when the read back
// does not match.
func WithWriteRetries(n int) Option {
	return func(c *config) {
		if n >= 0 {
			c.writeRetries = n
		}
	}
}

// WithProgress sets a callback invoked after every file window.
func WithProgress(f ProgressFunc) Option {
	return func(c *config) {
		c.progress = f
	}
}

// WithClock replaces the time source and the blocking delay primitive.
func WithClock(now func() time.Time, sleep func(time.Duration)) Option {
	return func(c *config) {
		if now != nil {
			c.now = now
		}
		if sleep != nil {
			c.sleep = sleep
		}
	}
}
