package pointer

import (
	"time"

	"memkit/process"
)

// Clock returns the current time. Tests inject a fake one.
type Clock func() time.Time

type config struct {
	name         string
	derefType    process.DerefType
	interval     time.Duration
	updateOnNull bool
	stringType   process.StringType
	stringLength int
	clock        Clock
}

func defaultConfig() config {
	return config{
		derefType:    process.DerefAuto,
		updateOnNull: true,
		stringType:   process.StringAuto,
		stringLength: process.DefaultStringLength,
		clock:        time.Now,
	}
}

// Option configures a Pointer
type Option func(*config)

func WithName(name string) Option {
	return func(c *config) {
		c.name = name
	}
}

func WithDerefType(derefType process.DerefType) Option {
	return func(c *config) {
		c.derefType = derefType
	}
}

// WithUpdateInterval throttles re-resolution; zero re-resolves on every access
func WithUpdateInterval(d time.Duration) Option {
	return func(c *config) {
		c.interval = d
	}
}

// WithUpdateOnNull controls whether a failed resolution stores the zero value
func WithUpdateOnNull(updateOnNull bool) Option {
	return func(c *config) {
		c.updateOnNull = updateOnNull
	}
}

func WithStringType(stringType process.StringType) Option {
	return func(c *config) {
		c.stringType = stringType
	}
}

// WithStringLength caps unsized string reads, in characters
func WithStringLength(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.stringLength = n
		}
	}
}

func WithClock(clock Clock) Option {
	return func(c *config) {
		if clock != nil {
			c.clock = clock
		}
	}
}
