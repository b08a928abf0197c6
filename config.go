package ixp

import (
	"fmt"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
)

// Config describes a connection to a 9P service.
type Config struct {
	// Address is a bang-separated dial string such as "tcp!host!564" or
	// "unix!/tmp/ns.user.:0/wmii". A plain host or host:port is treated
	// as tcp.
	Address string `yaml:"address" validate:"required"`
	// User is the user name to attach as.
	User string `yaml:"user" default:"nobody" validate:"required"`
	// Service is the service name (aname) to attach to. Usually empty.
	Service string `yaml:"service,omitempty"`
	// DialTimeout bounds the initial network dial.
	DialTimeout time.Duration `yaml:"dialTimeout" default:"30s"`
	// MessageSize is the maximum message size suggested to the server.
	MessageSize uint32 `yaml:"messageSize" default:"65536" validate:"omitempty,gte=96"`
	// ConnectRetries is the number of times a failed dial is attempted
	// again before giving up. Zero disables retrying.
	ConnectRetries int `yaml:"connectRetries" validate:"gte=0"`
	// RetryDelay is the delay between dial attempts.
	RetryDelay time.Duration `yaml:"retryDelay" default:"2s"`
}

// SetDefaults fills in the default values.
func (c *Config) SetDefaults() {
	// The alias drops the Setter interface so defaults.Set does not
	// call back into this method.
	type plain Config
	if err := defaults.Set((*plain)(c)); err != nil {
		panic(err)
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}
	return nil
}

// String returns the address for log output.
func (c *Config) String() string {
	return c.Address
}
