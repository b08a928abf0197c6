// Package retry provides context based retry functionality for functions.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrAbort is returned when retrying an operation will not result in a
// different outcome.
var ErrAbort = errors.New("operation can not be completed")

// Options for retry.
type Options struct {
	delay         time.Duration
	backoffFactor float64
	maxRetries    int
	continueOnErr func(error) bool
}

// NewOptions returns a new Options with the given options applied.
func NewOptions(opts ...Option) Options {
	options := Options{
		delay: 2 * time.Second,
		continueOnErr: func(err error) bool {
			return !errors.Is(err, ErrAbort)
		},
		backoffFactor: 1.0,
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

// Option is a functional option function for Options.
type Option func(*Options)

// Delay sets the delay between retries. The default is 2 seconds.
func Delay(d time.Duration) Option {
	return func(o *Options) {
		o.delay = d
	}
}

// MaxRetries sets the maximum number of retries. The default is to retry
// until the context is done or canceled.
func MaxRetries(n int) Option {
	return func(o *Options) {
		o.maxRetries = n
	}
}

// Backoff sets the backoff factor. On each attempt the delay is multiplied
// by this factor. The default is 1.0.
func Backoff(f float64) Option {
	return func(o *Options) {
		o.backoffFactor = f
	}
}

// If sets the function that decides whether an error should continue the
// retry. If the function returns true, the retry will continue.
func If(f func(error) bool) Option {
	return func(o *Options) {
		o.continueOnErr = f
	}
}

// Do runs the function until it returns nil or the context is done or
// canceled.
func Do(ctx context.Context, fn func() error, opts ...Option) error {
	if ctx.Err() != nil {
		return fmt.Errorf("retry: context done or canceled before first attempt: %w", ctx.Err())
	}
	options := NewOptions(opts...)
	attempt := 0
	for {
		attempt++
		err := fn()
		if err == nil {
			return nil
		}

		if !options.continueOnErr(err) {
			return fmt.Errorf("retry: abort condition reached after %d attempts: %w", attempt, err)
		}

		if options.maxRetries > 0 && attempt >= options.maxRetries {
			return fmt.Errorf("retry: max retries reached: %w", err)
		}

		select {
		case <-time.After(time.Duration(float64(options.delay) * (options.backoffFactor * float64(attempt)))):
		case <-ctx.Done():
			return fmt.Errorf("retry: context done after %d attempts: %w: %w", attempt, ctx.Err(), err)
		}
	}
}

// Get is a generic alternative of Do that returns the result of a function
// that returns a value and an error.
func Get[T any](ctx context.Context, fn func() (T, error), opts ...Option) (T, error) {
	var result T
	err := Do(ctx, func() error {
		var err error
		result, err = fn()
		return err
	}, opts...)
	return result, err
}
