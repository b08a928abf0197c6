package ixp

import (
	"errors"

	"github.com/ixpkit/ixp/client"
	"github.com/ixpkit/ixp/ninep"
	"github.com/ixpkit/ixp/stream"
)

var (
	// ErrValidationFailed is returned when a configuration fails validation.
	ErrValidationFailed = errors.New("validation failed")

	// ErrNotConnected is returned when an operation is attempted before
	// Connect or after Close.
	ErrNotConnected = client.ErrNotConnected

	// ErrNoSuchFile is returned when a remote path does not exist.
	ErrNoSuchFile = client.ErrNoSuchFile

	// ErrTimeout is returned by LineReader.Next when a deadline-limited
	// read ran out of time and was not extended.
	ErrTimeout = stream.ErrTimeout

	// ErrMalformedStat is returned when a directory stream violates the
	// protocol's record framing.
	ErrMalformedStat = ninep.ErrMalformedStat
)
