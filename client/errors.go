package client

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned when an operation is attempted on a
	// closed or never established connection.
	ErrNotConnected = errors.New("not connected")

	// ErrBadResponse is returned when the server responds with a message
	// that does not fit the outstanding request.
	ErrBadResponse = errors.New("unexpected response")

	// ErrNoSuchFile is returned when a walk ends before reaching the
	// requested path.
	ErrNoSuchFile = errors.New("no such file or directory")

	// ErrUnknownProtocol is returned when the server denies the protocol
	// version during negotiation.
	ErrUnknownProtocol = errors.New("unknown protocol")

	// ErrInvalidAddress is returned when an address string can not be
	// parsed.
	ErrInvalidAddress = errors.New("invalid address")
)

// RemoteError is an error message reported by the server in an Rerror
// response.
type RemoteError struct {
	Msg string
}

func (e *RemoteError) Error() string {
	return "remote error: " + e.Msg
}

// opError wraps an error with the operation name and remote path for
// context.
func opError(op, path string, err error) error {
	if path == "" {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s %s: %w", op, path, err)
}
