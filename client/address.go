package client

import (
	"fmt"
	"net"
	"strings"
)

// DefaultPort is the registered 9P port, used when an address does not name
// one.
const DefaultPort = "564"

// ParseAddress splits a dial string into a network and an address usable
// with net.Dial. The accepted forms are the traditional bang-separated ones:
//
//	unix!/path/to/socket
//	tcp!host!port
//	tcp!host
//
// A plain "host" or "host:port" is treated as tcp.
func ParseAddress(addr string) (string, string, error) {
	if addr == "" {
		return "", "", fmt.Errorf("%w: empty address", ErrInvalidAddress)
	}

	parts := strings.Split(addr, "!")
	if len(parts) == 1 {
		host := parts[0]
		if _, _, err := net.SplitHostPort(host); err != nil {
			host = net.JoinHostPort(host, DefaultPort)
		}
		return "tcp", host, nil
	}

	switch parts[0] {
	case "unix":
		if len(parts) != 2 || parts[1] == "" {
			return "", "", fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
		}
		return "unix", parts[1], nil
	case "tcp":
		switch len(parts) {
		case 2:
			return "tcp", net.JoinHostPort(parts[1], DefaultPort), nil
		case 3:
			return "tcp", net.JoinHostPort(parts[1], parts[2]), nil
		}
		return "", "", fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	default:
		return "", "", fmt.Errorf("%w: unsupported network %q", ErrInvalidAddress, parts[0])
	}
}
