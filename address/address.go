// Package address holds the ServerAddress type used to identify a single
// node throughout the driver: topology maps, pool keys, and selection
// results are all keyed on it.
package address

import (
	"net"
	"strings"
)

// DefaultPort is the default port used when an address does not specify one.
const DefaultPort = "27017"

// Address is a network or Unix-domain address for a single server. Equality
// and hashing are structural: two Addresses are equal iff Canonicalize
// produces the same string.
type Address string

// Network returns "unix" for a Unix-domain socket path, else "tcp".
func (a Address) Network() string {
	if strings.HasSuffix(string(a), ".sock") {
		return "unix"
	}
	return "tcp"
}

// String returns the canonical host:port form.
func (a Address) String() string {
	if a.Network() == "unix" {
		return string(a)
	}
	s := string(a)
	if s == "" {
		return net.JoinHostPort("localhost", DefaultPort)
	}
	if _, _, err := net.SplitHostPort(s); err != nil {
		return net.JoinHostPort(s, DefaultPort)
	}
	return s
}

// Canonicalize returns an Address in canonical lower-case host:port form,
// suitable for use as a map key.
func (a Address) Canonicalize() Address {
	return Address(strings.ToLower(a.String()))
}
