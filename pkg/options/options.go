// Package options contains reusable configuration blocks for pumpgate
// servers and clients. Each block carries its own defaults, validation,
// and pflag registration.
package options

import (
	"fmt"
	"net"

	"github.com/spf13/pflag"
)

// IOptions defines the methods that an option block must implement.
type IOptions interface {
	// Validate validates all the required options.
	Validate() []error

	// AddFlags adds flags related to a given option block to the specified FlagSet.
	AddFlags(fs *pflag.FlagSet, prefixes ...string)
}

// ValidateAddress takes an address as a string and validates it is a
// host:port form that a listener could bind.
func ValidateAddress(addr string) error {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("%q is not a valid address: %w", addr, err)
	}
	return nil
}
