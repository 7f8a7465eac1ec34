package config

import (
	"fmt"
	"strings"

	"github.com/multiformats/go-multiaddr"
)

// ValidationError represents a single validation error with context.
type ValidationError struct {
	Path    string // e.g., "node.listen_addresses[0]"
	Message string // e.g., "invalid multiaddr"
	Hint    string // e.g., "expected /ip{4,6}/.../tcp/<port>"
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s; %s", e.Path, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Validate checks the entire config. It aggregates all errors and returns
// them, allowing the caller to print every issue at once.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateNode()...)
	errs = append(errs, c.validateMux()...)
	errs = append(errs, c.validateGateway()...)

	return errs
}

func (c *Config) validateNode() []error {
	var errs []error

	if len(c.Node.ListenAddresses) == 0 {
		errs = append(errs, ValidationError{
			Path:    "node.listen_addresses",
			Message: "must not be empty",
			Hint:    "e.g. /ip4/127.0.0.1/tcp/0",
		})
	}
	for i, addr := range c.Node.ListenAddresses {
		if _, err := multiaddr.NewMultiaddr(addr); err != nil {
			errs = append(errs, ValidationError{
				Path:    fmt.Sprintf("node.listen_addresses[%d]", i),
				Message: "invalid multiaddr",
				Hint:    err.Error(),
			})
		}
	}
	for i, addr := range c.Node.BootstrapPeers {
		if _, err := multiaddr.NewMultiaddr(addr); err != nil {
			errs = append(errs, ValidationError{
				Path:    fmt.Sprintf("node.bootstrap_peers[%d]", i),
				Message: "invalid multiaddr",
				Hint:    err.Error(),
			})
		}
	}

	return errs
}

func (c *Config) validateMux() []error {
	var errs []error

	switch c.Mux.PayloadEncoding {
	case "", "json", "base64":
	default:
		errs = append(errs, ValidationError{
			Path:    "mux.payload_encoding",
			Message: fmt.Sprintf("unsupported encoding %q", c.Mux.PayloadEncoding),
			Hint:    "expected json or base64",
		})
	}

	if strings.Contains(c.Mux.Namespace, " ") {
		errs = append(errs, ValidationError{
			Path:    "mux.namespace",
			Message: "must not contain spaces",
		})
	}

	return errs
}

func (c *Config) validateGateway() []error {
	var errs []error

	if c.Gateway.ListenAddr == "" {
		errs = append(errs, ValidationError{
			Path:    "gateway.listen_addr",
			Message: "must not be empty",
			Hint:    "e.g. :8080",
		})
	}

	return errs
}
