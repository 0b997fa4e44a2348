// Package errkind classifies the outcomes the forwarding engine can
// produce so that the router and the CLI entrypoint can map them to an
// HTTP status or a process exit code without either of them
// needing to know which component raised the error.
package errkind

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind distinguishes the failure outcomes the engine can produce. It is not a Go type
// hierarchy: every Kind wraps a plain error and is recovered with GetKind.
type Kind int

const (
	// None is the zero value: no error, or an error nobody categorized.
	None = Kind(iota)
	// DiscoveryFailed: the cluster CLI exited non-zero or produced
	// unparseable JSON during startup discovery. Fatal.
	DiscoveryFailed
	// TunnelOpenFailed: the port-forward subprocess could not be spawned,
	// or its first stdout line didn't match the expected pattern.
	TunnelOpenFailed
	// NoRoute: no descriptor matched (host, path).
	NoRoute
	// MissingHost: the client sent no Host header.
	MissingHost
	// UpstreamFailed: the upstream HTTP dispatch failed.
	UpstreamFailed
)

func (k Kind) String() string {
	switch k {
	case DiscoveryFailed:
		return "DiscoveryFailed"
	case TunnelOpenFailed:
		return "TunnelOpenFailed"
	case NoRoute:
		return "NoRoute"
	case MissingHost:
		return "MissingHost"
	case UpstreamFailed:
		return "UpstreamFailed"
	default:
		return "None"
	}
}

// StatusCode returns the HTTP status this Kind is surfaced as at the router
// boundary. Kinds with no HTTP meaning (DiscoveryFailed, which is fatal
// during startup and never reaches the router) return 0.
func (k Kind) StatusCode() int {
	switch k {
	case TunnelOpenFailed, UpstreamFailed:
		return http.StatusBadGateway
	case NoRoute:
		return http.StatusNotFound
	case MissingHost:
		return http.StatusBadRequest
	default:
		return 0
	}
}

type kindError struct {
	error
	kind Kind
}

// New wraps err with the given Kind. Returns nil if err is nil.
func (k Kind) New(err error) error {
	if err == nil {
		return nil
	}
	return &kindError{error: err, kind: k}
}

// Newf builds a new Kind-tagged error from a format string, analogous to
// fmt.Errorf; %w works as usual.
func (k Kind) Newf(format string, a ...interface{}) error {
	return &kindError{error: fmt.Errorf(format, a...), kind: k}
}

func (ke *kindError) Unwrap() error {
	return ke.error
}

// GetKind recovers the Kind attached to err by New/Newf, walking the Unwrap
// chain. Returns None for nil or uncategorized errors.
func GetKind(err error) Kind {
	if err == nil {
		return None
	}
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind
	}
	return None
}
