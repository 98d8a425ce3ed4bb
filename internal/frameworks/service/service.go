// Package service defines the HTTP service contract and its constructor registry.
package service

import (
	"log/slog"
	"net/http"
)

// Service is a group of handlers mounted under a common prefix.
type Service interface {
	// Handler returns the routed handler for the service.
	Handler() http.Handler
	// Prefix is the mount path without slashes, e.g. "app".
	Prefix() string
	// Close releases resources held by the service. It is called during
	// shutdown in reverse construction order.
	Close() error
}

// NewService builds a service from its [http.services.<name>] section.
type NewService func(conf map[string]any, log *slog.Logger) (Service, error)
