// Package gateways defines interfaces for external service adapters.
package gateways

import "context"

// TokenProvider produces the Authorization header value for vendor API calls
type TokenProvider interface {
	// AuthHeader returns the full header value, e.g. "Bearer <token>" or "Basic <creds>".
	// Failures wrap entities.ErrAuthFailure.
	AuthHeader(ctx context.Context) (string, error)
}
