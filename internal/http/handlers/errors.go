// Package handlers defines HTTP-layer error codes used across all endpoints.
//
// These symbolic constants are mapped to HTTP responses via the fail()
// helper in this package, giving clients a stable machine-readable taxonomy
// that supplements human-readable messages.
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Domain-specific:
	ErrCodeWebhookFailed = "webhook_failed"
)
