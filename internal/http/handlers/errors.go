// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// This file centralizes symbolic error code constants that are mapped to HTTP responses
// (via the `fail()` helper in this package). These codes provide clients with a stable,
// machine-readable error taxonomy that supplements human-readable messages.
//
// Conventions:
//   - Codes are lowercase, snake_case, and domain-agnostic unless explicitly noted.
//   - Generic codes (e.g., bad_request, not_found) mirror common HTTP status
//     semantics to aid interoperability.
//   - Mirror-specific codes distinguish "upstream says it does not exist"
//     (not_found) from "the mirror has not fetched it yet" (not_cached).
//   - All error responses must include both an HTTP status and one of these codes.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "not_cached",
//	  "message": "not cached yet, refresh scheduled"
//	}
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Mirror-specific:
	ErrCodeInvalidIdentity     = "invalid_identity"
	ErrCodeNotCached           = "not_cached"
	ErrCodeRefreshAccepted     = "refresh_accepted"
	ErrCodeBadCursor           = "bad_cursor"
	ErrCodeLookupFailed        = "lookup_failed"
	ErrCodeUpstreamUnavailable = "upstream_unavailable"
)
