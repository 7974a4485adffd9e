package vision

import "errors"

var (
	// ErrMissingCredential means neither the caller nor the configuration
	// supplied an API key.
	ErrMissingCredential = errors.New("vision api key not configured")

	// ErrUnauthorized maps HTTP 401 from the provider.
	ErrUnauthorized = errors.New("vision api key rejected")

	// ErrRateLimited maps HTTP 429 from the provider.
	ErrRateLimited = errors.New("vision request rate limited")

	// ErrRemoteService covers any other non-2xx provider response.
	ErrRemoteService = errors.New("vision service error")

	// ErrSchema means the model reply could not be decoded into a full
	// analysis result.
	ErrSchema = errors.New("vision response schema error")
)
