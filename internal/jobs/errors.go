package jobs

import "errors"

var (
	// ErrUnexpectedStatus is returned when a fetch receives a non-2xx response
	ErrUnexpectedStatus = errors.New("unexpected response status")

	// ErrBodyTooLarge is returned when a response exceeds the configured limit
	ErrBodyTooLarge = errors.New("response body too large")

	// ErrInvalidURL is returned for URLs that are not absolute http(s) URLs
	ErrInvalidURL = errors.New("invalid fetch URL")
)
