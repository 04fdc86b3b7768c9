package domain

import "errors"

var (
	// The locator could not be turned into a request
	ErrInvalidRequest = errors.New("invalid request")
	// Transport level failure. The underlying cause is wrapped alongside this error
	ErrNetwork = errors.New("network error")
	// The upstream responded with a non-2xx status code
	ErrBadStatus = errors.New("bad status")
	// The upstream responded with 2xx, but no body
	ErrEmptyData = errors.New("empty data")
	// The fetched bytes could not be decoded into the resource type
	ErrDecode = errors.New("decoding error")
	// The fetch was not sent because the upstream host is over its request budget
	ErrRateLimited = errors.New("rate limited")
)
