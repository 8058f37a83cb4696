package common

import "errors"

var (

	// repository specific errors
	ErrorNotFound = errors.New("not found")

	// service specific errors
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorForbidden    = errors.New("forbidden")

	// rate limiter specific errors
	ErrorRateLimitExceeded = errors.New("rate limit exceeded")

	// token specific errors
	ErrorTokenMalformed        = errors.New("malformed token")
	ErrorTokenExpired          = errors.New("token expired")
	ErrorTokenInvalidSignature = errors.New("invalid token signature")
)
