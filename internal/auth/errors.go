package auth

import "errors"

var (
	// ErrUnauthenticated is returned for a missing, unknown or mismatched
	// credential. No usage is recorded for such requests.
	ErrUnauthenticated = errors.New("invalid API key credentials")

	// ErrForbidden is returned for a known credential that may not be used
	// (deactivated or expired key).
	ErrForbidden = errors.New("API key is not usable")

	// ErrKeyNotFound is returned by a KeyStore when no key matches the
	// presented public identifier.
	ErrKeyNotFound = errors.New("API key not found")

	// ErrBadNonce is returned when a login signature does not match the
	// user's current nonce.
	ErrBadNonce = errors.New("signature does not match current nonce")
)
