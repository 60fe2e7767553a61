package chain

import "errors"

var (
	// ErrInsufficientFunds means the user's deposited balance cannot cover
	// the requested deduction. This is an expected settlement outcome, not
	// a fault; callers branch on it without string matching.
	ErrInsufficientFunds = errors.New("insufficient deposited balance")

	// ErrSubmissionFailed wraps signing/broadcast faults (network errors,
	// nonce conflicts, node errors, submission timeouts). The deduction
	// never reached the chain.
	ErrSubmissionFailed = errors.New("settlement submission failed")

	// ErrNoAuthorityKey means the server-held signing key is not configured.
	ErrNoAuthorityKey = errors.New("contract authority key not configured")
)
