package ledger

import "errors"

// Domain error kinds. Operations wrap these with fmt.Errorf("%w: ...") so
// callers can branch with errors.Is while still getting a readable reason.
// Store failures and other unexpected errors are returned unwrapped and do
// not match any of these.
var (
	// ErrValidation marks malformed or out-of-range input, rejected before any
	// state is touched.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks a missing loan or client.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState marks an operation attempted from a status that forbids
	// it, such as a payment on a cancelled loan.
	ErrInvalidState = errors.New("invalid loan state")

	// ErrIneligibleClient marks an origination attempt for a blocked client.
	ErrIneligibleClient = errors.New("client not eligible")

	// ErrNoBalance marks a payment attempt on an already-settled loan.
	ErrNoBalance = errors.New("loan has no outstanding balance")
)
