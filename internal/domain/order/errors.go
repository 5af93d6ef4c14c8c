package order

import "errors"

var (
	// ErrInvalidInput indicates a submission the client refuses to send.
	ErrInvalidInput = errors.New("invalid order input")
	// ErrSubmitFailed indicates the creation call did not succeed. Nothing
	// is recorded locally when it is returned.
	ErrSubmitFailed = errors.New("order submission failed")
	// ErrInvalidResponse indicates a 2xx response without a usable
	// correlation id or total.
	ErrInvalidResponse = errors.New("invalid order response")
	// ErrSessionEnded indicates the session ended before the order could be
	// recorded. The server may still have accepted it.
	ErrSessionEnded = errors.New("session ended before the order was recorded")
)
