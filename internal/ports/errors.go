package ports

import "errors"

// Standard application-level errors.
// Adapters wrap underlying infrastructure errors with these standard errors
// so the core can branch on error class without knowing the venue.
var (
	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Exchange Specific Errors
	ErrExchangeUnavailable  = errors.New("exchange API is unavailable")
	ErrConnectionFailed     = errors.New("failed to connect to the exchange")
	ErrRateLimited          = errors.New("API rate limit exceeded")
	ErrAuthenticationFailed = errors.New("exchange authentication failed (check API keys)")
	ErrInvalidAPIKeys       = errors.New("invalid API keys or permissions")

	// ErrMarginInsufficient is the only rejection class the order executor
	// retries, via the bounded shrink path.
	ErrMarginInsufficient = errors.New("margin insufficient for order")

	ErrOrderNotFound    = errors.New("order not found on the exchange")
	ErrPositionNotFound = errors.New("position not found on the exchange")
	ErrOrderRejected    = errors.New("order rejected by the exchange")
	ErrCancelFailed     = errors.New("failed to cancel conditional order")

	// Decision Errors
	ErrDecisionParse = errors.New("model output could not be parsed into a decision")

	// Database Specific Errors
	ErrDuplicateEntry = errors.New("database record already exists")
	ErrDBConnection   = errors.New("database connection error")
	ErrQueryFailed    = errors.New("database query failed")
)
