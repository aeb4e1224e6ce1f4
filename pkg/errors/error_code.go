package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown ErrorCode = 1

	// Caller errors (100-199): bad input, never retried
	ErrCodeInvalidOrder         ErrorCode = 100
	ErrCodeInvalidConfiguration ErrorCode = 101
	ErrCodeInvalidParameter     ErrorCode = 102
	ErrCodeUnknownInstrument    ErrorCode = 103

	// Resource errors (200-299)
	ErrCodeNotFound         ErrorCode = 200
	ErrCodeAlreadyTerminal  ErrorCode = 201
	ErrCodeUnavailable      ErrorCode = 202
	ErrCodeCapacityExceeded ErrorCode = 203

	// Venue errors (300-399): business rejections and protocol faults
	ErrCodeRejectedByVenue        ErrorCode = 300
	ErrCodeUnsupportedGranularity ErrorCode = 301
	ErrCodeProtocolMismatch       ErrorCode = 302

	// Transport errors (400-499)
	ErrCodeTransientFailure ErrorCode = 400
	ErrCodeExhausted        ErrorCode = 401
	ErrCodeAuthError        ErrorCode = 402

	// Internal errors (500-599)
	ErrCodeInvariantViolation ErrorCode = 500
)
