package apperror

// Code represents a unique error code for the application
type Code string

// General error codes
const (
	CodeInvalidInput       Code = "INVALID_INPUT"
	CodeConfigurationError Code = "CONFIGURATION_ERROR"
	CodeInternalError      Code = "INTERNAL_ERROR"
	CodeUnknownError       Code = "UNKNOWN_ERROR"
)

// Query-specific error codes
const (
	// Input validation
	CodeInvalidHash    Code = "INVALID_TX_HASH"
	CodeInvalidAddress Code = "INVALID_ADDRESS"

	// Normal "nothing there" results
	CodeTxNotFound    Code = "TX_NOT_FOUND"
	CodeBlockNotFound Code = "BLOCK_NOT_FOUND"

	// Per-attempt provider failures; recovered by rotation, never surfaced
	// alone to callers
	CodeProviderError   Code = "PROVIDER_ERROR"
	CodeProviderTimeout Code = "PROVIDER_TIMEOUT"
	CodeIncompleteData  Code = "INCOMPLETE_DATA"

	// Terminal failure for a call: every configured endpoint failed
	CodeAllProvidersUnavailable Code = "ALL_PROVIDERS_UNAVAILABLE"

	// Circuit breaker
	CodeCircuitOpen Code = "CIRCUIT_OPEN"
)
