package apperror

// messages maps error codes to human-readable messages
var messages = map[Code]string{
	CodeInvalidInput:       "Invalid input provided",
	CodeConfigurationError: "Configuration error",
	CodeInternalError:      "Internal error",
	CodeUnknownError:       "An unknown error occurred",

	CodeInvalidHash:    "Malformed transaction hash",
	CodeInvalidAddress: "Malformed address",

	CodeTxNotFound:    "Transaction not found",
	CodeBlockNotFound: "Block not found",

	CodeProviderError:   "RPC provider call failed",
	CodeProviderTimeout: "RPC provider call timed out",
	CodeIncompleteData:  "Provider returned incomplete data",

	CodeAllProvidersUnavailable: "All configured RPC endpoints failed",

	CodeCircuitOpen: "Circuit breaker is open",
}
