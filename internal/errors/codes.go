package errors

// Common error codes
const (
	// System errors
	ErrInternal        ErrorCode = "internal_error"
	ErrInvalidArgument ErrorCode = "invalid_argument"
	ErrUnavailable     ErrorCode = "service_unavailable"

	// Configuration errors
	ErrInvalidConfig   ErrorCode = "invalid_configuration"
	ErrMissingConfig   ErrorCode = "missing_configuration"
	ErrBindFlags       ErrorCode = "bind_flags_failed"
	ErrReadConfig      ErrorCode = "read_config_failed"
	ErrInvalidInterval ErrorCode = "invalid_interval"

	// Logging errors
	ErrInvalidLogLevel ErrorCode = "invalid_log_level"

	// Initialization errors
	ErrInitFailed     ErrorCode = "initialization_failed"
	ErrShutdownFailed ErrorCode = "shutdown_failed"

	// Storage errors
	ErrDuplicateKey      ErrorCode = "duplicate_key"
	ErrNotFound          ErrorCode = "not_found"
	ErrTransactionFailed ErrorCode = "transaction_failed"

	// Provider errors
	ErrProviderUnavailable ErrorCode = "provider_unavailable"

	// Aggregation errors
	ErrRingUninitialized ErrorCode = "ring_uninitialized"
	ErrInvalidSample     ErrorCode = "invalid_sample"

	// Operation errors
	ErrOperationFailed  ErrorCode = "operation_failed"
	ErrTimeout          ErrorCode = "operation_timeout"
	ErrInvalidOperation ErrorCode = "invalid_operation"
)

// Common error messages
var errorMessages = map[ErrorCode]string{
	ErrInternal:            "Internal error occurred",
	ErrInvalidArgument:     "Invalid argument provided",
	ErrUnavailable:         "Service unavailable",
	ErrInvalidConfig:       "Invalid configuration",
	ErrMissingConfig:       "Missing configuration",
	ErrBindFlags:           "Failed to bind flags",
	ErrReadConfig:          "Failed to read config file",
	ErrInvalidInterval:     "Invalid interval value",
	ErrInvalidLogLevel:     "Invalid log level",
	ErrInitFailed:          "Initialization failed",
	ErrShutdownFailed:      "Shutdown failed",
	ErrDuplicateKey:        "Record with the same key already exists",
	ErrNotFound:            "Record not found",
	ErrTransactionFailed:   "Storage transaction failed",
	ErrProviderUnavailable: "Provider unavailable",
	ErrRingUninitialized:   "Metrics window ring not initialized",
	ErrInvalidSample:       "Invalid metrics sample",
	ErrOperationFailed:     "Operation failed",
	ErrTimeout:             "Operation timed out",
	ErrInvalidOperation:    "Invalid operation",
}

// GetErrorMessage returns the message for a given error code
func GetErrorMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}

	return string(code)
}
