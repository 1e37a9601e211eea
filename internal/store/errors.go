package store

import "codeberg.org/mutker/metricsd/internal/errors"

const (
	// Configuration errors
	ErrInvalidConfig = errors.ErrInvalidConfig
	ErrInvalidDBPath = errors.ErrorCode("store_invalid_db_path")

	// Schema errors
	ErrSchemaInitFailed       = errors.ErrorCode("store_schema_init_failed")
	ErrSchemaValidationFailed = errors.ErrorCode("store_schema_validation_failed")

	// Storage errors
	ErrDuplicateKey      = errors.ErrDuplicateKey
	ErrNotFound          = errors.ErrNotFound
	ErrTransactionFailed = errors.ErrTransactionFailed
	ErrStorageAccess     = errors.ErrorCode("store_access_failed")
	ErrStorageInit       = errors.ErrInitFailed
	ErrStorageClose      = errors.ErrShutdownFailed
)
