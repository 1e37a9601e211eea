package metrics

import "codeberg.org/mutker/metricsd/internal/errors"

const (
	// Configuration errors
	ErrInvalidConfig = errors.ErrInvalidConfig

	// Storage errors
	ErrDuplicateKey   = errors.ErrDuplicateKey
	ErrSnapshotInsert = errors.ErrorCode("metrics_snapshot_insert_failed")
	ErrSnapshotPrune  = errors.ErrorCode("metrics_snapshot_prune_failed")

	// Provider errors
	ErrProviderUnavailable = errors.ErrProviderUnavailable

	// Operation errors
	ErrOperationTimeout = errors.ErrTimeout
)
