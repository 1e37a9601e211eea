package api

import "codeberg.org/mutker/metricsd/internal/errors"

const (
	ErrInvalidConfig = errors.ErrInvalidConfig
	ErrListenFailed  = errors.ErrorCode("api_listen_failed")
)
