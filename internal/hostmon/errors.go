package hostmon

import "codeberg.org/mutker/metricsd/internal/errors"

const (
	ErrSampleFailed = errors.ErrProviderUnavailable
)
