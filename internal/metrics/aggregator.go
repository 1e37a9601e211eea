package metrics

import (
	"context"
	"time"

	"codeberg.org/mutker/metricsd/internal/errors"
	"codeberg.org/mutker/metricsd/internal/logger"
	"codeberg.org/mutker/metricsd/internal/window"
)

// Aggregator turns the ring's live totals plus provider readings into
// one stored snapshot per tick and enforces the retention horizon.
//
// Tick is driven by a single periodic caller; the providers and store
// may be shared, the aggregator itself is not safe for concurrent Tick.
type Aggregator struct {
	ring      *window.Ring
	store     Store
	resources ResourceProvider
	clients   ClientProvider
	log       logger.Logger
	retention time.Duration
	lastUsage ResourceUsage
}

func NewAggregator(
	ring *window.Ring,
	store Store,
	resources ResourceProvider,
	clients ClientProvider,
	log logger.Logger,
	retention time.Duration,
) (*Aggregator, error) {
	errFactory := errors.New()

	if ring == nil || store == nil {
		return nil, errFactory.WithMessage(ErrInvalidConfig, "aggregator requires a ring and a store")
	}
	if retention <= 0 {
		return nil, errFactory.WithData(ErrInvalidConfig, retention)
	}
	if log == nil {
		log = logger.Default()
	}

	return &Aggregator{
		ring:      ring,
		store:     store,
		resources: resources,
		clients:   clients,
		log:       log,
		retention: retention,
	}, nil
}

// Tick composes and stores one snapshot keyed by now, then prunes
// snapshots older than the retention horizon. A duplicate timestamp key
// is reported to the caller and leaves ring and store state untouched.
// Provider failures never abort a tick: the last known resource reading
// (zero-valued before the first success) is substituted.
func (a *Aggregator) Tick(ctx context.Context, now time.Time) (*Snapshot, error) {
	errFactory := errors.New()

	select {
	case <-ctx.Done():
		return nil, errFactory.Wrap(ErrOperationTimeout, ctx.Err())
	default:
	}

	totalUpdates, totalTime := a.ring.LiveTotals(now)

	// Rate is averaged over the full trailing window, not the last second
	updatesPerSecond := float64(totalUpdates) / float64(a.ring.Size())

	averageUpdateTime := 0.0
	if totalUpdates > 0 {
		averageUpdateTime = totalTime / float64(totalUpdates)
	}

	usage := a.lastUsage
	if a.resources != nil {
		sampled, err := a.resources.Sample(ctx)
		if err != nil {
			a.log.Warn().Err(err).Msg("Resource provider unavailable, using last known reading")
		} else {
			usage = clampUsage(sampled)
			a.lastUsage = usage
		}
	}

	connectedClients := 0
	if a.clients != nil {
		if n := a.clients.ConnectedClients(); n > 0 {
			connectedClients = n
		}
	}

	snapshot := &Snapshot{
		Timestamp:           now,
		ConnectedClients:    connectedClients,
		UpdatesPerSecond:    updatesPerSecond,
		AverageUpdateTimeMs: averageUpdateTime,
		MemoryUsageMb:       usage.MemoryUsageMb,
		CPUUsagePercent:     usage.CPUUsagePercent,
	}

	if err := a.store.Insert(snapshot); err != nil {
		return nil, errFactory.Wrap(ErrSnapshotInsert, err)
	}

	deleted, err := a.store.DeleteOlderThan(now.Add(-a.retention))
	if err != nil {
		// Pruning failure degrades retention, never the metrics stream
		a.log.Error().Err(err).Msg("Failed to prune expired snapshots")
	} else if deleted > 0 {
		a.log.Debug().Int64("deleted", deleted).Msg("Pruned expired snapshots")
	}

	return snapshot, nil
}

func clampUsage(usage ResourceUsage) ResourceUsage {
	if usage.MemoryUsageMb < 0 {
		usage.MemoryUsageMb = 0
	}
	if usage.CPUUsagePercent < 0 {
		usage.CPUUsagePercent = 0
	}

	return usage
}
