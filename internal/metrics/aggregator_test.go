package metrics_test

import (
	"context"
	"os"
	"testing"
	"time"

	"codeberg.org/mutker/metricsd/internal/errors"
	"codeberg.org/mutker/metricsd/internal/logger"
	"codeberg.org/mutker/metricsd/internal/metrics"
	"codeberg.org/mutker/metricsd/internal/store"
	"codeberg.org/mutker/metricsd/internal/window"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logger.Init(false, false, true)
	logger.SetLogLevel(logger.FatalLevel)
	os.Exit(m.Run())
}

var base = time.Unix(1_700_000_000, 0)

type stubResources struct {
	usage metrics.ResourceUsage
	err   error
}

func (s *stubResources) Sample(context.Context) (metrics.ResourceUsage, error) {
	return s.usage, s.err
}

type stubClients int

func (s stubClients) ConnectedClients() int { return int(s) }

func newAggregator(t *testing.T, ring *window.Ring, snapshots metrics.Store,
	resources metrics.ResourceProvider, clients metrics.ClientProvider,
) *metrics.Aggregator {
	t.Helper()

	aggregator, err := metrics.NewAggregator(ring, snapshots, resources, clients,
		logger.Default(), 60*time.Second)
	require.NoError(t, err)

	return aggregator
}

func TestTickDerivesRatesFromWindow(t *testing.T) {
	ring := window.New(60)
	ring.Initialize(base)
	ring.Record(base.Add(100*time.Millisecond), 10)
	ring.Record(base.Add(200*time.Millisecond), 20)

	snapshots := store.NewMemory()
	resources := &stubResources{usage: metrics.ResourceUsage{MemoryUsageMb: 100, CPUUsagePercent: 12.5}}
	aggregator := newAggregator(t, ring, snapshots, resources, stubClients(5))

	snapshot, err := aggregator.Tick(context.Background(), base.Add(time.Second))
	require.NoError(t, err)

	assert.InDelta(t, 2.0/60.0, snapshot.UpdatesPerSecond, 1e-9)
	assert.InDelta(t, 15.0, snapshot.AverageUpdateTimeMs, 1e-9)
	assert.Equal(t, 5, snapshot.ConnectedClients)
	assert.InDelta(t, 100.0, snapshot.MemoryUsageMb, 1e-9)
	assert.InDelta(t, 12.5, snapshot.CPUUsagePercent, 1e-9)

	stored, err := snapshots.Latest()
	require.NoError(t, err)
	assert.Equal(t, snapshot.Timestamp.UnixMilli(), stored.Timestamp.UnixMilli())
}

func TestTickIdleWindowIsZeroNotError(t *testing.T) {
	ring := window.New(60)
	ring.Initialize(base)

	aggregator := newAggregator(t, ring, store.NewMemory(), &stubResources{}, stubClients(0))

	snapshot, err := aggregator.Tick(context.Background(), base.Add(70*time.Second))
	require.NoError(t, err)

	assert.Zero(t, snapshot.UpdatesPerSecond)
	assert.Zero(t, snapshot.AverageUpdateTimeMs)
}

func TestTickPrunesBeyondRetention(t *testing.T) {
	ring := window.New(60)
	ring.Initialize(base)

	snapshots := store.NewMemory()
	require.NoError(t, snapshots.Insert(&metrics.Snapshot{Timestamp: base}))
	require.NoError(t, snapshots.Insert(&metrics.Snapshot{Timestamp: base.Add(30 * time.Second)}))

	aggregator := newAggregator(t, ring, snapshots, &stubResources{}, stubClients(0))

	now := base.Add(91 * time.Second)
	_, err := aggregator.Tick(context.Background(), now)
	require.NoError(t, err)

	remaining, err := snapshots.List()
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	for _, snapshot := range remaining {
		assert.False(t, snapshot.Timestamp.Before(now.Add(-60*time.Second)))
	}
}

func TestTickDuplicateTimestampFails(t *testing.T) {
	ring := window.New(60)
	ring.Initialize(base)
	ring.Record(base, 10)

	snapshots := store.NewMemory()
	aggregator := newAggregator(t, ring, snapshots, &stubResources{}, stubClients(0))

	now := base.Add(time.Second)
	_, err := aggregator.Tick(context.Background(), now)
	require.NoError(t, err)

	_, err = aggregator.Tick(context.Background(), now)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrDuplicateKey))

	// Ring state survives the failed insert
	count, total := ring.LiveTotals(now)
	assert.Equal(t, int64(1), count)
	assert.InDelta(t, 10.0, total, 1e-9)

	stored, err := snapshots.List()
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestTickSurvivesResourceProviderFailure(t *testing.T) {
	ring := window.New(60)
	ring.Initialize(base)

	resources := &stubResources{usage: metrics.ResourceUsage{MemoryUsageMb: 256, CPUUsagePercent: 40}}
	aggregator := newAggregator(t, ring, store.NewMemory(), resources, stubClients(1))

	snapshot, err := aggregator.Tick(context.Background(), base.Add(time.Second))
	require.NoError(t, err)
	assert.InDelta(t, 256.0, snapshot.MemoryUsageMb, 1e-9)

	// Provider goes away: the last known reading is reused
	resources.err = errors.New().New(errors.ErrProviderUnavailable)
	snapshot, err = aggregator.Tick(context.Background(), base.Add(2*time.Second))
	require.NoError(t, err)
	assert.InDelta(t, 256.0, snapshot.MemoryUsageMb, 1e-9)
	assert.InDelta(t, 40.0, snapshot.CPUUsagePercent, 1e-9)
}

func TestTickProviderFailureBeforeFirstSuccessZeroes(t *testing.T) {
	ring := window.New(60)
	ring.Initialize(base)

	resources := &stubResources{err: errors.New().New(errors.ErrProviderUnavailable)}
	aggregator := newAggregator(t, ring, store.NewMemory(), resources, stubClients(0))

	snapshot, err := aggregator.Tick(context.Background(), base.Add(time.Second))
	require.NoError(t, err)
	assert.Zero(t, snapshot.MemoryUsageMb)
	assert.Zero(t, snapshot.CPUUsagePercent)
}

func TestTickClampsNegativeProviderValues(t *testing.T) {
	ring := window.New(60)
	ring.Initialize(base)

	resources := &stubResources{usage: metrics.ResourceUsage{MemoryUsageMb: -1, CPUUsagePercent: -2}}
	aggregator := newAggregator(t, ring, store.NewMemory(), resources, stubClients(-3))

	snapshot, err := aggregator.Tick(context.Background(), base.Add(time.Second))
	require.NoError(t, err)
	assert.Zero(t, snapshot.MemoryUsageMb)
	assert.Zero(t, snapshot.CPUUsagePercent)
	assert.Zero(t, snapshot.ConnectedClients)
}

func TestTickCancelledContext(t *testing.T) {
	ring := window.New(60)
	ring.Initialize(base)

	aggregator := newAggregator(t, ring, store.NewMemory(), &stubResources{}, stubClients(0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := aggregator.Tick(ctx, base.Add(time.Second))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrTimeout))
}

func TestNewAggregatorValidation(t *testing.T) {
	ring := window.New(60)

	_, err := metrics.NewAggregator(nil, store.NewMemory(), nil, nil, nil, time.Minute)
	assert.Error(t, err)

	_, err = metrics.NewAggregator(ring, nil, nil, nil, nil, time.Minute)
	assert.Error(t, err)

	_, err = metrics.NewAggregator(ring, store.NewMemory(), nil, nil, nil, 0)
	assert.Error(t, err)
}
