package metrics

import (
	"context"
	"time"
)

// Snapshot is one immutable, timestamped record of derived rates plus
// externally supplied host readings
type Snapshot struct {
	Timestamp           time.Time
	ConnectedClients    int
	UpdatesPerSecond    float64
	AverageUpdateTimeMs float64
	MemoryUsageMb       float64
	CPUUsagePercent     float64
}

// Store defines the interface for snapshot persistence. Insert must
// reject a snapshot whose timestamp key (millisecond resolution)
// already exists with a duplicate_key error.
type Store interface {
	Insert(snapshot *Snapshot) error
	DeleteOlderThan(cutoff time.Time) (int64, error)
	List() ([]*Snapshot, error)
	Latest() (*Snapshot, error)
	Close() error
}

// ResourceUsage is a point-in-time host resource reading
type ResourceUsage struct {
	MemoryUsageMb   float64
	CPUUsagePercent float64
}

// ResourceProvider supplies host resource readings at tick time
type ResourceProvider interface {
	Sample(ctx context.Context) (ResourceUsage, error)
}

// ClientProvider supplies the current connected client count
type ClientProvider interface {
	ConnectedClients() int
}
