package store

import (
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"codeberg.org/mutker/metricsd/internal/errors"
	"codeberg.org/mutker/metricsd/internal/logger"
	"codeberg.org/mutker/metricsd/internal/metrics"
	"github.com/mattn/go-sqlite3"
)

type sqliteStore struct {
	db     *sql.DB
	logger logger.Logger
	cfg    Config
}

// NewSQLite opens (or creates) the snapshot database and validates its
// schema. The returned store is safe for concurrent use; database/sql
// serializes access to the single sqlite connection pool.
func NewSQLite(cfg Config, log logger.Logger) (metrics.Store, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_directory",
			Path:  cfg.DBPath,
			Error: err.Error(),
		})
	}

	// WAL keeps 1 Hz inserts from blocking readers
	dsn := cfg.DBPath + "?_journal=WAL&_auto_vacuum=2"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "open_database",
			Error: err.Error(),
		})
	}

	if err := ValidateAndUpdateSchema(db, cfg.DBPath, log); err != nil {
		db.Close()
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "schema_version",
			Error: err.Error(),
		})
	}

	log.Info().
		Str("path", cfg.DBPath).
		Int("schema_version", SchemaVersion).
		Msg("Snapshot store initialized")

	return &sqliteStore{
		db:     db,
		logger: log,
		cfg:    cfg,
	}, nil
}

func (s *sqliteStore) Insert(snapshot *metrics.Snapshot) error {
	errFactory := errors.New()

	if snapshot == nil {
		return errFactory.New(errors.ErrInvalidArgument)
	}

	_, err := s.db.Exec(insertSnapshotSQL,
		snapshot.Timestamp.UnixMilli(),
		int64(snapshot.ConnectedClients),
		snapshot.UpdatesPerSecond,
		snapshot.AverageUpdateTimeMs,
		snapshot.MemoryUsageMb,
		snapshot.CPUUsagePercent,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return errFactory.WithData(ErrDuplicateKey, snapshot.Timestamp.UnixMilli())
		}

		return errFactory.Wrap(ErrStorageAccess, err)
	}

	return nil
}

func (s *sqliteStore) DeleteOlderThan(cutoff time.Time) (int64, error) {
	errFactory := errors.New()

	result, err := s.db.Exec(`DELETE FROM snapshots WHERE timestamp_ms < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, errFactory.Wrap(ErrStorageAccess, err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, errFactory.Wrap(ErrStorageAccess, err)
	}

	return deleted, nil
}

func (s *sqliteStore) List() ([]*metrics.Snapshot, error) {
	errFactory := errors.New()

	rows, err := s.db.Query(selectSnapshotsSQL + ` ORDER BY timestamp_ms ASC`)
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}
	defer rows.Close()

	var snapshots []*metrics.Snapshot
	for rows.Next() {
		snapshot, err := scanSnapshot(rows.Scan)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snapshot)
	}
	if err := rows.Err(); err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}

	return snapshots, nil
}

func (s *sqliteStore) Latest() (*metrics.Snapshot, error) {
	errFactory := errors.New()

	row := s.db.QueryRow(selectSnapshotsSQL + ` ORDER BY timestamp_ms DESC LIMIT 1`)

	snapshot, err := scanSnapshot(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errFactory.New(ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	return snapshot, nil
}

func (s *sqliteStore) Close() error {
	errFactory := errors.New()

	// Checkpoint WAL and cleanup on close
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return errFactory.WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "checkpoint_wal",
			Error: err.Error(),
		})
	}

	if err := s.db.Close(); err != nil {
		return errFactory.WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "close_database",
			Error: err.Error(),
		})
	}

	s.logger.Info().Msg("Snapshot store closed gracefully")

	return nil
}

func scanSnapshot(scan func(dest ...any) error) (*metrics.Snapshot, error) {
	var (
		timestampMs int64
		clients     int64
		snapshot    metrics.Snapshot
	)

	err := scan(
		&timestampMs,
		&clients,
		&snapshot.UpdatesPerSecond,
		&snapshot.AverageUpdateTimeMs,
		&snapshot.MemoryUsageMb,
		&snapshot.CPUUsagePercent,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}

		return nil, errors.New().Wrap(ErrStorageAccess, err)
	}

	snapshot.Timestamp = time.UnixMilli(timestampMs).UTC()
	snapshot.ConnectedClients = int(clients)

	return &snapshot, nil
}
