package store

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	"codeberg.org/mutker/metricsd/internal/errors"
	"codeberg.org/mutker/metricsd/internal/logger"
)

const (
	SchemaVersion = 1

	// SQL statements derived from schema
	createTablesSQL = `
	   CREATE TABLE IF NOT EXISTS schema_versions (
	       version     INTEGER PRIMARY KEY,
	       applied_at  TEXT NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS snapshots (
	       timestamp_ms           INTEGER PRIMARY KEY,
	       connected_clients      INTEGER NOT NULL CHECK (connected_clients >= 0),
	       updates_per_second     REAL NOT NULL CHECK (updates_per_second >= 0),
	       average_update_time_ms REAL NOT NULL CHECK (average_update_time_ms >= 0),
	       memory_usage_mb        REAL NOT NULL CHECK (memory_usage_mb >= 0),
	       cpu_usage_percent      REAL NOT NULL CHECK (cpu_usage_percent >= 0)
	   );`

	insertSnapshotSQL = `
    INSERT INTO snapshots (
        timestamp_ms,
        connected_clients,
        updates_per_second, average_update_time_ms,
        memory_usage_mb, cpu_usage_percent
    ) VALUES (?, ?, ?, ?, ?, ?)`

	selectSnapshotsSQL = `
    SELECT timestamp_ms,
           connected_clients,
           updates_per_second, average_update_time_ms,
           memory_usage_mb, cpu_usage_percent
    FROM snapshots`
)

// InitSchema creates a new database schema with the current version
func InitSchema(db *sql.DB, log logger.Logger) error {
	errFactory := errors.New()

	tx, err := db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				log.Debug().Err(err).Msg("Failed to rollback transaction")
			}
		}
	}()

	if _, err := tx.Exec(createTablesSQL); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Error string
			SQL   string
		}{
			Error: err.Error(),
			SQL:   createTablesSQL,
		})
	}

	if _, err := tx.Exec(`
        INSERT INTO schema_versions (version, applied_at)
        VALUES (?, datetime('now'))
    `, SchemaVersion); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Error string
			Phase string
		}{
			Error: err.Error(),
			Phase: "record_version",
		})
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}
	committed = true

	log.Info().
		Int("version", SchemaVersion).
		Msg("Schema initialized successfully")

	return nil
}

// GetSchemaVersion returns the current schema version, 0 when no schema exists
func GetSchemaVersion(db *sql.DB) (int, error) {
	errFactory := errors.New()

	exists, err := TableExists(db, "schema_versions")
	if err != nil {
		return 0, errFactory.Wrap(ErrSchemaValidationFailed, err)
	}
	if !exists {
		return 0, nil
	}

	var version int
	err = db.QueryRow(`
        SELECT version
        FROM schema_versions
        ORDER BY version DESC
        LIMIT 1
    `).Scan(&version)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errFactory.WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Error string
		}{
			Phase: "get_version",
			Error: err.Error(),
		})
	}

	return version, nil
}

// TableExists checks if a table exists
func TableExists(db *sql.DB, tableName string) (bool, error) {
	errFactory := errors.New()

	var exists bool
	err := db.QueryRow(`
        SELECT EXISTS (
            SELECT 1 FROM sqlite_master
            WHERE type='table' AND name=?
        )
    `, tableName).Scan(&exists)
	if err != nil {
		return false, errFactory.WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Table string
			Error string
		}{
			Phase: "check_table_exists",
			Table: tableName,
			Error: err.Error(),
		})
	}

	return exists, nil
}

// ValidateAndUpdateSchema initializes a missing schema and recreates an
// outdated one after taking a backup of the old database file.
func ValidateAndUpdateSchema(db *sql.DB, dbPath string, log logger.Logger) error {
	errFactory := errors.New()

	version, err := GetSchemaVersion(db)
	if err != nil {
		return err
	}

	if version == SchemaVersion {
		return nil
	}

	if version == 0 {
		return InitSchema(db, log)
	}

	backupPath, err := backupDatabase(db, dbPath, version, log)
	if err != nil {
		return err
	}
	log.Warn().
		Int("found_version", version).
		Int("want_version", SchemaVersion).
		Str("backup", backupPath).
		Msg("Schema version mismatch, recreating schema")

	if _, err := db.Exec(`DROP TABLE IF EXISTS snapshots; DROP TABLE IF EXISTS schema_versions;`); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	return InitSchema(db, log)
}

func backupDatabase(db *sql.DB, dbPath string, version int, log logger.Logger) (string, error) {
	errFactory := errors.New()

	timestamp := time.Now().UTC().Format("20060102T150405Z")
	backupPath := filepath.Join(filepath.Dir(dbPath),
		fmt.Sprintf("snapshots_v%d_%s.db", version, timestamp))

	// VACUUM INTO requires no active transaction
	if _, err := db.Exec(fmt.Sprintf("VACUUM INTO '%s'", backupPath)); err != nil {
		return "", errFactory.WithData(ErrSchemaInitFailed, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_backup",
			Path:  backupPath,
			Error: err.Error(),
		})
	}

	log.Info().
		Str("path", backupPath).
		Int("version", version).
		Msg("Database backup created")

	return backupPath, nil
}
