// Package data persists batch runs and their prediction results in SQLite
// or Postgres.
package data

import (
	"embed"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

const (
	DataFileName string = "data.db"

	driverSQLite   = "sqlite"
	driverPostgres = "postgres"

	schemaVersion = 1
)

var (
	//go:embed sql/*
	f embed.FS

	errDBNotInitialized = errors.New("database not initialized")

	// deleted in this order on reset
	tables = []string{"batch_failure", "results", "batch_run"}
)

func init() {
	sqlx.BindDriver(driverSQLite, sqlx.QUESTION)
}

// DriverFor returns the driver name for a DSN: Postgres URLs use lib/pq,
// anything else is taken as a SQLite file path.
func DriverFor(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return driverPostgres
	}
	return driverSQLite
}

// GetDB opens the database for dsn. The schema is not touched; call Init.
func GetDB(dsn string) (*sqlx.DB, error) {
	if dsn == "" {
		return nil, errors.New("dsn not specified")
	}

	driver := DriverFor(dsn)
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s database", driver)
	}

	if driver == driverSQLite {
		// single writer
		db.SetMaxOpenConns(1)
	}

	return db, nil
}

// Init applies the embedded schema. It is safe to call on an existing
// database.
func Init(db *sqlx.DB) error {
	if db == nil {
		return errDBNotInitialized
	}

	slog.Debug("applying db schema", "driver", db.DriverName())
	b, err := f.ReadFile("sql/ddl.sql")
	if err != nil {
		return errors.Wrap(err, "failed to read the schema creation file")
	}
	if _, err := db.Exec(string(b)); err != nil {
		return errors.Wrap(err, "failed to create database schema")
	}

	var n int
	if err := db.Get(&n, db.Rebind("SELECT COUNT(*) FROM schema_version WHERE version = ?"), schemaVersion); err != nil {
		return errors.Wrap(err, "failed to read schema version")
	}
	if n == 0 {
		q := db.Rebind("INSERT INTO schema_version (version, applied_at) VALUES (?, ?)")
		if _, err := db.Exec(q, schemaVersion, time.Now().UTC().Format(time.RFC3339)); err != nil {
			return errors.Wrap(err, "failed to record schema version")
		}
	}

	slog.Debug("db schema ready", "version", schemaVersion)
	return nil
}

// Open is GetDB followed by Init.
func Open(dsn string) (*sqlx.DB, error) {
	db, err := GetDB(dsn)
	if err != nil {
		return nil, err
	}
	if err := Init(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
