package database

import (
	"net/url"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/mbolis/quick-forms/config"
)

const (
	SQLite   = "sqlite3"
	Postgres = "postgres"
)

// Open connects to the configured database and brings its schema up to date.
func Open(cfg config.Config) (db *sqlx.DB, err error) {
	dsn := cfg.DBUrl
	if cfg.DBDriver == SQLite {
		dsn = sqliteDSN(dsn)
	}

	db, err = sqlx.Open(cfg.DBDriver, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open")
	}

	if err = db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "ping")
	}

	// db tuning options
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(2 * time.Hour)

	err = migrateDB(db, cfg.DBDriver)
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "migrate")
	}

	return db, nil
}

// sqliteDSN turns foreign keys on for every pooled connection, not just the
// first one, and lets writers wait on each other instead of failing with SQLITE_BUSY.
func sqliteDSN(path string) string {
	params := url.Values{
		"_foreign_keys": {"on"},
		"_busy_timeout": {"5000"},
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	if !strings.HasPrefix(path, "file:") {
		path = "file:" + path
	}
	return path + sep + params.Encode()
}
