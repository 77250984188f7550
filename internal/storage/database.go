package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"cleanpay/internal/config"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

const defaultMySQLParams = "parseTime=true&charset=utf8mb4"

// Open connects to the database named dbType in cfg.Databases.
func Open(ctx context.Context, dbType string, cfg *config.Config) (*sql.DB, error) {
	dbCfg, ok := cfg.Databases[dbType]
	if !ok {
		return nil, fmt.Errorf("database config for %s not found", dbType)
	}

	var (
		db  *sql.DB
		err error
	)

	switch strings.ToLower(dbType) {
	case "sqlite", "sqlite3":
		if dbCfg.DSN == "" {
			return nil, fmt.Errorf("sqlite dsn must be provided")
		}
		db, err = sql.Open("sqlite3", dbCfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite database: %w", err)
		}
		// Observers write from many sessions at once; one connection avoids
		// SQLITE_BUSY on the shared file.
		db.SetMaxOpenConns(1)
	case "mysql":
		dsn := dbCfg.DSN
		if dsn == "" {
			params := dbCfg.Params
			if params == "" {
				params = defaultMySQLParams
			}
			dsn = fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
				dbCfg.Username,
				dbCfg.Password,
				dbCfg.Host,
				dbCfg.Port,
				dbCfg.DBName,
				params,
			)
		}
		db, err = sql.Open("mysql", dsn)
		if err != nil {
			return nil, fmt.Errorf("open mysql database: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", dbType)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Migrate ensures the required tables are present.
func Migrate(ctx context.Context, db *sql.DB, driver string) error {
	var stmts []string
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS session_events (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				session_id TEXT NOT NULL,
				event TEXT NOT NULL,
				from_state TEXT NOT NULL,
				to_state TEXT NOT NULL,
				download_token TEXT NOT NULL DEFAULT '',
				reference TEXT NOT NULL DEFAULT '',
				currency TEXT NOT NULL DEFAULT '',
				amount INTEGER NOT NULL DEFAULT 0,
				detail TEXT NOT NULL DEFAULT '',
				created_at DATETIME NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_session_events_session ON session_events(session_id, id)`,
			`CREATE INDEX IF NOT EXISTS idx_session_events_reference ON session_events(reference)`,
		}
	case "mysql":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS session_events (
				id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
				session_id VARCHAR(64) NOT NULL,
				event VARCHAR(64) NOT NULL,
				from_state VARCHAR(32) NOT NULL,
				to_state VARCHAR(32) NOT NULL,
				download_token VARCHAR(255) NOT NULL DEFAULT '',
				reference VARCHAR(255) NOT NULL DEFAULT '',
				currency VARCHAR(8) NOT NULL DEFAULT '',
				amount BIGINT NOT NULL DEFAULT 0,
				detail TEXT NOT NULL,
				created_at DATETIME(6) NOT NULL,
				PRIMARY KEY (id),
				INDEX idx_session_events_session (session_id, id),
				INDEX idx_session_events_reference (reference)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		}
	default:
		return fmt.Errorf("unsupported driver for migration: %s", driver)
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate (%s): %w", driver, err)
		}
	}
	return nil
}
