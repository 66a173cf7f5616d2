package catalog

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// OpenSQLite opens the catalog database at path and configures its
// connection pool. The catalog file is small and read-mostly; the pool
// is capped at a single connection, which avoids SQLITE_BUSY during CSV
// ingestion and serializes all reads and writes through that connection.
func OpenSQLite(path string, logger *zap.Logger) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite catalog: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite catalog: %w", err)
	}

	if logger != nil {
		logger.Info("catalog database connection established", zap.String("path", path))
	}
	return db, nil
}
