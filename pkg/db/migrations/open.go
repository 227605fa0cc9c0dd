package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// OpenSQLite opens (creating if needed) the SQLite database at dbPath and
// brings its schema up to date.
func OpenSQLite(dbPath string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("error creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	// SQLite allows one writer; serializing at the pool keeps every
	// ledger transaction on a single connection.
	db.SetMaxOpenConns(1)

	migrator, err := NewMigrator(db, DialectSQLite)
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := migrator.MigrateUp(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error migrating database: %w", err)
	}

	return db, nil
}

// OpenPostgres connects a pgx pool to connString, migrates the schema and
// returns the pool together with a database/sql handle sharing it.
func OpenPostgres(ctx context.Context, connString string) (*pgxpool.Pool, *sql.DB, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("unable to ping database: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)

	migrator, err := NewMigrator(db, DialectPostgres)
	if err != nil {
		db.Close()
		pool.Close()
		return nil, nil, err
	}
	if err := migrator.MigrateUp(); err != nil {
		db.Close()
		pool.Close()
		return nil, nil, fmt.Errorf("error migrating database: %w", err)
	}

	return pool, db, nil
}
