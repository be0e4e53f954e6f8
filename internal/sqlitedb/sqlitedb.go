// Package sqlitedb opens the embedded SQLite files clipd keeps its boards
// and peer registry in.
//
// Each file gets two handles: a pooled reader and a single-connection
// writer whose transactions begin IMMEDIATE, so a read-then-delete
// transaction never fails half way on a lock upgrade.
package sqlitedb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

const baseParams = "_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"

// DB is a pair of handles on one SQLite file.
type DB struct {
	Read  *sql.DB
	Write *sql.DB
	path  string
}

// Open creates or opens the database at path, creating parent directories.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create database dir: %w", err)
	}

	write, err := open(path + "?" + baseParams + "&_txlock=immediate")
	if err != nil {
		return nil, err
	}
	write.SetMaxOpenConns(1)
	write.SetMaxIdleConns(1)

	read, err := open(path + "?" + baseParams)
	if err != nil {
		write.Close()
		return nil, err
	}

	return &DB{Read: read, Write: write, path: path}, nil
}

func open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// Path returns the database file path.
func (d *DB) Path() string {
	return d.path
}

// Close closes both handles.
func (d *DB) Close() error {
	rerr := d.Read.Close()
	if werr := d.Write.Close(); werr != nil {
		return werr
	}
	return rerr
}

// Migrate applies schema (idempotent DDL) and records version in PRAGMA user_version.
func (d *DB) Migrate(ctx context.Context, schema string, version int) error {
	if _, err := d.Write.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	var current int
	if err := d.Write.QueryRowContext(ctx, "PRAGMA user_version").Scan(&current); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if current > version {
		return fmt.Errorf("database %s has schema version %d, newer than supported %d", d.path, current, version)
	}
	if current == version {
		return nil
	}
	if _, err := d.Write.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", version)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}
