// Package store is the per-board clip history: an append-only SQLite table
// keyed by time-ordered ids.
//
// Every mutation runs in an explicit transaction. Readers that begin after
// a commit see all of it or none of it.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	"github.com/bft-labs/clipd/internal/domain"
	"github.com/bft-labs/clipd/internal/sqlitedb"
)

//go:embed schema.sql
var schemaSQL string

const schemaVersion = 1

// Order is a scan direction by id.
type Order int

const (
	// Forward scans oldest first.
	Forward Order = iota
	// Reverse scans newest first.
	Reverse
)

func (o Order) sql() string {
	if o == Reverse {
		return "DESC"
	}
	return "ASC"
}

// Store is one board's clip table.
type Store struct {
	db *sqlitedb.DB
}

// Open creates or opens the store file at path.
func Open(path string) (*Store, error) {
	db, err := sqlitedb.Open(path)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(context.Background(), schemaSQL, schemaVersion); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the store file path.
func (s *Store) Path() string {
	return s.db.Path()
}

// Store validates payload, assigns the next id and commits the entry.
func (s *Store) Store(ctx context.Context, payload []byte, application string) (domain.ClipEntry, error) {
	entry, err := domain.NewClip(payload, application)
	if err != nil {
		return domain.ClipEntry{}, err
	}
	if _, err := s.Insert(ctx, entry); err != nil {
		return domain.ClipEntry{}, err
	}
	return entry, nil
}

// Insert commits an entry that already carries an id, as received from a
// peer. It reports false when an entry with that id already exists.
func (s *Store) Insert(ctx context.Context, entry domain.ClipEntry) (bool, error) {
	if err := domain.ValidatePayload(entry.Payload); err != nil {
		return false, err
	}

	var added bool
	err := s.Update(ctx, func(tx *Tx) error {
		res, err := tx.tx.ExecContext(ctx,
			`INSERT INTO clips (id, epoch, payload, application) VALUES (?, ?, ?, ?)
			 ON CONFLICT(id) DO NOTHING`,
			entry.ID[:], entry.Epoch, entry.Payload, entry.Application)
		if err != nil {
			return fmt.Errorf("insert clip: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		added = n > 0
		return nil
	})
	return added, err
}

// Remove deletes the entry with the given id. Removing a missing id is not an error.
func (s *Store) Remove(ctx context.Context, id domain.ClipID) error {
	return s.Update(ctx, func(tx *Tx) error {
		return tx.Delete(id)
	})
}

// Wipe deletes every entry and returns how many were removed.
func (s *Store) Wipe(ctx context.Context) (int64, error) {
	var n int64
	err := s.Update(ctx, func(tx *Tx) error {
		res, err := tx.tx.ExecContext(ctx, `DELETE FROM clips`)
		if err != nil {
			return fmt.Errorf("wipe clips: %w", err)
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}

// Count returns the number of entries.
func (s *Store) Count(ctx context.Context) (uint64, error) {
	var n uint64
	if err := s.db.Read.QueryRowContext(ctx, `SELECT COUNT(*) FROM clips`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count clips: %w", err)
	}
	return n, nil
}

// Nth returns the entry at index, counting from 0 at the newest.
func (s *Store) Nth(ctx context.Context, index int) (domain.ClipEntry, error) {
	if index < 0 {
		return domain.ClipEntry{}, domain.ErrNotFound
	}
	row := s.db.Read.QueryRowContext(ctx,
		`SELECT id, epoch, payload, application FROM clips ORDER BY id DESC LIMIT 1 OFFSET ?`, index)
	entry, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return domain.ClipEntry{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.ClipEntry{}, fmt.Errorf("read clip %d: %w", index, err)
	}
	return entry, nil
}

// Since returns entries whose epoch is strictly after epoch, oldest first.
func (s *Store) Since(ctx context.Context, epoch int64) ([]domain.ClipEntry, error) {
	rows, err := s.db.Read.QueryContext(ctx,
		`SELECT id, epoch, payload, application FROM clips WHERE epoch > ? ORDER BY id ASC`, epoch)
	if err != nil {
		return nil, fmt.Errorf("query clips since %d: %w", epoch, err)
	}
	defer rows.Close()

	var out []domain.ClipEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// Update runs fn inside one write transaction, committing if fn returns nil.
func (s *Store) Update(ctx context.Context, fn func(*Tx) error) error {
	sqlTx, err := s.db.Write.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&Tx{tx: sqlTx, ctx: ctx}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(r rowScanner) (domain.ClipEntry, error) {
	var (
		entry domain.ClipEntry
		id    []byte
	)
	if err := r.Scan(&id, &entry.Epoch, &entry.Payload, &entry.Application); err != nil {
		return domain.ClipEntry{}, err
	}
	if len(id) != len(entry.ID) {
		return domain.ClipEntry{}, fmt.Errorf("clip id has %d bytes", len(id))
	}
	copy(entry.ID[:], id)
	return entry, nil
}
