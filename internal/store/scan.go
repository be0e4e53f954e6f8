package store

import (
	"context"
	"database/sql"
	"fmt"
	"iter"

	"github.com/bft-labs/clipd/internal/domain"
)

// Scan iterates entries in id order inside one read transaction, so the
// sequence is a consistent snapshot. Rows are fetched lazily; stopping the
// loop early releases the transaction.
func (s *Store) Scan(ctx context.Context, order Order) iter.Seq2[domain.ClipEntry, error] {
	return func(yield func(domain.ClipEntry, error) bool) {
		tx, err := s.db.Read.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
		if err != nil {
			yield(domain.ClipEntry{}, fmt.Errorf("begin read transaction: %w", err))
			return
		}
		defer tx.Rollback()

		scanRows(ctx, tx, order, yield)
	}
}

// Tx is a write transaction handed to Store.Update.
type Tx struct {
	tx  *sql.Tx
	ctx context.Context
}

// Scan iterates entries inside the transaction. Deletes must wait until the
// loop has finished.
func (t *Tx) Scan(order Order) iter.Seq2[domain.ClipEntry, error] {
	return func(yield func(domain.ClipEntry, error) bool) {
		scanRows(t.ctx, t.tx, order, yield)
	}
}

// Delete removes the entry with the given id.
func (t *Tx) Delete(id domain.ClipID) error {
	if _, err := t.tx.ExecContext(t.ctx, `DELETE FROM clips WHERE id = ?`, id[:]); err != nil {
		return fmt.Errorf("delete clip %s: %w", id, err)
	}
	return nil
}

// Count returns the number of entries as seen by the transaction.
func (t *Tx) Count() (uint64, error) {
	var n uint64
	if err := t.tx.QueryRowContext(t.ctx, `SELECT COUNT(*) FROM clips`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count clips: %w", err)
	}
	return n, nil
}

func scanRows(ctx context.Context, tx *sql.Tx, order Order, yield func(domain.ClipEntry, error) bool) {
	rows, err := tx.QueryContext(ctx,
		`SELECT id, epoch, payload, application FROM clips ORDER BY id `+order.sql())
	if err != nil {
		yield(domain.ClipEntry{}, fmt.Errorf("scan clips: %w", err))
		return
	}
	defer rows.Close()

	for rows.Next() {
		entry, err := scanEntry(rows)
		if !yield(entry, err) || err != nil {
			return
		}
	}
	if err := rows.Err(); err != nil {
		yield(domain.ClipEntry{}, err)
	}
}
