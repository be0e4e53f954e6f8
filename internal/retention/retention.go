// Package retention deduplicates a board and caps its size after each insert.
package retention

import (
	"context"
	"crypto/sha256"

	"github.com/bft-labs/clipd/internal/domain"
	"github.com/bft-labs/clipd/internal/store"
)

// Policy is a board's retention parameters.
type Policy struct {
	// Duplicates selects the dedup scan. +N scans newest first and leaves the
	// first N entries alone, -N scans oldest first and leaves the first N
	// alone, 0 removes every older repeat of a payload.
	Duplicates int

	// MaxSize caps the entry count, evicting oldest first. 0 disables the cap.
	MaxSize int
}

// Result reports what one pass deleted.
type Result struct {
	Duplicates int
	Evicted    int
}

// Apply runs dedup then the size cap in one write transaction.
func Apply(ctx context.Context, st *store.Store, p Policy) (Result, error) {
	var res Result
	err := st.Update(ctx, func(tx *store.Tx) error {
		n, err := dedupe(tx, p.Duplicates)
		if err != nil {
			return err
		}
		res.Duplicates = n

		n, err = ensureSize(tx, p.MaxSize)
		if err != nil {
			return err
		}
		res.Evicted = n
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

// dedupe skips the protected window, then keeps the first occurrence of
// each payload in scan order. Entries inside the window are not recorded
// as seen, so they never cause a later entry to be deleted.
func dedupe(tx *store.Tx, duplicates int) (int, error) {
	order := store.Reverse
	window := duplicates
	if duplicates < 0 {
		order = store.Forward
		window = -duplicates
	}

	seen := make(map[[sha256.Size]byte]struct{})
	var doomed []domain.ClipID
	i := 0
	for entry, err := range tx.Scan(order) {
		if err != nil {
			return 0, err
		}
		if i < window {
			i++
			continue
		}
		i++
		sum := sha256.Sum256(entry.Payload)
		if _, ok := seen[sum]; ok {
			doomed = append(doomed, entry.ID)
			continue
		}
		seen[sum] = struct{}{}
	}

	for _, id := range doomed {
		if err := tx.Delete(id); err != nil {
			return 0, err
		}
	}
	return len(doomed), nil
}

func ensureSize(tx *store.Tx, limit int) (int, error) {
	if limit <= 0 {
		return 0, nil
	}
	count, err := tx.Count()
	if err != nil {
		return 0, err
	}
	if count <= uint64(limit) {
		return 0, nil
	}

	excess := int(count - uint64(limit))
	doomed := make([]domain.ClipID, 0, excess)
	for entry, err := range tx.Scan(store.Forward) {
		if err != nil {
			return 0, err
		}
		doomed = append(doomed, entry.ID)
		if len(doomed) == excess {
			break
		}
	}

	for _, id := range doomed {
		if err := tx.Delete(id); err != nil {
			return 0, err
		}
	}
	return len(doomed), nil
}
