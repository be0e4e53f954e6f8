// Package router decides which boards receive a captured clip and runs
// each accepting board's store and retention path.
package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/bft-labs/clipd/internal/config"
	"github.com/bft-labs/clipd/internal/domain"
	"github.com/bft-labs/clipd/internal/ports"
	"github.com/bft-labs/clipd/internal/retention"
)

// Router fans a clip out to the boards of the live config.
type Router struct {
	handle *config.Handle
	stores *StoreSet
	logger ports.Logger
}

// New creates a Router.
func New(handle *config.Handle, stores *StoreSet, logger ports.Logger) *Router {
	return &Router{
		handle: handle,
		stores: stores,
		logger: logger,
	}
}

// Capture validates a fresh payload, assigns it an id and routes it.
func (r *Router) Capture(ctx context.Context, payload []byte, application string) (domain.ClipEntry, []string, error) {
	entry, err := domain.NewClip(payload, application)
	if err != nil {
		return domain.ClipEntry{}, nil, err
	}
	boards, err := r.Route(ctx, entry)
	return entry, boards, err
}

// Route stores entry in every board that accepts it and applies that
// board's retention. It returns the names of the boards the entry was
// stored in. A board whose store fails is skipped; its error is joined
// into the returned error while other boards proceed.
func (r *Router) Route(ctx context.Context, entry domain.ClipEntry) ([]string, error) {
	if err := domain.ValidatePayload(entry.Payload); err != nil {
		return nil, err
	}

	cfg := r.handle.Load()
	var (
		stored []string
		errs   []error
	)
	for _, board := range cfg.Boards {
		if ctx.Err() != nil {
			return stored, ctx.Err()
		}
		if !CanStore(entry, board) {
			continue
		}
		added, err := r.storeInto(ctx, board, entry)
		if err != nil {
			r.logger.Warn("board store failed, skipping board",
				ports.String("board", board.Name), ports.Err(err))
			errs = append(errs, fmt.Errorf("board %q: %w", board.Name, err))
			continue
		}
		if added {
			stored = append(stored, board.Name)
		}
	}
	return stored, errors.Join(errs...)
}

func (r *Router) storeInto(ctx context.Context, board config.Board, entry domain.ClipEntry) (bool, error) {
	st, release, err := r.stores.Acquire(board)
	if err != nil {
		return false, err
	}
	defer release()
	added, err := st.Insert(ctx, entry)
	if err != nil || !added {
		return false, err
	}

	res, err := retention.Apply(ctx, st, retention.Policy{
		Duplicates: board.Duplicates(),
		MaxSize:    board.MaxSize,
	})
	if err != nil {
		return true, fmt.Errorf("retention: %w", err)
	}
	if res.Duplicates > 0 || res.Evicted > 0 {
		r.logger.Debug("retention pass",
			ports.String("board", board.Name),
			ports.Int("duplicates", res.Duplicates),
			ports.Int("evicted", res.Evicted))
	}
	return true, nil
}

// Stores exposes the board store set for read paths (sync, CLI).
func (r *Router) Stores() *StoreSet {
	return r.stores
}

// Config returns the live config snapshot.
func (r *Router) Config() *config.Config {
	return r.handle.Load()
}
