package router

import (
	"errors"
	"sync"

	"github.com/bft-labs/clipd/internal/config"
	"github.com/bft-labs/clipd/internal/ports"
	"github.com/bft-labs/clipd/internal/store"
)

// StoreSet owns one open Store per board. Stores open on first use and
// reopen when a reload moves a board to a different file.
//
// Callers hold a store between Acquire and the returned release. A store
// replaced or dropped by a reload is closed once its last holder releases it.
type StoreSet struct {
	mu      sync.Mutex
	open    map[string]*heldStore
	retired map[*heldStore]struct{}
	logger  ports.Logger
}

type heldStore struct {
	st      *store.Store
	refs    int
	retired bool
	closed  bool
}

// NewStoreSet creates an empty set.
func NewStoreSet(logger ports.Logger) *StoreSet {
	return &StoreSet{
		open:    make(map[string]*heldStore),
		retired: make(map[*heldStore]struct{}),
		logger:  logger,
	}
}

// Acquire returns the store for board, opening it if needed, and a release
// func the caller must call when done with it. Release is idempotent.
func (s *StoreSet) Acquire(board config.Board) (*store.Store, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.open[board.Name]
	if ok && h.st.Path() != board.DBPath {
		s.logger.Info("board moved, reopening store",
			ports.String("board", board.Name),
			ports.String("from", h.st.Path()),
			ports.String("to", board.DBPath))
		delete(s.open, board.Name)
		s.retire(h)
		ok = false
	}
	if !ok {
		st, err := store.Open(board.DBPath)
		if err != nil {
			return nil, nil, err
		}
		h = &heldStore{st: st}
		s.open[board.Name] = h
	}

	h.refs++
	var once sync.Once
	return h.st, func() { once.Do(func() { s.release(h) }) }, nil
}

// Retain retires the stores of boards missing from boards.
func (s *StoreSet) Retain(boards []config.Board) {
	keep := make(map[string]bool, len(boards))
	for _, b := range boards {
		keep[b.Name] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for name, h := range s.open {
		if keep[name] {
			continue
		}
		s.logger.Info("board removed, closing store", ports.String("board", name))
		delete(s.open, name)
		s.retire(h)
	}
}

func (s *StoreSet) release(h *heldStore) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h.refs--
	if h.retired && h.refs == 0 {
		s.closeStore(h)
	}
}

// retire must be called with mu held.
func (s *StoreSet) retire(h *heldStore) {
	h.retired = true
	if h.refs > 0 {
		s.retired[h] = struct{}{}
		return
	}
	s.closeStore(h)
}

// closeStore must be called with mu held.
func (s *StoreSet) closeStore(h *heldStore) {
	delete(s.retired, h)
	if h.closed {
		return
	}
	h.closed = true
	if err := h.st.Close(); err != nil {
		s.logger.Warn("failed to close store", ports.String("path", h.st.Path()), ports.Err(err))
	}
}

// Close closes every store, including retired ones still held.
func (s *StoreSet) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	closeOne := func(h *heldStore) {
		if h.closed {
			return
		}
		h.closed = true
		if err := h.st.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	for name, h := range s.open {
		closeOne(h)
		delete(s.open, name)
	}
	for h := range s.retired {
		closeOne(h)
		delete(s.retired, h)
	}
	return errors.Join(errs...)
}

// Len reports how many boards have an open store.
func (s *StoreSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.open)
}
