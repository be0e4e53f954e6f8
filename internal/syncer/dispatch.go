package syncer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/bft-labs/clipd/internal/domain"
	"github.com/bft-labs/clipd/internal/ports"
	"github.com/bft-labs/clipd/internal/protocol"
)

// dispatch handles one inbound message, writing any reply to w.
func (s *Syncer) dispatch(ctx context.Context, w io.Writer, m protocol.Message) error {
	switch m.Kind {
	case protocol.KindJoinNetwork:
		if err := s.handleJoin(ctx, m.Node); err != nil {
			return err
		}
		return protocol.WriteMessage(w, protocol.JoinNetwork(s.self))
	case protocol.KindNewClip:
		s.receive(ctx, m.Clip)
		return nil
	case protocol.KindSyncRequest:
		return s.handleSyncRequest(ctx, w, m.Node)
	case protocol.KindSyncResponse:
		for _, e := range m.Clips {
			s.receive(ctx, e)
		}
		return nil
	default:
		return fmt.Errorf("unexpected message %s", m.Kind)
	}
}

// handleJoin records a peer announcing itself.
func (s *Syncer) handleJoin(ctx context.Context, n domain.Node) error {
	if s.isSelf(n) {
		return nil
	}
	seen := s.now()
	n = announced(n, seen)

	added, err := s.registry.AddNode(ctx, n)
	if err != nil {
		return err
	}
	if added {
		s.logger.Info("peer joined",
			ports.String("device_id", n.DeviceID),
			ports.String("name", n.Name))
		return nil
	}
	return s.registry.Touch(ctx, n, seen)
}

// announced strips the sync bookkeeping a peer sent about itself. Those
// fields are kept locally and never taken from the wire.
func announced(n domain.Node, seen time.Time) domain.Node {
	n.LastSeen, n.LastSync, n.PreferredOrigin = &seen, nil, nil
	return n
}

// receive stores a clip from a peer. Peer clips are never re-announced.
func (s *Syncer) receive(ctx context.Context, e domain.ClipEntry) {
	boards, err := s.router.Route(ctx, e)
	if err != nil {
		s.logger.Warn("failed to store peer clip",
			ports.String("id", e.ID.String()), ports.Err(err))
	}
	if len(boards) > 0 {
		s.logger.Debug("stored peer clip",
			ports.String("id", e.ID.String()), ports.Strings("boards", boards))
	}
}

// handleSyncRequest answers with entries newer than the requester's
// last_sync and advances last_sync once the reply is written.
func (s *Syncer) handleSyncRequest(ctx context.Context, w io.Writer, requester domain.Node) error {
	if s.isSelf(requester) {
		return protocol.WriteMessage(w, protocol.SyncResponse(nil))
	}

	since, err := s.lastSync(ctx, requester)
	if err != nil {
		return err
	}
	entries := capBatch(s.collect(ctx, since), s.batchBytes())

	if err := protocol.WriteMessage(w, protocol.SyncResponse(entries)); err != nil {
		return err
	}
	if err := s.registry.Touch(ctx, requester, s.now()); err != nil {
		s.logger.Warn("failed to touch peer", ports.String("device_id", requester.DeviceID), ports.Err(err))
	}
	if len(entries) == 0 {
		return nil
	}

	last := entries[len(entries)-1].Time()
	if err := s.registry.MarkSynced(ctx, requester.DeviceID, last); err != nil {
		return fmt.Errorf("mark synced: %w", err)
	}
	s.logger.Debug("sync response sent",
		ports.String("device_id", requester.DeviceID),
		ports.Int("entries", len(entries)))
	return nil
}

// lastSync returns the epoch the requester has been sent up to, adding the
// requester to the registry if it is unknown.
func (s *Syncer) lastSync(ctx context.Context, requester domain.Node) (int64, error) {
	known, err := s.registry.Get(ctx, requester.DeviceID)
	if errors.Is(err, domain.ErrNotFound) {
		_, err = s.registry.AddNode(ctx, announced(requester, s.now()))
		return 0, err
	}
	if err != nil {
		return 0, err
	}
	if known.LastSync == nil {
		return 0, nil
	}
	return known.LastSync.UnixMilli(), nil
}

// collect gathers entries after since from every board. A board whose
// store cannot be read is skipped.
func (s *Syncer) collect(ctx context.Context, since int64) []domain.ClipEntry {
	var out []domain.ClipEntry
	for _, board := range s.handle.Load().Boards {
		st, release, err := s.router.Stores().Acquire(board)
		if err != nil {
			s.logger.Warn("skipping board for sync", ports.String("board", board.Name), ports.Err(err))
			continue
		}
		entries, err := st.Since(ctx, since)
		release()
		if err != nil {
			s.logger.Warn("skipping board for sync", ports.String("board", board.Name), ports.Err(err))
			continue
		}
		out = append(out, entries...)
	}
	return sortEntries(out)
}

func (s *Syncer) batchBytes() int {
	n := s.handle.Load().SyncBatchBytes
	if limit := protocol.MaxFrameSize / 2; n <= 0 || n > limit {
		n = limit
	}
	return n
}
