package syncer

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bft-labs/clipd/internal/domain"
	"github.com/bft-labs/clipd/internal/ports"
	"github.com/bft-labs/clipd/internal/protocol"
)

// Broadcast announces a locally captured entry to every registered peer.
// Unreachable peers are skipped; they catch up on the next sync round.
func (s *Syncer) Broadcast(ctx context.Context, e domain.ClipEntry) error {
	nodes, err := s.registry.Nodes(ctx)
	if err != nil {
		return err
	}

	var g errgroup.Group
	g.SetLimit(fanout)
	for _, n := range nodes {
		if s.isSelf(n) {
			continue
		}
		g.Go(func() error {
			if err := s.send(ctx, n, protocol.NewClip(e)); err != nil {
				s.logger.Debug("broadcast skipped peer",
					ports.String("device_id", n.DeviceID), ports.Err(err))
			}
			return nil
		})
	}
	return g.Wait()
}

// send delivers one message that expects no reply.
func (s *Syncer) send(ctx context.Context, n domain.Node, m protocol.Message) error {
	conn, _, _, err := s.dialPeer(ctx, n)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.SetWriteDeadline(time.Now().Add(s.ioTimeout)); err != nil {
		return err
	}
	return protocol.WriteMessage(conn, m)
}
