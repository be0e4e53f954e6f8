package syncer

import (
	"context"
	"fmt"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bft-labs/clipd/internal/domain"
	"github.com/bft-labs/clipd/internal/ports"
	"github.com/bft-labs/clipd/internal/protocol"
)

// RunCycle syncs with every registered peer now and then once per
// sync_interval, re-reading the interval after each round.
func (s *Syncer) RunCycle(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
		s.SyncAll(ctx)
		timer.Reset(s.handle.Load().SyncInterval)
	}
}

// SyncAll runs one sync round against every registered peer. Failures are
// logged per peer and left for the next round.
func (s *Syncer) SyncAll(ctx context.Context) {
	nodes, err := s.registry.Nodes(ctx)
	if err != nil {
		s.logger.Error("failed to list peers", ports.Err(err))
		return
	}

	var g errgroup.Group
	g.SetLimit(fanout)
	for _, n := range nodes {
		if s.isSelf(n) {
			continue
		}
		g.Go(func() error {
			received, err := s.SyncPeer(ctx, n)
			if err != nil {
				s.logger.Warn("peer sync failed",
					ports.String("device_id", n.DeviceID),
					ports.String("name", n.Name),
					ports.Err(err))
				return nil
			}
			s.logger.Debug("peer synced",
				ports.String("device_id", n.DeviceID),
				ports.Int("received", received))
			return nil
		})
	}
	g.Wait()
}

// dialPeer connects to n and introduces this device, skipping any address
// that answers as a different device.
func (s *Syncer) dialPeer(ctx context.Context, n domain.Node) (net.Conn, domain.IPOrigin, domain.Node, error) {
	var remote domain.Node
	conn, origin, err := s.dialer.DialChecked(ctx, n, func(conn net.Conn) error {
		r, err := s.introduce(conn)
		if err != nil {
			return err
		}
		if r.DeviceID != n.DeviceID {
			return fmt.Errorf("address answers as device %s", r.DeviceID)
		}
		remote = r
		return nil
	})
	return conn, origin, remote, err
}

// SyncPeer announces this device to n, asks for entries it has not yet
// sent us and stores them. It returns the number of entries received.
func (s *Syncer) SyncPeer(ctx context.Context, n domain.Node) (int, error) {
	conn, origin, remote, err := s.dialPeer(ctx, n)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	if err := s.registry.SetPreferredOrigin(ctx, n.DeviceID, origin); err != nil {
		s.logger.Warn("failed to record preferred origin", ports.String("device_id", n.DeviceID), ports.Err(err))
	}

	reply, err := protocol.Exchange(conn, protocol.SyncRequest(s.self), s.ioTimeout)
	if err != nil {
		return 0, fmt.Errorf("sync request: %w", err)
	}
	if reply.Kind != protocol.KindSyncResponse {
		return 0, fmt.Errorf("sync request: unexpected reply %s", reply.Kind)
	}
	for _, e := range reply.Clips {
		s.receive(ctx, e)
	}

	if err := s.registry.Touch(ctx, remote, s.now()); err != nil {
		s.logger.Warn("failed to touch peer", ports.String("device_id", n.DeviceID), ports.Err(err))
	}
	return len(reply.Clips), nil
}
