package syncer

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/bft-labs/clipd/internal/domain"
	"github.com/bft-labs/clipd/internal/pairing"
	"github.com/bft-labs/clipd/internal/ports"
	"github.com/bft-labs/clipd/internal/protocol"
)

// PairingCode returns the code another device uses to join this one.
func (s *Syncer) PairingCode() (string, error) {
	public := s.self.PublicIP
	if len(public) == 0 {
		public = s.self.LocalIP
	}
	return pairing.Encode(s.self.LocalIP, public)
}

// Join decodes a pairing code, introduces this device to the device it
// names and records that device as a peer. A code naming this device
// fails with domain.ErrSameDevice.
func (s *Syncer) Join(ctx context.Context, code string) (domain.Node, error) {
	local, public, err := pairing.Decode(code)
	if err != nil {
		return domain.Node{}, err
	}
	if s.isOwnAddress(local, public) {
		return domain.Node{}, domain.ErrSameDevice
	}

	target := domain.Node{DeviceID: "pairing code", LocalIP: local, PublicIP: public}
	var n domain.Node
	conn, origin, err := s.dialer.DialChecked(ctx, target, func(conn net.Conn) error {
		remote, err := s.introduce(conn)
		if err != nil {
			return err
		}
		if s.isSelf(remote) {
			return domain.ErrSameDevice
		}
		n = remote
		return nil
	})
	if errors.Is(err, domain.ErrSameDevice) {
		return domain.Node{}, domain.ErrSameDevice
	}
	if err != nil {
		return domain.Node{}, err
	}
	conn.Close()

	if len(n.LocalIP) == 0 {
		n.LocalIP = local
	}
	if len(n.PublicIP) == 0 {
		n.PublicIP = public
	}
	seen := s.now()
	n.LastSeen = &seen
	n.LastSync = nil
	n.PreferredOrigin = &origin

	added, err := s.registry.AddNode(ctx, n)
	if err != nil {
		return domain.Node{}, err
	}
	if !added {
		if err := s.registry.Touch(ctx, n, seen); err != nil {
			return domain.Node{}, err
		}
		if err := s.registry.SetPreferredOrigin(ctx, n.DeviceID, origin); err != nil {
			return domain.Node{}, err
		}
	}
	s.logger.Info("joined peer",
		ports.String("device_id", n.DeviceID),
		ports.String("name", n.Name),
		ports.String("origin", origin.String()))
	return n, nil
}

// introduce sends JoinNetwork over conn and returns the node that answered.
func (s *Syncer) introduce(conn net.Conn) (domain.Node, error) {
	reply, err := protocol.Exchange(conn, protocol.JoinNetwork(s.self), s.ioTimeout)
	if err != nil {
		return domain.Node{}, fmt.Errorf("join network: %w", err)
	}
	if reply.Kind != protocol.KindJoinNetwork {
		return domain.Node{}, fmt.Errorf("join network: unexpected reply %s", reply.Kind)
	}
	return reply.Node, nil
}

// isOwnAddress reports whether a decoded pairing code names this device
// before any connection is made. The local address alone is not enough:
// devices behind different NATs often share a private address. It takes a
// local address held by this host plus a matching public address, or no
// known public address of our own to tell them apart. The device id in the
// JoinNetwork reply decides every other case.
func (s *Syncer) isOwnAddress(local, public net.IP) bool {
	if !s.holdsAddress(local) {
		return false
	}
	return len(s.self.PublicIP) == 0 || public.Equal(s.self.PublicIP)
}

func (s *Syncer) holdsAddress(ip net.IP) bool {
	if ip.Equal(s.self.LocalIP) {
		return true
	}
	for _, own := range s.ownAddrs() {
		if own.Equal(ip) {
			return true
		}
	}
	return false
}
