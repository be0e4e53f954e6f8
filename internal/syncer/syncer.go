// Package syncer replicates clipboard entries between paired devices.
//
// Every device runs the same Syncer: a TCP server answering peer messages,
// a periodic cycle that asks each registered peer for what it has, and a
// broadcaster announcing locally captured entries as they are stored.
package syncer

import (
	"net"
	"time"

	"github.com/bft-labs/clipd/internal/config"
	"github.com/bft-labs/clipd/internal/domain"
	"github.com/bft-labs/clipd/internal/peer"
	"github.com/bft-labs/clipd/internal/ports"
	"github.com/bft-labs/clipd/internal/router"
)

// Defaults for connection handling.
const (
	DefaultIOTimeout   = 10 * time.Second
	DefaultIdleTimeout = 2 * time.Minute

	// fanout bounds concurrent peer connections for broadcast and the cycle.
	fanout = 8
)

// Syncer owns the peer-facing side of the daemon.
type Syncer struct {
	self     domain.Node
	router   *router.Router
	registry *peer.Registry
	dialer   *peer.Dialer
	handle   *config.Handle
	logger   ports.Logger

	ioTimeout   time.Duration
	idleTimeout time.Duration
	now         func() time.Time
	ownAddrs    func() []net.IP
}

// New creates a Syncer speaking as self.
func New(self domain.Node, r *router.Router, registry *peer.Registry, dialer *peer.Dialer, handle *config.Handle, logger ports.Logger) *Syncer {
	return &Syncer{
		self:        self,
		router:      r,
		registry:    registry,
		dialer:      dialer,
		handle:      handle,
		logger:      logger,
		ioTimeout:   DefaultIOTimeout,
		idleTimeout: DefaultIdleTimeout,
		now:         time.Now,
		ownAddrs:    peer.OwnAddresses,
	}
}

func (s *Syncer) isSelf(n domain.Node) bool {
	return n.DeviceID == s.self.DeviceID
}
