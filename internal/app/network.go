package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/bft-labs/clipd/internal/adapters/fs"
	httpAdapter "github.com/bft-labs/clipd/internal/adapters/http"
	"github.com/bft-labs/clipd/internal/domain"
	"github.com/bft-labs/clipd/internal/peer"
	"github.com/bft-labs/clipd/internal/ports"
	"github.com/bft-labs/clipd/internal/syncer"
)

const publicIPTimeout = 5 * time.Second

// network is the peer-facing part of a run.
type network struct {
	syncer   *syncer.Syncer
	registry *peer.Registry
	listener net.Listener
}

func (n *network) close() {
	n.listener.Close()
	n.registry.Close()
}

// startNetwork resolves this device's identity and addresses, opens the
// peer registry and binds the sync port. Any failure leaves the daemon
// running without sync.
func (d *Daemon) startNetwork(ctx context.Context) (*network, error) {
	cfg := d.handle.Load()

	self, err := SelfNode(ctx, cfg.DataDir, cfg.DeviceName, d.providers, d.httpClient, d.logger)
	if err != nil {
		return nil, err
	}

	registry, err := peer.OpenRegistry(cfg.RegistryPath())
	if err != nil {
		return nil, fmt.Errorf("open peer registry: %w", err)
	}

	dialer := peer.NewDialer(cfg.ListenPorts, peer.DefaultDialTimeout)
	s := syncer.New(self, d.router, registry, dialer, d.handle, d.logger)
	ln, err := s.Listen(ctx, cfg.ListenPorts)
	if err != nil {
		registry.Close()
		return nil, err
	}

	d.logger.Info("networking enabled",
		ports.String("device_id", self.DeviceID),
		ports.String("local_ip", ipString(self.LocalIP)),
		ports.String("public_ip", ipString(self.PublicIP)))
	return &network{syncer: s, registry: registry, listener: ln}, nil
}

// SelfNode describes this device as peers see it. Only a missing device
// identity is an error; unknown addresses are left empty.
func SelfNode(ctx context.Context, dataDir, name string, providers []peer.IdentityProvider, client ports.HTTPClient, logger ports.Logger) (domain.Node, error) {
	id, err := peer.CachedIdentity(ctx, fs.NewIdentityFile(dataDir), providers, logger)
	if err != nil {
		return domain.Node{}, err
	}
	self := domain.Node{DeviceID: id, Name: name}

	if ip, err := peer.LocalIP(); err != nil {
		logger.Warn("no local address", ports.Err(err))
	} else {
		self.LocalIP = ip
	}

	ctx, cancel := context.WithTimeout(ctx, publicIPTimeout)
	defer cancel()
	ip, err := httpAdapter.NewPublicIPResolver(client, logger).Resolve(ctx)
	switch {
	case err == nil:
		self.PublicIP = ip
	case errors.Is(err, context.Canceled):
		return domain.Node{}, err
	default:
		logger.Warn("no public address", ports.Err(err))
	}
	return self, nil
}

func ipString(ip net.IP) string {
	if len(ip) == 0 {
		return ""
	}
	return ip.String()
}
