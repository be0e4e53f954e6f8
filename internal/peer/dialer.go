package peer

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/bft-labs/clipd/internal/domain"
)

// DefaultDialTimeout bounds each connection attempt.
const DefaultDialTimeout = 3 * time.Second

// Dialer opens a connection to a node over its candidate addresses and ports.
type Dialer struct {
	ports []int
	dial  func(ctx context.Context, network, address string) (net.Conn, error)
}

// NewDialer creates a Dialer trying ports in order on each address.
func NewDialer(ports []int, timeout time.Duration) *Dialer {
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}
	d := &net.Dialer{Timeout: timeout}
	return &Dialer{
		ports: append([]int(nil), ports...),
		dial:  d.DialContext,
	}
}

// Handshake vets a fresh connection. A non-nil error closes the connection
// and moves on to the next address.
type Handshake func(conn net.Conn) error

// Dial tries the local address then the public one (public first when
// the node prefers it), each on every candidate port, and returns the first
// connection along with the origin of the address that answered.
func (d *Dialer) Dial(ctx context.Context, node domain.Node) (net.Conn, domain.IPOrigin, error) {
	return d.DialChecked(ctx, node, nil)
}

// DialChecked is Dial, except a connection counts only once check accepts
// it. A private address can belong to a different host on another network,
// so an answer from the wrong device falls through to the next address.
func (d *Dialer) DialChecked(ctx context.Context, node domain.Node, check Handshake) (net.Conn, domain.IPOrigin, error) {
	var lastErr error
	for _, addr := range node.Addresses() {
		for _, port := range d.ports {
			if err := ctx.Err(); err != nil {
				return nil, 0, err
			}
			conn, err := d.dial(ctx, "tcp", net.JoinHostPort(addr.IP.String(), strconv.Itoa(port)))
			if err != nil {
				lastErr = err
				continue
			}
			if check == nil {
				return conn, addr.Origin, nil
			}
			if err := check(conn); err != nil {
				conn.Close()
				lastErr = err
				continue
			}
			return conn, addr.Origin, nil
		}
	}
	if lastErr == nil {
		return nil, 0, fmt.Errorf("%w: %s has no addresses", domain.ErrNoReachablePeer, node.DeviceID)
	}
	return nil, 0, fmt.Errorf("%w: %s: %w", domain.ErrNoReachablePeer, node.DeviceID, lastErr)
}
