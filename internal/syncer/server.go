package syncer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/bft-labs/clipd/internal/ports"
	"github.com/bft-labs/clipd/internal/protocol"
)

// Listen binds the first free port from candidates on all interfaces.
func (s *Syncer) Listen(ctx context.Context, candidates []int) (net.Listener, error) {
	var lc net.ListenConfig
	var errs []error
	for _, port := range candidates {
		ln, err := lc.Listen(ctx, "tcp", net.JoinHostPort("", strconv.Itoa(port)))
		if err == nil {
			s.logger.Info("sync server listening", ports.String("addr", ln.Addr().String()))
			return ln, nil
		}
		errs = append(errs, err)
	}
	return nil, fmt.Errorf("no free sync port in %v: %w", candidates, errors.Join(errs...))
}

// Serve accepts connections on ln until ctx is cancelled. Each connection
// is served on its own goroutine; a failing connection never stops the
// accept loop.
func (s *Syncer) Serve(ctx context.Context, ln net.Listener) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	delay := 5 * time.Millisecond
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Warn("accept failed", ports.Err(err), ports.Duration("retry_in", delay))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
			}
			delay = min(delay*2, time.Second)
			continue
		}
		delay = 5 * time.Millisecond

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.serveConn(ctx, conn)
		}()
	}
}

// serveConn reads and dispatches frames until the peer hangs up or any
// read, decode or dispatch error occurs.
func (s *Syncer) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	remote := conn.RemoteAddr().String()
	for {
		if err := conn.SetReadDeadline(time.Now().Add(s.idleTimeout)); err != nil {
			return
		}
		m, err := protocol.ReadMessage(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				s.logger.Debug("closing peer connection", ports.String("remote", remote), ports.Err(err))
			}
			return
		}

		if err := conn.SetWriteDeadline(time.Now().Add(s.ioTimeout)); err != nil {
			return
		}
		if err := s.dispatch(ctx, conn, m); err != nil {
			s.logger.Warn("peer message failed",
				ports.String("remote", remote),
				ports.String("kind", m.Kind.String()),
				ports.Err(err))
			return
		}
	}
}
