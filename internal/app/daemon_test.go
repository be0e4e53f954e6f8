package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logAdapter "github.com/bft-labs/clipd/internal/adapters/log"
	"github.com/bft-labs/clipd/internal/config"
	"github.com/bft-labs/clipd/internal/domain"
	"github.com/bft-labs/clipd/internal/peer"
	"github.com/bft-labs/clipd/internal/protocol"
)

// queueSource hands out queued payloads one per poll, then repeats the last.
type queueSource struct {
	mu      sync.Mutex
	pending []string
	current string
}

func (q *queueSource) Poll(ctx context.Context) ([]byte, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) > 0 {
		q.current, q.pending = q.pending[0], q.pending[1:]
	}
	return []byte(q.current), nil
}

func (q *queueSource) ActiveWindowTitle(ctx context.Context) (string, error) {
	return "editor", nil
}

type offlineClient struct{}

func (offlineClient) Do(*http.Request) (*http.Response, error) {
	return nil, errors.New("offline")
}

func fixedIdentity(id string) []peer.IdentityProvider {
	return []peer.IdentityProvider{{
		Name:    "fixed",
		Resolve: func(context.Context) (string, error) { return id, nil },
	}}
}

func noIdentity() []peer.IdentityProvider {
	return []peer.IdentityProvider{{
		Name:    "none",
		Resolve: func(context.Context) (string, error) { return "", errors.New("unavailable") },
	}}
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func testConfig(t *testing.T, ports ...int) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.PollingRate = time.Millisecond
	cfg.ListenPorts = ports
	require.NoError(t, cfg.Validate())
	return &cfg
}

func startDaemon(t *testing.T, d *Daemon) <-chan error {
	t.Helper()
	errc := make(chan error, 1)
	go func() { errc <- d.Run(context.Background()) }()
	require.Eventually(t, func() bool { return d.State() == StateRunning }, 2*time.Second, 5*time.Millisecond)
	return errc
}

func boardCount(t *testing.T, d *Daemon) uint64 {
	t.Helper()
	b, ok := d.Router().Config().Board(config.DefaultBoard)
	require.True(t, ok)
	st, release, err := d.Router().Stores().Acquire(b)
	require.NoError(t, err)
	defer release()
	n, err := st.Count(context.Background())
	require.NoError(t, err)
	return n
}

func TestDaemon_LocalOnlyCapture(t *testing.T) {
	cfg := testConfig(t, freePort(t))
	src := &queueSource{pending: []string{"first", "first", "second"}}
	d := NewDaemon(cfg, config.Loader{Base: *cfg}, Options{
		Logger:     logAdapter.NewNoopLogger(),
		Source:     src,
		HTTPClient: offlineClient{},
		Providers:  noIdentity(),
	})

	errc := startDaemon(t, d)
	require.Eventually(t, func() bool { return boardCount(t, d) == 2 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, d.Stop())
	require.NoError(t, <-errc)
	assert.Equal(t, StateStopped, d.State())
}

func TestDaemon_ServesPeers(t *testing.T) {
	port := freePort(t)
	cfg := testConfig(t, port)
	d := NewDaemon(cfg, config.Loader{Base: *cfg}, Options{
		Logger:     logAdapter.NewNoopLogger(),
		Source:     &queueSource{pending: []string{"shared"}},
		HTTPClient: offlineClient{},
		Providers:  fixedIdentity("daemon-under-test"),
	})
	errc := startDaemon(t, d)
	require.Eventually(t, func() bool { return boardCount(t, d) == 1 }, 2*time.Second, 5*time.Millisecond)

	var conn net.Conn
	require.Eventually(t, func() bool {
		c, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
		if err != nil {
			return false
		}
		conn = c
		return true
	}, 2*time.Second, 10*time.Millisecond)
	defer conn.Close()

	me := domain.Node{DeviceID: "visitor", Name: "visitor"}
	reply, err := protocol.Exchange(conn, protocol.JoinNetwork(me), 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "daemon-under-test", reply.Node.DeviceID)

	reply, err = protocol.Exchange(conn, protocol.SyncRequest(me), 2*time.Second)
	require.NoError(t, err)
	require.Len(t, reply.Clips, 1)
	assert.Equal(t, "shared", string(reply.Clips[0].Payload))
	assert.Equal(t, "editor", reply.Clips[0].Application)

	require.NoError(t, d.Stop())
	require.NoError(t, <-errc)
}

func TestDaemon_StopWhenNotRunning(t *testing.T) {
	cfg := testConfig(t, freePort(t))
	d := NewDaemon(cfg, config.Loader{Base: *cfg}, Options{Logger: logAdapter.NewNoopLogger(), Source: &queueSource{}})
	assert.NoError(t, d.Stop())
}
