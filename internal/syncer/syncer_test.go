package syncer

import (
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logAdapter "github.com/bft-labs/clipd/internal/adapters/log"
	"github.com/bft-labs/clipd/internal/config"
	"github.com/bft-labs/clipd/internal/domain"
	"github.com/bft-labs/clipd/internal/pairing"
	"github.com/bft-labs/clipd/internal/peer"
	"github.com/bft-labs/clipd/internal/protocol"
	"github.com/bft-labs/clipd/internal/router"
)

type device struct {
	syncer   *Syncer
	router   *router.Router
	registry *peer.Registry
	handle   *config.Handle
	port     int
}

func newDevice(t *testing.T, id, localIP string, mutate ...func(*config.Config)) *device {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	for _, m := range mutate {
		m(&cfg)
	}
	require.NoError(t, cfg.Validate())

	logger := logAdapter.NewNoopLogger()
	handle := config.NewHandle(&cfg)
	stores := router.NewStoreSet(logger)
	t.Cleanup(func() { stores.Close() })

	registry, err := peer.OpenRegistry(cfg.RegistryPath())
	require.NoError(t, err)
	t.Cleanup(func() { registry.Close() })

	r := router.New(handle, stores, logger)
	self := domain.Node{DeviceID: id, Name: id, LocalIP: net.ParseIP(localIP)}
	s := New(self, r, registry, nil, handle, logger)
	s.ownAddrs = func() []net.IP { return nil }
	s.ioTimeout = 2 * time.Second

	return &device{syncer: s, router: r, registry: registry, handle: handle}
}

// serve starts the device's server on an ephemeral port.
func (d *device) serve(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	ln, err := d.syncer.Listen(ctx, []int{0})
	require.NoError(t, err)
	d.port = ln.Addr().(*net.TCPAddr).Port

	done := make(chan struct{})
	go func() {
		defer close(done)
		d.syncer.Serve(ctx, ln)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

// dialing points d's dialer at other's server.
func (d *device) dialing(other *device) {
	d.syncer.dialer = peer.NewDialer([]int{other.port}, time.Second)
}

func (d *device) capture(t *testing.T, payload string) domain.ClipEntry {
	t.Helper()
	e, boards, err := d.router.Capture(context.Background(), []byte(payload), "term")
	require.NoError(t, err)
	require.Equal(t, []string{config.DefaultBoard}, boards)
	return e
}

func (d *device) count(t *testing.T) uint64 {
	t.Helper()
	b, ok := d.handle.Load().Board(config.DefaultBoard)
	require.True(t, ok)
	st, release, err := d.router.Stores().Acquire(b)
	require.NoError(t, err)
	defer release()
	n, err := st.Count(context.Background())
	require.NoError(t, err)
	return n
}

// waitSynced waits for d to record that deviceID was sent up to epoch.
// The server marks a peer synced after its reply is written.
func waitSynced(t *testing.T, d *device, deviceID string, epoch int64) {
	t.Helper()
	require.Eventually(t, func() bool {
		n, err := d.registry.Get(context.Background(), deviceID)
		return err == nil && n.LastSync != nil && n.LastSync.UnixMilli() == epoch
	}, 2*time.Second, 5*time.Millisecond)
}

func loopbackCode(t *testing.T) string {
	t.Helper()
	code, err := pairing.Encode(net.ParseIP("127.0.0.1"), net.ParseIP("127.0.0.1"))
	require.NoError(t, err)
	return code
}

// pair makes a join b.
func pair(t *testing.T, a, b *device) domain.Node {
	t.Helper()
	a.dialing(b)
	n, err := a.syncer.Join(context.Background(), loopbackCode(t))
	require.NoError(t, err)
	return n
}

func TestJoin_RejectsOwnCode(t *testing.T) {
	tests := []struct {
		name       string
		selfPublic string
		local      string
		public     string
	}{
		{"announced address, no public ip", "", "10.0.0.1", "203.0.113.9"},
		{"host address, no public ip", "", "192.168.5.5", "203.0.113.9"},
		{"announced addresses", "198.51.100.1", "10.0.0.1", "198.51.100.1"},
		{"host and public address", "198.51.100.1", "192.168.5.5", "198.51.100.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newDevice(t, "dev-a", "10.0.0.1")
			a.syncer.self.PublicIP = net.ParseIP(tt.selfPublic)
			a.syncer.ownAddrs = func() []net.IP { return []net.IP{net.ParseIP("192.168.5.5")} }

			code, err := pairing.Encode(net.ParseIP(tt.local), net.ParseIP(tt.public))
			require.NoError(t, err)

			_, err = a.syncer.Join(context.Background(), code)
			assert.ErrorIs(t, err, domain.ErrSameDevice)

			nodes, err := a.registry.Nodes(context.Background())
			require.NoError(t, err)
			assert.Empty(t, nodes)
		})
	}
}

func TestJoin_SharedPrivateAddress(t *testing.T) {
	ctx := context.Background()
	// a and b sit on different networks that hand out the same private
	// address; only the public address tells them apart.
	a := newDevice(t, "dev-a", "127.0.0.1")
	a.syncer.self.PublicIP = net.ParseIP("198.51.100.1")
	a.syncer.ownAddrs = func() []net.IP { return []net.IP{net.ParseIP("127.0.0.1")} }
	a.serve(t)
	b := newDevice(t, "dev-b", "127.0.0.1")
	b.serve(t)

	// a's own server answers first on the shared address.
	a.syncer.dialer = peer.NewDialer([]int{a.port, b.port}, time.Second)

	joined, err := a.syncer.Join(ctx, loopbackCode(t))
	require.NoError(t, err)
	assert.Equal(t, "dev-b", joined.DeviceID)

	b.capture(t, "from b")
	n, err := a.registry.Get(ctx, "dev-b")
	require.NoError(t, err)
	received, err := a.syncer.SyncPeer(ctx, n)
	require.NoError(t, err)
	assert.Equal(t, 1, received)
	assert.Equal(t, uint64(1), a.count(t))

	e := a.capture(t, "from a")
	require.NoError(t, a.syncer.Broadcast(ctx, e))
	require.Eventually(t, func() bool { return b.count(t) == 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestJoin_RejectsReplyFromSelf(t *testing.T) {
	a := newDevice(t, "dev-a", "10.0.0.1")
	twin := newDevice(t, "dev-a", "127.0.0.1")
	twin.serve(t)
	a.dialing(twin)

	_, err := a.syncer.Join(context.Background(), loopbackCode(t))
	assert.ErrorIs(t, err, domain.ErrSameDevice)
}

func TestJoin_InvalidCode(t *testing.T) {
	a := newDevice(t, "dev-a", "10.0.0.1")
	_, err := a.syncer.Join(context.Background(), "not a pairing code")
	assert.ErrorIs(t, err, domain.ErrInvalidCode)
}

func TestJoin_RegistersBothSides(t *testing.T) {
	ctx := context.Background()
	a := newDevice(t, "dev-a", "10.0.0.1")
	b := newDevice(t, "dev-b", "127.0.0.1")
	b.serve(t)

	joined := pair(t, a, b)
	assert.Equal(t, "dev-b", joined.DeviceID)

	got, err := a.registry.Get(ctx, "dev-b")
	require.NoError(t, err)
	assert.Equal(t, "dev-b", got.Name)
	require.NotNil(t, got.PreferredOrigin)
	assert.Equal(t, domain.OriginLocal, *got.PreferredOrigin)
	assert.NotNil(t, got.LastSeen)

	back, err := b.registry.Get(ctx, "dev-a")
	require.NoError(t, err)
	assert.True(t, net.ParseIP("10.0.0.1").Equal(back.LocalIP))
	assert.Nil(t, back.LastSync)

	// Joining again keeps a single record.
	_, err = a.syncer.Join(ctx, loopbackCode(t))
	require.NoError(t, err)
	nodes, err := a.registry.Nodes(ctx)
	require.NoError(t, err)
	assert.Len(t, nodes, 1)
}

func TestSyncPeer_PullsOnlyNewEntries(t *testing.T) {
	ctx := context.Background()
	a := newDevice(t, "dev-a", "10.0.0.1")
	b := newDevice(t, "dev-b", "127.0.0.1")
	b.serve(t)

	b.capture(t, "one")
	b.capture(t, "two")
	last := b.capture(t, "three")
	peerB := pair(t, a, b)

	received, err := a.syncer.SyncPeer(ctx, peerB)
	require.NoError(t, err)
	assert.Equal(t, 3, received)
	assert.Equal(t, uint64(3), a.count(t))

	waitSynced(t, b, "dev-a", last.Epoch)

	received, err = a.syncer.SyncPeer(ctx, peerB)
	require.NoError(t, err)
	assert.Zero(t, received)

	time.Sleep(2 * time.Millisecond)
	b.capture(t, "four")
	received, err = a.syncer.SyncPeer(ctx, peerB)
	require.NoError(t, err)
	assert.Equal(t, 1, received)
	assert.Equal(t, uint64(4), a.count(t))
}

func TestSyncPeer_CappedResponseResumes(t *testing.T) {
	ctx := context.Background()
	a := newDevice(t, "dev-a", "10.0.0.1")
	b := newDevice(t, "dev-b", "127.0.0.1", func(c *config.Config) { c.SyncBatchBytes = 1 })
	b.serve(t)

	var captured []domain.ClipEntry
	for _, p := range []string{"one", "two", "three"} {
		captured = append(captured, b.capture(t, p))
		time.Sleep(2 * time.Millisecond)
	}
	peerB := pair(t, a, b)

	for i, e := range captured {
		received, err := a.syncer.SyncPeer(ctx, peerB)
		require.NoError(t, err)
		assert.Equal(t, 1, received)
		assert.Equal(t, uint64(i+1), a.count(t))
		waitSynced(t, b, "dev-a", e.Epoch)
	}
	received, err := a.syncer.SyncPeer(ctx, peerB)
	require.NoError(t, err)
	assert.Zero(t, received)
}

func TestSyncAll_SkipsUnreachablePeers(t *testing.T) {
	ctx := context.Background()
	a := newDevice(t, "dev-a", "10.0.0.1")
	b := newDevice(t, "dev-b", "127.0.0.1")
	b.serve(t)
	b.capture(t, "from b")
	pair(t, a, b)

	_, err := a.registry.AddNode(ctx, domain.Node{DeviceID: "dev-gone", Name: "gone"})
	require.NoError(t, err)

	a.syncer.SyncAll(ctx)
	assert.Equal(t, uint64(1), a.count(t))
}

func TestBroadcast_DeliversNewClip(t *testing.T) {
	a := newDevice(t, "dev-a", "10.0.0.1")
	b := newDevice(t, "dev-b", "127.0.0.1")
	b.serve(t)
	pair(t, a, b)

	e := a.capture(t, "fresh")
	require.NoError(t, a.syncer.Broadcast(context.Background(), e))

	require.Eventually(t, func() bool { return b.count(t) == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestServe_MalformedFrameDropsOnlyThatConnection(t *testing.T) {
	b := newDevice(t, "dev-b", "127.0.0.1")
	b.serve(t)
	addr := net.JoinHostPort("127.0.0.1", itoa(b.port))

	bad, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer bad.Close()
	var frame [7]byte
	binary.BigEndian.PutUint32(frame[:], 3)
	copy(frame[4:], []byte{0xc1, 0xc1, 0xc1})
	_, err = bad.Write(frame[:])
	require.NoError(t, err)

	require.NoError(t, bad.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = bad.Read(make([]byte, 1))
	assert.Error(t, err, "server closes the connection")

	good, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer good.Close()
	reply, err := protocol.Exchange(good, protocol.JoinNetwork(domain.Node{DeviceID: "dev-c"}), 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "dev-b", reply.Node.DeviceID)
}

func TestSyncRequest_FromUnknownPeer(t *testing.T) {
	ctx := context.Background()
	b := newDevice(t, "dev-b", "127.0.0.1")
	b.serve(t)
	b.capture(t, "x")

	conn, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", itoa(b.port)))
	require.NoError(t, err)
	defer conn.Close()

	reply, err := protocol.Exchange(conn, protocol.SyncRequest(domain.Node{DeviceID: "dev-c"}), 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, protocol.KindSyncResponse, reply.Kind)
	assert.Len(t, reply.Clips, 1)

	_, err = b.registry.Get(ctx, "dev-c")
	assert.NoError(t, err)
}

func TestSyncRequest_IgnoresRequesterBookkeeping(t *testing.T) {
	ctx := context.Background()
	b := newDevice(t, "dev-b", "127.0.0.1")
	b.serve(t)

	conn, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", itoa(b.port)))
	require.NoError(t, err)
	defer conn.Close()

	future := time.Now().Add(24 * time.Hour)
	public := domain.OriginPublic
	requester := domain.Node{DeviceID: "dev-c", LastSync: &future, PreferredOrigin: &public}

	reply, err := protocol.Exchange(conn, protocol.SyncRequest(requester), 2*time.Second)
	require.NoError(t, err)
	assert.Empty(t, reply.Clips)

	got, err := b.registry.Get(ctx, "dev-c")
	require.NoError(t, err)
	assert.Nil(t, got.LastSync)
	assert.Nil(t, got.PreferredOrigin)
	assert.NotNil(t, got.LastSeen)

	b.capture(t, "after")
	reply, err = protocol.Exchange(conn, protocol.SyncRequest(requester), 2*time.Second)
	require.NoError(t, err)
	require.Len(t, reply.Clips, 1)
	assert.Equal(t, "after", string(reply.Clips[0].Payload))
}
