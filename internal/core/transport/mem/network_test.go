package mem

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-peerkit/internal/util/logger"
	pkgif "github.com/dep2p/go-peerkit/pkg/interfaces"
	"github.com/dep2p/go-peerkit/pkg/types"
)

const (
	testService = "mem-svc"
	waitFor     = 2 * time.Second
	tick        = 5 * time.Millisecond
)

// ============================================================================
//                              测试辅助
// ============================================================================

type sessionRecorder struct {
	mu        sync.Mutex
	states    map[types.PeerID][]types.PeerState
	data      [][]byte
	resources []string
	errs      []error
}

func newSessionRecorder() *sessionRecorder {
	return &sessionRecorder{states: make(map[types.PeerID][]types.PeerState)}
}

func (r *sessionRecorder) OnPeerStateChanged(peer types.PeerID, state types.PeerState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[peer] = append(r.states[peer], state)
}

func (r *sessionRecorder) OnDataReceived(_ types.PeerID, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data = append(r.data, data)
}

func (r *sessionRecorder) OnResourceFinished(_ types.PeerID, _ string, localPath string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resources = append(r.resources, localPath)
	r.errs = append(r.errs, err)
}

func (r *sessionRecorder) statesOf(peer types.PeerID) []types.PeerState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.PeerState(nil), r.states[peer]...)
}

func (r *sessionRecorder) last(peer types.PeerID) types.PeerState {
	states := r.statesOf(peer)
	if len(states) == 0 {
		return types.PeerConnecting
	}
	return states[len(states)-1]
}

type browserRecorder struct {
	mu    sync.Mutex
	found map[types.PeerID]types.DiscoveryInfo
	lost  []types.PeerID
}

func (r *browserRecorder) OnPeerFound(peer types.PeerID, info types.DiscoveryInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.found == nil {
		r.found = make(map[types.PeerID]types.DiscoveryInfo)
	}
	r.found[peer] = info
}

func (r *browserRecorder) OnPeerLost(peer types.PeerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lost = append(r.lost, peer)
}

func (r *browserRecorder) foundInfo(peer types.PeerID) (types.DiscoveryInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.found[peer]
	return info, ok
}

func (r *browserRecorder) lostPeers() []types.PeerID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.PeerID(nil), r.lost...)
}

// advertiserFunc 把函数适配为广播器观察者
type advertiserFunc func(peer types.PeerID, context []byte, respond pkgif.InvitationResponder)

func (f advertiserFunc) OnInvitation(peer types.PeerID, context []byte, respond pkgif.InvitationResponder) {
	f(peer, context, respond)
}

type node struct {
	id  types.PeerID
	s   *Session
	rec *sessionRecorder
}

func newTestNetwork(t *testing.T) (*Network, *clock.Mock) {
	t.Helper()
	mock := clock.NewMock()
	n, err := NewNetwork(&Config{
		ResourceDir: t.TempDir(),
		Clock:       mock,
		Logger:      logger.Discard(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = n.Close() })
	return n, mock
}

func newNode(t *testing.T, n *Network, name string) *node {
	t.Helper()
	id, err := types.NewPeerID(name)
	require.NoError(t, err)
	s, err := n.CreateSession(id)
	require.NoError(t, err)
	rec := newSessionRecorder()
	s.SetObserver(rec)
	return &node{id: id, s: s.(*Session), rec: rec}
}

// advertise 为 nd 启动广播器，邀请交给 handler
func advertise(t *testing.T, n *Network, nd *node, handler advertiserFunc) *Advertiser {
	t.Helper()
	adv, err := n.NewAdvertiser(nd.id, testService, types.DiscoveryInfo{"room": "lobby"})
	require.NoError(t, err)
	if handler != nil {
		adv.SetObserver(handler)
	}
	require.NoError(t, adv.Start())
	return adv.(*Advertiser)
}

func browse(t *testing.T, n *Network, nd *node) (*Browser, *browserRecorder) {
	t.Helper()
	br, err := n.NewBrowser(nd.id, testService)
	require.NoError(t, err)
	rec := &browserRecorder{}
	br.SetObserver(rec)
	require.NoError(t, br.Start())
	return br.(*Browser), rec
}

func connected(t *testing.T, n *Network) (a, b *node) {
	t.Helper()
	a, b = newNode(t, n, "alice"), newNode(t, n, "bob")
	advertise(t, n, b, func(_ types.PeerID, _ []byte, respond pkgif.InvitationResponder) {
		respond(true, b.s)
	})
	br, _ := browse(t, n, a)
	br.InvitePeer(b.id, a.s, nil, time.Minute)

	require.Eventually(t, func() bool {
		return a.rec.last(b.id) == types.PeerConnected && b.rec.last(a.id) == types.PeerConnected
	}, waitFor, tick)
	return a, b
}

// ============================================================================
//                              发现
// ============================================================================

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.ErrorIs(t, (&Config{}).Validate(), ErrInvalidConfig)

	_, err := NewNetwork(&Config{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestDiscovery_FoundAndLost(t *testing.T) {
	n, _ := newTestNetwork(t)
	a, b, c := newNode(t, n, "alice"), newNode(t, n, "bob"), newNode(t, n, "carol")

	// 先广播后浏览
	advB := advertise(t, n, b, nil)
	_, recA := browse(t, n, a)

	// 先浏览后广播
	advertise(t, n, c, nil)

	require.Eventually(t, func() bool {
		_, okB := recA.foundInfo(b.id)
		_, okC := recA.foundInfo(c.id)
		return okB && okC
	}, waitFor, tick)

	info, _ := recA.foundInfo(b.id)
	assert.Equal(t, "lobby", info["room"])

	advB.Stop()
	advB.Stop()
	require.Eventually(t, func() bool { return len(recA.lostPeers()) == 1 }, waitFor, tick)
	assert.Equal(t, b.id, recA.lostPeers()[0])
}

// TestDiscovery_IgnoresSelf 不会发现自己的广播
func TestDiscovery_IgnoresSelf(t *testing.T) {
	n, _ := newTestNetwork(t)
	a := newNode(t, n, "alice")

	advertise(t, n, a, nil)
	_, rec := browse(t, n, a)

	time.Sleep(50 * time.Millisecond)
	_, ok := rec.foundInfo(a.id)
	assert.False(t, ok)
}

func TestDiscovery_StoppedBrowserSilent(t *testing.T) {
	n, _ := newTestNetwork(t)
	a, b := newNode(t, n, "alice"), newNode(t, n, "bob")

	br, rec := browse(t, n, a)
	br.Stop()
	advertise(t, n, b, nil)

	time.Sleep(50 * time.Millisecond)
	_, ok := rec.foundInfo(b.id)
	assert.False(t, ok)
}

// ============================================================================
//                              邀请
// ============================================================================

func TestInvite_Accepted(t *testing.T) {
	n, _ := newTestNetwork(t)
	a, b := newNode(t, n, "alice"), newNode(t, n, "bob")

	var (
		mu      sync.Mutex
		from    types.PeerID
		context []byte
	)
	advertise(t, n, b, func(peer types.PeerID, ctx []byte, respond pkgif.InvitationResponder) {
		mu.Lock()
		from, context = peer, ctx
		mu.Unlock()
		respond(true, b.s)
	})
	br, _ := browse(t, n, a)
	br.InvitePeer(b.id, a.s, []byte("hi"), time.Minute)

	require.Eventually(t, func() bool {
		return a.rec.last(b.id) == types.PeerConnected && b.rec.last(a.id) == types.PeerConnected
	}, waitFor, tick)

	assert.Equal(t, []types.PeerState{types.PeerConnecting, types.PeerConnected}, a.rec.statesOf(b.id))
	assert.Equal(t, []types.PeerID{b.id}, a.s.ConnectedPeers())
	assert.Equal(t, []types.PeerID{a.id}, b.s.ConnectedPeers())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, a.id, from)
	assert.Equal(t, []byte("hi"), context)
}

func TestInvite_Rejected(t *testing.T) {
	n, _ := newTestNetwork(t)
	a, b := newNode(t, n, "alice"), newNode(t, n, "bob")

	advertise(t, n, b, func(_ types.PeerID, _ []byte, respond pkgif.InvitationResponder) {
		respond(false, nil)
	})
	br, _ := browse(t, n, a)
	br.InvitePeer(b.id, a.s, nil, time.Minute)

	require.Eventually(t, func() bool { return a.rec.last(b.id) == types.PeerNotConnected }, waitFor, tick)
	assert.Empty(t, a.s.ConnectedPeers())
	assert.Empty(t, b.rec.statesOf(a.id))
}

func TestInvite_NoAdvertiser(t *testing.T) {
	n, _ := newTestNetwork(t)
	a, b := newNode(t, n, "alice"), newNode(t, n, "bob")

	br, _ := browse(t, n, a)
	br.InvitePeer(b.id, a.s, nil, time.Minute)

	require.Eventually(t, func() bool { return a.rec.last(b.id) == types.PeerNotConnected }, waitFor, tick)
}

// TestInvite_NoObserver 没有观察者的广播器拒绝邀请
func TestInvite_NoObserver(t *testing.T) {
	n, _ := newTestNetwork(t)
	a, b := newNode(t, n, "alice"), newNode(t, n, "bob")

	adv, err := n.NewAdvertiser(b.id, testService, nil)
	require.NoError(t, err)
	require.NoError(t, adv.Start())

	br, _ := browse(t, n, a)
	br.InvitePeer(b.id, a.s, nil, time.Minute)

	require.Eventually(t, func() bool { return a.rec.last(b.id) == types.PeerNotConnected }, waitFor, tick)
}

func TestInvite_Timeout(t *testing.T) {
	n, mock := newTestNetwork(t)
	a, b := newNode(t, n, "alice"), newNode(t, n, "bob")

	responders := make(chan pkgif.InvitationResponder, 1)
	advertise(t, n, b, func(_ types.PeerID, _ []byte, respond pkgif.InvitationResponder) {
		responders <- respond
	})
	br, _ := browse(t, n, a)
	br.InvitePeer(b.id, a.s, nil, 30*time.Second)

	var respond pkgif.InvitationResponder
	select {
	case respond = <-responders:
	case <-time.After(waitFor):
		t.Fatal("invitation not delivered")
	}

	require.Eventually(t, func() bool { return len(a.rec.statesOf(b.id)) == 1 }, waitFor, tick)
	mock.Add(29 * time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []types.PeerState{types.PeerConnecting}, a.rec.statesOf(b.id))

	mock.Add(time.Second)
	require.Eventually(t, func() bool { return a.rec.last(b.id) == types.PeerNotConnected }, waitFor, tick)

	// 超时之后的应答被忽略
	respond(true, b.s)
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, a.s.ConnectedPeers())
	assert.Empty(t, b.s.ConnectedPeers())
}

func TestInvite_ForeignSession(t *testing.T) {
	n, _ := newTestNetwork(t)
	other, _ := newTestNetwork(t)
	a := newNode(t, other, "alice")
	b := newNode(t, n, "bob")

	carol, err := types.NewPeerID("carol")
	require.NoError(t, err)

	br, _ := browse(t, n, b)
	br.InvitePeer(carol, a.s, nil, time.Minute)

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, a.rec.statesOf(carol))
}

// ============================================================================
//                              会话
// ============================================================================

func TestSession_Send(t *testing.T) {
	n, _ := newTestNetwork(t)
	a, b := connected(t, n)

	payload := []byte("hello")
	require.NoError(t, a.s.Send(payload, []types.PeerID{b.id}, types.Reliable))
	payload[0] = 'j'

	require.Eventually(t, func() bool {
		b.rec.mu.Lock()
		defer b.rec.mu.Unlock()
		return len(b.rec.data) == 1
	}, waitFor, tick)
	b.rec.mu.Lock()
	assert.Equal(t, []byte("hello"), b.rec.data[0])
	b.rec.mu.Unlock()

	stranger, err := types.NewPeerID("carol")
	require.NoError(t, err)
	assert.ErrorIs(t, a.s.Send(payload, []types.PeerID{stranger}, types.Unreliable), ErrPeerNotConnected)
}

func TestSession_Disconnect(t *testing.T) {
	n, _ := newTestNetwork(t)
	a, b := connected(t, n)

	a.s.Disconnect()
	a.s.Disconnect()

	require.Eventually(t, func() bool { return b.rec.last(a.id) == types.PeerNotConnected }, waitFor, tick)
	assert.Empty(t, b.s.ConnectedPeers())
	assert.Empty(t, a.s.ConnectedPeers())
	assert.ErrorIs(t, a.s.Send([]byte("x"), []types.PeerID{b.id}, types.Reliable), ErrSessionClosed)
}

func TestSession_SendResource(t *testing.T) {
	n, _ := newTestNetwork(t)
	a, b := connected(t, n)

	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("resource body"), 0o600))

	done := make(chan error, 1)
	progress, err := a.s.SendResource(path, "notes.txt", b.id, func(err error) { done <- err })
	require.NoError(t, err)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("onComplete not called")
	}
	assert.Equal(t, int64(13), progress.Total())
	assert.Equal(t, int64(13), progress.Completed())
	assert.InDelta(t, 1.0, progress.Fraction(), 1e-9)

	require.Eventually(t, func() bool {
		b.rec.mu.Lock()
		defer b.rec.mu.Unlock()
		return len(b.rec.resources) == 1
	}, waitFor, tick)

	b.rec.mu.Lock()
	localPath, rerr := b.rec.resources[0], b.rec.errs[0]
	b.rec.mu.Unlock()
	require.NoError(t, rerr)
	got, err := os.ReadFile(localPath)
	require.NoError(t, err)
	assert.Equal(t, "resource body", string(got))
}

func TestSession_SendResourceErrors(t *testing.T) {
	n, _ := newTestNetwork(t)
	a, b := connected(t, n)

	_, err := a.s.SendResource(filepath.Join(t.TempDir(), "missing"), "missing", b.id, nil)
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = a.s.SendResource(t.TempDir(), "dir", b.id, nil)
	assert.Error(t, err)

	stranger, err := types.NewPeerID("carol")
	require.NoError(t, err)
	_, err = a.s.SendResource("unused", "x", stranger, nil)
	assert.ErrorIs(t, err, ErrPeerNotConnected)
}

func TestCancelReader(t *testing.T) {
	tr := &transfer{total: 4, cancel: make(chan struct{})}
	r := &cancelReader{r: &fixedReader{data: []byte("abcd")}, tr: tr}

	buf := make([]byte, 2)
	n, err := r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.InDelta(t, 0.5, tr.Fraction(), 1e-9)

	tr.Cancel()
	tr.Cancel()
	_, err = r.Read(buf)
	assert.ErrorIs(t, err, ErrTransferCancelled)
}

type fixedReader struct {
	data []byte
}

func (f *fixedReader) Read(p []byte) (int, error) {
	n := copy(p, f.data)
	f.data = f.data[n:]
	return n, nil
}

func TestNetwork_Close(t *testing.T) {
	n, _ := newTestNetwork(t)
	a, b := connected(t, n)

	require.NoError(t, n.Close())
	require.NoError(t, n.Close())

	assert.Empty(t, a.s.ConnectedPeers())
	assert.Empty(t, b.s.ConnectedPeers())

	_, err := n.CreateSession(a.id)
	assert.ErrorIs(t, err, ErrNetworkClosed)
	_, err = n.NewBrowser(a.id, testService)
	assert.ErrorIs(t, err, ErrNetworkClosed)
}
