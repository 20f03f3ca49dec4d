package tcp

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-peerkit/internal/util/logger"
	pkgif "github.com/dep2p/go-peerkit/pkg/interfaces"
	"github.com/dep2p/go-peerkit/pkg/types"
)

const (
	testService = "test-svc"
	waitFor     = 5 * time.Second
	tick        = 10 * time.Millisecond
)

// ============================================================================
//                              测试辅助
// ============================================================================

type resourceEvent struct {
	peer      types.PeerID
	name      string
	localPath string
	err       error
}

// recorder 记录会话回调
type recorder struct {
	mu        sync.Mutex
	states    map[types.PeerID][]types.PeerState
	data      [][]byte
	resources []resourceEvent
}

func newRecorder() *recorder {
	return &recorder{states: make(map[types.PeerID][]types.PeerState)}
}

func (r *recorder) OnPeerStateChanged(peer types.PeerID, state types.PeerState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[peer] = append(r.states[peer], state)
}

func (r *recorder) OnDataReceived(_ types.PeerID, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data = append(r.data, data)
}

func (r *recorder) OnResourceFinished(peer types.PeerID, name, localPath string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resources = append(r.resources, resourceEvent{peer, name, localPath, err})
}

func (r *recorder) statesOf(peer types.PeerID) []types.PeerState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.PeerState(nil), r.states[peer]...)
}

func (r *recorder) lastState(peer types.PeerID) (types.PeerState, bool) {
	states := r.statesOf(peer)
	if len(states) == 0 {
		return types.PeerNotConnected, false
	}
	return states[len(states)-1], true
}

func (r *recorder) received() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]byte(nil), r.data...)
}

func (r *recorder) finished() []resourceEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]resourceEvent(nil), r.resources...)
}

type endpoint struct {
	t   *Transport
	id  types.PeerID
	s   *Session
	rec *recorder
}

func newEndpoint(t *testing.T, name string) *endpoint {
	t.Helper()

	cfg := DefaultConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.ResourceDir = t.TempDir()
	cfg.HandshakeTimeout = 2 * time.Second
	cfg.Logger = logger.Discard()

	tr, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })

	id, err := types.NewPeerID(name)
	require.NoError(t, err)

	sess, err := tr.CreateSession(id)
	require.NoError(t, err)

	rec := newRecorder()
	sess.SetObserver(rec)
	return &endpoint{t: tr, id: id, s: sess.(*Session), rec: rec}
}

// accepting 注册总是接受邀请的处理器
func (e *endpoint) accepting() {
	e.t.SetInvitationHandler(testService, func(_ types.PeerID, _ []byte, respond pkgif.InvitationResponder) {
		respond(true, e.s)
	})
}

func (e *endpoint) addr() string {
	return e.t.Addr().String()
}

func connectPair(t *testing.T) (a, b *endpoint) {
	t.Helper()
	a, b = newEndpoint(t, "alice"), newEndpoint(t, "bob")
	b.accepting()

	a.s.Invite(b.id, b.addr(), testService, nil, waitFor)
	require.Eventually(t, func() bool {
		return len(a.s.ConnectedPeers()) == 1 && len(b.s.ConnectedPeers()) == 1
	}, waitFor, tick)
	return a, b
}

// ============================================================================
//                              邀请
// ============================================================================

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.ListenAddr = ""
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg = DefaultConfig()
	cfg.HandshakeTimeout = 0
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}

func TestTransport_InviteAccepted(t *testing.T) {
	a, b := newEndpoint(t, "alice"), newEndpoint(t, "bob")

	var (
		mu      sync.Mutex
		inviter types.PeerID
		context []byte
	)
	b.t.SetInvitationHandler(testService, func(peer types.PeerID, ctx []byte, respond pkgif.InvitationResponder) {
		mu.Lock()
		inviter, context = peer, ctx
		mu.Unlock()
		respond(true, b.s)
	})

	a.s.Invite(b.id, b.addr(), testService, []byte("ctx"), waitFor)

	require.Eventually(t, func() bool {
		st, ok := b.rec.lastState(a.id)
		return ok && st == types.PeerConnected
	}, waitFor, tick)
	require.Eventually(t, func() bool {
		st, ok := a.rec.lastState(b.id)
		return ok && st == types.PeerConnected
	}, waitFor, tick)

	assert.Equal(t, []types.PeerState{types.PeerConnecting, types.PeerConnected}, a.rec.statesOf(b.id))
	assert.Equal(t, []types.PeerState{types.PeerConnected}, b.rec.statesOf(a.id))
	assert.Equal(t, []types.PeerID{b.id}, a.s.ConnectedPeers())
	assert.Equal(t, []types.PeerID{a.id}, b.s.ConnectedPeers())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, a.id, inviter)
	assert.Equal(t, []byte("ctx"), context)
}

func TestTransport_InviteRejected(t *testing.T) {
	a, b := newEndpoint(t, "alice"), newEndpoint(t, "bob")
	b.t.SetInvitationHandler(testService, func(_ types.PeerID, _ []byte, respond pkgif.InvitationResponder) {
		respond(false, nil)
	})

	a.s.Invite(b.id, b.addr(), testService, nil, waitFor)

	require.Eventually(t, func() bool {
		st, ok := a.rec.lastState(b.id)
		return ok && st == types.PeerNotConnected
	}, waitFor, tick)
	assert.Equal(t, []types.PeerState{types.PeerConnecting, types.PeerNotConnected}, a.rec.statesOf(b.id))
	assert.Empty(t, a.s.ConnectedPeers())
	assert.Empty(t, b.s.ConnectedPeers())
}

func TestTransport_InviteWithoutHandler(t *testing.T) {
	a, b := newEndpoint(t, "alice"), newEndpoint(t, "bob")

	a.s.Invite(b.id, b.addr(), "other-svc", nil, waitFor)

	require.Eventually(t, func() bool {
		st, ok := a.rec.lastState(b.id)
		return ok && st == types.PeerNotConnected
	}, waitFor, tick)
	assert.Empty(t, b.rec.statesOf(a.id))
}

// TestTransport_InviteWrongPeer 应答方身份与预期不符时放弃连接
func TestTransport_InviteWrongPeer(t *testing.T) {
	a, b := newEndpoint(t, "alice"), newEndpoint(t, "bob")
	b.accepting()

	impostor, err := types.NewPeerID("bob")
	require.NoError(t, err)

	a.s.Invite(impostor, b.addr(), testService, nil, waitFor)

	require.Eventually(t, func() bool {
		st, ok := a.rec.lastState(impostor)
		return ok && st == types.PeerNotConnected
	}, waitFor, tick)
	assert.Empty(t, a.s.ConnectedPeers())
}

func TestTransport_InviteUnreachable(t *testing.T) {
	a := newEndpoint(t, "alice")
	b := newEndpoint(t, "bob")
	addr := b.addr()
	require.NoError(t, b.t.Close())

	a.s.Invite(b.id, addr, testService, nil, time.Second)

	require.Eventually(t, func() bool {
		st, ok := a.rec.lastState(b.id)
		return ok && st == types.PeerNotConnected
	}, waitFor, tick)
}

// TestTransport_InviteConnectedPeer 邀请已连接的节点不产生任何回调
func TestTransport_InviteConnectedPeer(t *testing.T) {
	a, b := connectPair(t)

	a.s.Invite(b.id, b.addr(), testService, nil, waitFor)
	b.s.Invite(a.id, a.addr(), testService, nil, waitFor)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, []types.PeerState{types.PeerConnecting, types.PeerConnected}, a.rec.statesOf(b.id))
	assert.Equal(t, []types.PeerState{types.PeerConnected}, b.rec.statesOf(a.id))
	assert.Equal(t, []types.PeerID{b.id}, a.s.ConnectedPeers())
}

// ============================================================================
//                              数据
// ============================================================================

func TestSession_Send(t *testing.T) {
	a, b := connectPair(t)

	require.NoError(t, a.s.Send([]byte("one"), []types.PeerID{b.id}, types.Reliable))
	require.NoError(t, a.s.Send([]byte("two"), []types.PeerID{b.id}, types.Unreliable))
	require.NoError(t, b.s.Send([]byte("back"), []types.PeerID{a.id}, types.Reliable))

	require.Eventually(t, func() bool { return len(b.rec.received()) == 2 }, waitFor, tick)
	assert.Equal(t, [][]byte{[]byte("one"), []byte("two")}, b.rec.received())

	require.Eventually(t, func() bool { return len(a.rec.received()) == 1 }, waitFor, tick)
	assert.Equal(t, []byte("back"), a.rec.received()[0])
}

func TestSession_SendNotConnected(t *testing.T) {
	a, b := connectPair(t)

	stranger, err := types.NewPeerID("carol")
	require.NoError(t, err)

	err = a.s.Send([]byte("x"), []types.PeerID{b.id, stranger}, types.Reliable)
	assert.ErrorIs(t, err, ErrPeerNotConnected)

	// 已连接的节点仍然收到
	require.Eventually(t, func() bool { return len(b.rec.received()) == 1 }, waitFor, tick)
}

func TestSession_DisconnectNotifiesRemote(t *testing.T) {
	a, b := connectPair(t)

	b.s.Disconnect()

	require.Eventually(t, func() bool {
		st, ok := a.rec.lastState(b.id)
		return ok && st == types.PeerNotConnected
	}, waitFor, tick)
	assert.Empty(t, a.s.ConnectedPeers())
	assert.Empty(t, b.s.ConnectedPeers())

	assert.ErrorIs(t, b.s.Send([]byte("x"), []types.PeerID{a.id}, types.Reliable), ErrSessionClosed)

	// 已断开的会话不再接受邀请
	b.s.Invite(a.id, a.addr(), testService, nil, waitFor)
	assert.Empty(t, b.s.ConnectedPeers())
}

// ============================================================================
//                              资源
// ============================================================================

func TestSession_SendResource(t *testing.T) {
	a, b := connectPair(t)

	content := make([]byte, 3*resourceChunkSize+17)
	for i := range content {
		content[i] = byte(i % 251)
	}
	path := filepath.Join(t.TempDir(), "photo.bin")
	require.NoError(t, os.WriteFile(path, content, 0o600))

	done := make(chan error, 1)
	progress, err := a.s.SendResource(path, "../photo.bin", b.id, func(err error) { done <- err })
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), progress.Total())

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("onComplete not called")
	}
	assert.Equal(t, int64(len(content)), progress.Completed())
	assert.InDelta(t, 1.0, progress.Fraction(), 1e-9)

	require.Eventually(t, func() bool { return len(b.rec.finished()) == 1 }, waitFor, tick)
	ev := b.rec.finished()[0]
	require.NoError(t, ev.err)
	assert.Equal(t, a.id, ev.peer)
	assert.Equal(t, "../photo.bin", ev.name)
	assert.Equal(t, b.t.config.ResourceDir, filepath.Dir(ev.localPath))

	got, err := os.ReadFile(ev.localPath)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestSession_SendResourceEmptyFile(t *testing.T) {
	a, b := connectPair(t)

	path := filepath.Join(t.TempDir(), "empty")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	done := make(chan error, 1)
	progress, err := a.s.SendResource(path, "empty", b.id, func(err error) { done <- err })
	require.NoError(t, err)
	require.NoError(t, <-done)
	assert.Equal(t, int64(0), progress.Total())

	require.Eventually(t, func() bool { return len(b.rec.finished()) == 1 }, waitFor, tick)
	ev := b.rec.finished()[0]
	require.NoError(t, ev.err)
	info, err := os.Stat(ev.localPath)
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestSession_SendResourceErrors(t *testing.T) {
	a, b := connectPair(t)

	_, err := a.s.SendResource(filepath.Join(t.TempDir(), "missing"), "missing", b.id, nil)
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = a.s.SendResource(t.TempDir(), "dir", b.id, nil)
	assert.Error(t, err)

	stranger, err := types.NewPeerID("carol")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	_, err = a.s.SendResource(path, "f", stranger, nil)
	assert.ErrorIs(t, err, ErrPeerNotConnected)
}

func TestTransfer_Cancel(t *testing.T) {
	tr := &transfer{total: 10, cancel: make(chan struct{})}
	assert.False(t, tr.isCancelled())
	assert.Zero(t, tr.Fraction())

	tr.completed.Store(5)
	assert.InDelta(t, 0.5, tr.Fraction(), 1e-9)

	tr.Cancel()
	tr.Cancel()
	assert.True(t, tr.isCancelled())
}

// ============================================================================
//                              关闭
// ============================================================================

func TestTransport_Close(t *testing.T) {
	a, b := connectPair(t)

	require.NoError(t, b.t.Close())
	require.NoError(t, b.t.Close())

	require.Eventually(t, func() bool {
		st, ok := a.rec.lastState(b.id)
		return ok && st == types.PeerNotConnected
	}, waitFor, tick)

	_, err := b.t.CreateSession(b.id)
	assert.ErrorIs(t, err, ErrTransportClosed)
}
