package coordinator

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-peerkit/internal/mocks"
	"github.com/dep2p/go-peerkit/internal/util/logger"
	pkgif "github.com/dep2p/go-peerkit/pkg/interfaces"
	"github.com/dep2p/go-peerkit/pkg/types"
)

const testService = "peerkit-test"

// ============================================================================
//                              测试辅助
// ============================================================================

type fakeSessions struct {
	session *mocks.MockSession
	err     error
	calls   int
}

func (f *fakeSessions) Session() (pkgif.Session, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.session, nil
}

func peerWithKey(name string, b byte) types.PeerID {
	return types.PeerID{Name: name, Key: [types.KeySize]byte{b}}
}

func newTestCoordinator(t *testing.T, local types.PeerID) (*Coordinator, *mocks.MockDiscovery, *fakeSessions) {
	t.Helper()

	disc := mocks.NewMockDiscovery()
	sessions := &fakeSessions{session: mocks.NewMockSession(local)}
	cfg := DefaultConfig()
	cfg.Logger = logger.Discard()

	c, err := New(cfg, local, disc, sessions, nil)
	require.NoError(t, err)
	return c, disc, sessions
}

// ============================================================================
//                              配置测试
// ============================================================================

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, 30*time.Second, cfg.InviteTimeout)

	cfg.InviteTimeout = 0
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg = DefaultConfig()
	cfg.TieBreak = types.TieBreak(9)
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg = DefaultConfig()
	cfg.FoundCacheSize = 0
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	_, err := New(cfg, peerWithKey("a", 1), mocks.NewMockDiscovery(), &fakeSessions{}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

// ============================================================================
//                              决胜测试
// ============================================================================

// TestShouldAccept_Complementary 任意两个不同身份恰好一方接受
func TestShouldAccept_Complementary(t *testing.T) {
	for i := 0; i < 100; i++ {
		a, err := types.NewPeerID("a")
		require.NoError(t, err)
		b, err := types.NewPeerID("b")
		require.NoError(t, err)

		ab := ShouldAccept(a, b)
		ba := ShouldAccept(b, a)
		assert.NotEqual(t, ab, ba, "exactly one side must accept")
	}

	p := peerWithKey("same", 7)
	assert.False(t, ShouldAccept(p, p))
}

// TestCoordinator_SymmetricInvitations 双方同时邀请，只有排序键较大的一方接受
func TestCoordinator_SymmetricInvitations(t *testing.T) {
	hi := peerWithKey("hi", 0xf0)
	lo := peerWithKey("lo", 0x01)

	cHi, dHi, _ := newTestCoordinator(t, hi)
	cLo, dLo, _ := newTestCoordinator(t, lo)

	for _, c := range []*Coordinator{cHi, cLo} {
		require.NoError(t, c.StartAdvertising(testService, nil))
		require.NoError(t, c.StartBrowsing(testService))
	}

	acceptedHi, _ := dHi.LastAdvertiser().FireInvitation(lo, nil)
	acceptedLo, _ := dLo.LastAdvertiser().FireInvitation(hi, nil)

	assert.True(t, acceptedHi)
	assert.False(t, acceptedLo)
	assert.False(t, cHi.Advertising(), "winner stops advertising")
	assert.True(t, cLo.Advertising())
}

// ============================================================================
//                              角色管理测试
// ============================================================================

func TestCoordinator_StartAdvertising_Idempotent(t *testing.T) {
	c, disc, _ := newTestCoordinator(t, peerWithKey("a", 1))
	info := types.DiscoveryInfo{"room": "lobby"}

	require.NoError(t, c.StartAdvertising(testService, info))
	require.NoError(t, c.StartAdvertising(testService, info))

	require.Equal(t, 1, disc.AdvertiserCount())
	adv := disc.LastAdvertiser()
	assert.Equal(t, 1, adv.StartCalls)
	assert.Equal(t, testService, adv.ServiceType)
	assert.Equal(t, "lobby", adv.Info["room"])
	assert.NotNil(t, adv.CurrentObserver())
	assert.True(t, c.Advertising())
}

func TestCoordinator_StopAdvertising_DetachesObserver(t *testing.T) {
	c, disc, _ := newTestCoordinator(t, peerWithKey("a", 1))

	// 未启动时停止是空操作
	c.StopAdvertising()

	require.NoError(t, c.StartAdvertising(testService, nil))
	adv := disc.LastAdvertiser()

	c.StopAdvertising()
	c.StopAdvertising()

	assert.Nil(t, adv.CurrentObserver())
	assert.Equal(t, 1, adv.StopCalls)
	assert.False(t, c.Advertising())

	// 重新启动创建新句柄
	require.NoError(t, c.StartAdvertising(testService, nil))
	assert.Equal(t, 2, disc.AdvertiserCount())
}

func TestCoordinator_StartErrors(t *testing.T) {
	c, disc, _ := newTestCoordinator(t, peerWithKey("a", 1))

	assert.ErrorIs(t, c.StartAdvertising("", nil), ErrEmptyServiceType)
	assert.ErrorIs(t, c.StartBrowsing(""), ErrEmptyServiceType)

	disc.NewAdvertiserErr = errors.New("boom")
	assert.ErrorIs(t, c.StartAdvertising(testService, nil), ErrAdvertiseFailed)
	assert.False(t, c.Advertising())

	disc.NewBrowserErr = errors.New("boom")
	assert.ErrorIs(t, c.StartBrowsing(testService), ErrBrowseFailed)
	assert.False(t, c.Browsing())
}

func TestCoordinator_StartFailure_Detaches(t *testing.T) {
	local := peerWithKey("a", 1)
	disc := &failingDiscovery{MockDiscovery: mocks.NewMockDiscovery()}
	c, err := New(&Config{InviteTimeout: time.Second, FoundCacheSize: 4, Logger: logger.Discard()}, local, disc, &fakeSessions{}, nil)
	require.NoError(t, err)

	assert.ErrorIs(t, c.StartBrowsing(testService), ErrBrowseFailed)
	assert.False(t, c.Browsing())
	require.Equal(t, 1, disc.BrowserCount())
	assert.Nil(t, disc.LastBrowser().CurrentObserver())
}

// failingDiscovery 创建的浏览者启动失败
type failingDiscovery struct {
	*mocks.MockDiscovery
}

func (f *failingDiscovery) NewBrowser(local types.PeerID, serviceType string) (pkgif.Browser, error) {
	b, err := f.MockDiscovery.NewBrowser(local, serviceType)
	if err != nil {
		return nil, err
	}
	b.(*mocks.MockBrowser).StartErr = errors.New("socket closed")
	return b, nil
}

func TestCoordinator_Reset(t *testing.T) {
	c, disc, _ := newTestCoordinator(t, peerWithKey("a", 1))
	require.NoError(t, c.StartAdvertising(testService, nil))
	require.NoError(t, c.StartBrowsing(testService))

	remote := peerWithKey("b", 2)
	disc.LastBrowser().FirePeerFound(remote, nil)
	c.Remember(remote)

	c.Reset()

	assert.False(t, c.Advertising())
	assert.False(t, c.Browsing())
	assert.Empty(t, c.FoundPeers())
	assert.Empty(t, c.KnownPeers())
	assert.True(t, disc.LastAdvertiser().Stopped())
	assert.True(t, disc.LastBrowser().Stopped())
}

// ============================================================================
//                              发现事件测试
// ============================================================================

func TestCoordinator_OnPeerFound_Invites(t *testing.T) {
	local := peerWithKey("a", 1)
	c, disc, sessions := newTestCoordinator(t, local)
	require.NoError(t, c.StartBrowsing(testService))
	browser := disc.LastBrowser()

	remote := peerWithKey("b", 2)
	browser.FirePeerFound(remote, types.DiscoveryInfo{"k": "v"})

	invites := browser.Invites()
	require.Len(t, invites, 1)
	assert.Equal(t, remote, invites[0].Peer)
	assert.Same(t, sessions.session, invites[0].Session)
	assert.Equal(t, DefaultInviteTimeout, invites[0].Timeout)

	info, ok := c.PeerInfo(remote)
	require.True(t, ok)
	assert.Equal(t, "v", info["k"])

	// 自身与已连接节点不邀请
	browser.FirePeerFound(local, nil)
	sessions.session.FirePeerState(remote, types.PeerConnected)
	browser.FirePeerFound(remote, nil)
	assert.Len(t, browser.Invites(), 1)
}

func TestCoordinator_OnPeerFound_SessionError(t *testing.T) {
	c, disc, sessions := newTestCoordinator(t, peerWithKey("a", 1))
	sessions.err = errors.New("no session")
	require.NoError(t, c.StartBrowsing(testService))

	disc.LastBrowser().FirePeerFound(peerWithKey("b", 2), nil)
	assert.Empty(t, disc.LastBrowser().Invites())
}

// TestCoordinator_StaleBrowserCallback 已停止浏览者的迟到回调被忽略
func TestCoordinator_StaleBrowserCallback(t *testing.T) {
	c, disc, _ := newTestCoordinator(t, peerWithKey("a", 1))
	require.NoError(t, c.StartBrowsing(testService))
	browser := disc.LastBrowser()
	stale := browser.CurrentObserver()
	require.NotNil(t, stale)

	c.StopBrowsing()
	stale.OnPeerFound(peerWithKey("b", 2), nil)

	assert.Empty(t, browser.Invites())
	assert.Empty(t, c.FoundPeers())
}

func TestCoordinator_OnPeerLost(t *testing.T) {
	c, disc, _ := newTestCoordinator(t, peerWithKey("a", 1))
	require.NoError(t, c.StartBrowsing(testService))

	b := peerWithKey("b", 2)
	d := peerWithKey("d", 3)
	disc.LastBrowser().FirePeerFound(b, nil)
	disc.LastBrowser().FirePeerFound(d, nil)
	disc.LastBrowser().FirePeerLost(b)

	assert.Equal(t, []types.PeerID{d}, c.FoundPeers())
}

func TestCoordinator_FoundCacheEviction(t *testing.T) {
	local := peerWithKey("a", 1)
	disc := mocks.NewMockDiscovery()
	sessions := &fakeSessions{session: mocks.NewMockSession(local)}
	c, err := New(&Config{InviteTimeout: time.Second, FoundCacheSize: 2, Logger: logger.Discard()}, local, disc, sessions, nil)
	require.NoError(t, err)
	require.NoError(t, c.StartBrowsing(testService))

	for i := byte(2); i < 6; i++ {
		disc.LastBrowser().FirePeerFound(peerWithKey("p", i), nil)
	}
	assert.Equal(t, []types.PeerID{peerWithKey("p", 4), peerWithKey("p", 5)}, c.FoundPeers())
}

// ============================================================================
//                              邀请测试
// ============================================================================

func TestCoordinator_OnInvitation_TieBreak(t *testing.T) {
	t.Run("higher key accepts", func(t *testing.T) {
		c, disc, sessions := newTestCoordinator(t, peerWithKey("hi", 0x80))
		require.NoError(t, c.StartAdvertising(testService, nil))
		require.NoError(t, c.StartBrowsing(testService))

		var accepted []types.PeerID
		c.SetHooks(Hooks{Accepted: func(p types.PeerID) { accepted = append(accepted, p) }})

		remote := peerWithKey("lo", 0x01)
		ok, session := disc.LastAdvertiser().FireInvitation(remote, []byte("ctx"))

		assert.True(t, ok)
		assert.Same(t, sessions.session, session)
		assert.False(t, c.Advertising())
		assert.True(t, c.Browsing())
		assert.Equal(t, []types.PeerID{remote}, accepted)
	})

	t.Run("lower key rejects", func(t *testing.T) {
		c, disc, _ := newTestCoordinator(t, peerWithKey("lo", 0x01))
		require.NoError(t, c.StartAdvertising(testService, nil))
		require.NoError(t, c.StartBrowsing(testService))

		called := false
		c.SetHooks(Hooks{Accepted: func(types.PeerID) { called = true }})

		ok, session := disc.LastAdvertiser().FireInvitation(peerWithKey("hi", 0x80), nil)

		assert.False(t, ok)
		assert.Nil(t, session)
		assert.True(t, c.Advertising())
		assert.False(t, called)
	})
}

// TestCoordinator_OnInvitation_NotBrowsing 默认策略下未浏览时同样比较排序键
func TestCoordinator_OnInvitation_NotBrowsing(t *testing.T) {
	c, disc, _ := newTestCoordinator(t, peerWithKey("lo", 0x01))
	require.NoError(t, c.StartAdvertising(testService, nil))

	ok, _ := disc.LastAdvertiser().FireInvitation(peerWithKey("hi", 0x80), nil)
	assert.False(t, ok)
	assert.True(t, c.Advertising())

	ok, _ = disc.LastAdvertiser().FireInvitation(peerWithKey("lower", 0x00), nil)
	assert.True(t, ok)
	assert.False(t, c.Advertising())
}

// TestCoordinator_OnInvitation_WhileBrowsingPolicy 未浏览时没有竞争邀请，直接接受
func TestCoordinator_OnInvitation_WhileBrowsingPolicy(t *testing.T) {
	local := peerWithKey("lo", 0x01)
	disc := mocks.NewMockDiscovery()
	cfg := DefaultConfig()
	cfg.TieBreak = types.TieBreakWhileBrowsing
	cfg.Logger = logger.Discard()
	c, err := New(cfg, local, disc, &fakeSessions{session: mocks.NewMockSession(local)}, nil)
	require.NoError(t, err)

	t.Run("not browsing accepts", func(t *testing.T) {
		require.NoError(t, c.StartAdvertising(testService, nil))
		ok, _ := disc.LastAdvertiser().FireInvitation(peerWithKey("hi", 0x80), nil)
		assert.True(t, ok)
		assert.False(t, c.Advertising())
	})

	t.Run("browsing compares keys", func(t *testing.T) {
		require.NoError(t, c.StartAdvertising(testService, nil))
		require.NoError(t, c.StartBrowsing(testService))
		ok, _ := disc.LastAdvertiser().FireInvitation(peerWithKey("hi", 0x80), nil)
		assert.False(t, ok)
		assert.True(t, c.Advertising())
	})
}

func TestCoordinator_OnInvitation_Guarded(t *testing.T) {
	t.Run("cannot accept", func(t *testing.T) {
		c, disc, _ := newTestCoordinator(t, peerWithKey("hi", 0x80))
		require.NoError(t, c.StartAdvertising(testService, nil))
		c.SetHooks(Hooks{CanAccept: func() bool { return false }})

		ok, _ := disc.LastAdvertiser().FireInvitation(peerWithKey("lo", 0x01), nil)
		assert.False(t, ok)
		assert.True(t, c.Advertising())
	})

	t.Run("session error", func(t *testing.T) {
		c, disc, sessions := newTestCoordinator(t, peerWithKey("hi", 0x80))
		sessions.err = errors.New("transport down")
		require.NoError(t, c.StartAdvertising(testService, nil))

		ok, _ := disc.LastAdvertiser().FireInvitation(peerWithKey("lo", 0x01), nil)
		assert.False(t, ok)
	})

	t.Run("stale advertiser", func(t *testing.T) {
		c, disc, _ := newTestCoordinator(t, peerWithKey("hi", 0x80))
		require.NoError(t, c.StartAdvertising(testService, nil))
		stale := disc.LastAdvertiser().CurrentObserver()
		c.StopAdvertising()

		var answered, accepted bool
		stale.OnInvitation(peerWithKey("lo", 0x01), nil, func(a bool, _ pkgif.Session) {
			answered, accepted = true, a
		})
		assert.True(t, answered)
		assert.False(t, accepted)
	})
}

// ============================================================================
//                              重连测试
// ============================================================================

func TestCoordinator_Reconnect(t *testing.T) {
	c, disc, _ := newTestCoordinator(t, peerWithKey("a", 1))
	require.NoError(t, c.StartBrowsing(testService))
	browser := disc.LastBrowser()

	b := peerWithKey("b", 2)
	gone := peerWithKey("gone", 3)
	stranger := peerWithKey("s", 4)

	browser.FirePeerFound(b, nil)
	browser.FirePeerFound(gone, nil)
	browser.FirePeerFound(stranger, nil)
	browser.FirePeerLost(gone)

	c.Remember(b)
	c.Remember(gone)
	c.Remember(b)
	assert.Equal(t, []types.PeerID{b, gone}, c.KnownPeers())

	before := len(browser.Invites())
	assert.Equal(t, 1, c.Reconnect())

	invites := browser.Invites()
	require.Len(t, invites, before+1)
	assert.Equal(t, b, invites[len(invites)-1].Peer)
}

func TestCoordinator_Reconnect_NotBrowsing(t *testing.T) {
	c, _, _ := newTestCoordinator(t, peerWithKey("a", 1))
	c.Remember(peerWithKey("b", 2))
	assert.Equal(t, 0, c.Reconnect())
}
