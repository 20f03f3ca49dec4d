package mem

import (
	"slices"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	pkgif "github.com/dep2p/go-peerkit/pkg/interfaces"
	"github.com/dep2p/go-peerkit/pkg/types"
)

// ============================================================================
//                              Advertiser 实现
// ============================================================================

// Advertiser 进程内广播器
type Advertiser struct {
	n           *Network
	local       types.PeerID
	serviceType string
	info        types.DiscoveryInfo

	mu       sync.Mutex
	observer pkgif.AdvertiserObserver
	running  bool
}

// 确保实现接口
var _ pkgif.Advertiser = (*Advertiser)(nil)

// SetObserver 设置观察者
func (a *Advertiser) SetObserver(o pkgif.AdvertiserObserver) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.observer = o
}

// Start 开始广播，同服务类型的浏览器随后收到 OnPeerFound
func (a *Advertiser) Start() error {
	if a.n.isClosed() {
		return ErrNetworkClosed
	}

	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = true
	a.mu.Unlock()

	for _, b := range a.n.addAdvertiser(a) {
		b.found(a.local, a.info)
	}
	return nil
}

// Stop 停止广播，同服务类型的浏览器随后收到 OnPeerLost
func (a *Advertiser) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	a.mu.Unlock()

	for _, b := range a.n.removeAdvertiser(a) {
		b.lost(a.local)
	}
}

// invitation 把邀请交给观察者，没有观察者时拒绝
func (a *Advertiser) invitation(from types.PeerID, context []byte, respond pkgif.InvitationResponder) {
	a.mu.Lock()
	o := a.observer
	a.mu.Unlock()

	if o == nil {
		respond(false, nil)
		return
	}
	o.OnInvitation(from, context, respond)
}

// ============================================================================
//                              Browser 实现
// ============================================================================

// Browser 进程内浏览器
type Browser struct {
	n           *Network
	local       types.PeerID
	serviceType string

	mu       sync.Mutex
	observer pkgif.BrowserObserver
	running  bool
}

// 确保实现接口
var _ pkgif.Browser = (*Browser)(nil)

// SetObserver 设置观察者
func (b *Browser) SetObserver(o pkgif.BrowserObserver) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observer = o
}

// Start 开始浏览，已在运行的广播器随后以 OnPeerFound 上报
func (b *Browser) Start() error {
	if b.n.isClosed() {
		return ErrNetworkClosed
	}

	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return nil
	}
	b.running = true
	b.mu.Unlock()

	for _, a := range b.n.addBrowser(b) {
		b.found(a.local, a.info)
	}
	return nil
}

// Stop 停止浏览
func (b *Browser) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	b.mu.Unlock()

	b.n.removeBrowser(b)
}

// InvitePeer 邀请 peer 加入 session
//
// 结果以 session 上的节点状态回调上报。超时以网络的时钟计算。
func (b *Browser) InvitePeer(peer types.PeerID, session pkgif.Session, context []byte, timeout time.Duration) {
	inviter, ok := b.n.owns(session)
	if !ok {
		b.n.log.Warn("会话不属于本网络，忽略邀请", "peer", peer.ShortString())
		return
	}
	if inviter.isClosed() || inviter.remote(peer) != nil {
		return
	}
	inviter.emitPeerState(peer, types.PeerConnecting)

	inv := &invitation{inviter: inviter, peer: peer}
	if timeout > 0 {
		inv.arm(b.n.config.Clock, timeout, func() {
			if inv.settle() {
				b.n.log.Debug("邀请超时", "peer", peer.ShortString(), "timeout", timeout)
				inv.fail()
			}
		})
	}

	payload := slices.Clone(context)
	posted := b.n.events.Post(func() {
		adv := b.n.advertiser(b.serviceType, peer)
		if adv == nil {
			if inv.settle() {
				inv.fail()
			}
			return
		}
		adv.invitation(b.local, payload, func(accept bool, s pkgif.Session) {
			if !inv.settle() {
				return
			}
			invitee, ok := b.n.owns(s)
			if !accept || !ok || !b.n.link(inviter, invitee) {
				inv.fail()
			}
		})
	})
	if !posted && inv.settle() {
		inv.fail()
	}
}

func (b *Browser) current() (pkgif.BrowserObserver, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.observer, b.running
}

func (b *Browser) found(peer types.PeerID, info types.DiscoveryInfo) {
	info = info.Clone()
	b.n.events.Post(func() {
		if o, running := b.current(); running && o != nil {
			o.OnPeerFound(peer, info)
		}
	})
}

func (b *Browser) lost(peer types.PeerID) {
	b.n.events.Post(func() {
		if o, running := b.current(); running && o != nil {
			o.OnPeerLost(peer)
		}
	})
}

// ============================================================================
//                              邀请
// ============================================================================

// invitation 一次出站邀请，应答、超时与投递失败中只有第一个生效
type invitation struct {
	inviter *Session
	peer    types.PeerID

	mu      sync.Mutex
	timer   *clock.Timer
	settled bool
}

func (inv *invitation) arm(c clock.Clock, d time.Duration, onTimeout func()) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.timer = c.AfterFunc(d, onTimeout)
}

// settle 返回调用方是否赢得结果
func (inv *invitation) settle() bool {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	if inv.settled {
		return false
	}
	inv.settled = true
	if inv.timer != nil {
		inv.timer.Stop()
	}
	return true
}

// fail 上报邀请失败，对端的反向邀请已建立连接时不上报
func (inv *invitation) fail() {
	n := inv.inviter.n
	n.linkMu.Lock()
	defer n.linkMu.Unlock()

	if inv.inviter.remote(inv.peer) != nil {
		return
	}
	inv.inviter.emitPeerState(inv.peer, types.PeerNotConnected)
}
