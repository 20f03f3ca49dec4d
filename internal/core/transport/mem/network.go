package mem

import (
	"log/slog"
	"sync"

	"github.com/dep2p/go-peerkit/internal/util/dispatch"
	"github.com/dep2p/go-peerkit/internal/util/logger"
	pkgif "github.com/dep2p/go-peerkit/pkg/interfaces"
	"github.com/dep2p/go-peerkit/pkg/types"
)

// ============================================================================
//                              Network 实现
// ============================================================================

// Network 进程内网络
type Network struct {
	config *Config
	log    *slog.Logger

	// events 发现回调与邀请投递队列
	events *dispatch.Queue

	mu          sync.Mutex
	sessions    map[*Session]struct{}
	advertisers map[string]map[*Advertiser]struct{}
	browsers    map[string]map[*Browser]struct{}
	closed      bool

	// linkMu 串行化会话之间的连接与断开
	linkMu sync.Mutex
}

// 确保实现接口
var (
	_ pkgif.Transport = (*Network)(nil)
	_ pkgif.Discovery = (*Network)(nil)
)

// NewNetwork 创建进程内网络
func NewNetwork(config *Config) (*Network, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &Network{
		config:      config,
		log:         logger.OrDefault(config.Logger, "transport/mem"),
		events:      dispatch.New(),
		sessions:    make(map[*Session]struct{}),
		advertisers: make(map[string]map[*Advertiser]struct{}),
		browsers:    make(map[string]map[*Browser]struct{}),
	}, nil
}

// CreateSession 为本地身份创建会话
func (n *Network) CreateSession(local types.PeerID) (pkgif.Session, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return nil, ErrNetworkClosed
	}
	s := newSession(n, local)
	n.sessions[s] = struct{}{}
	return s, nil
}

// NewAdvertiser 创建广播器
func (n *Network) NewAdvertiser(local types.PeerID, serviceType string, info types.DiscoveryInfo) (pkgif.Advertiser, error) {
	if n.isClosed() {
		return nil, ErrNetworkClosed
	}
	return &Advertiser{n: n, local: local, serviceType: serviceType, info: info.Clone()}, nil
}

// NewBrowser 创建浏览器
func (n *Network) NewBrowser(local types.PeerID, serviceType string) (pkgif.Browser, error) {
	if n.isClosed() {
		return nil, ErrNetworkClosed
	}
	return &Browser{n: n, local: local, serviceType: serviceType}, nil
}

// Close 断开全部会话并停止投递
func (n *Network) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	sessions := make([]*Session, 0, len(n.sessions))
	for s := range n.sessions {
		sessions = append(sessions, s)
	}
	n.advertisers = make(map[string]map[*Advertiser]struct{})
	n.browsers = make(map[string]map[*Browser]struct{})
	n.mu.Unlock()

	for _, s := range sessions {
		s.Disconnect()
	}
	n.events.Close()
	n.log.Debug("进程内网络已关闭")
	return nil
}

func (n *Network) isClosed() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.closed
}

func (n *Network) removeSession(s *Session) {
	n.mu.Lock()
	delete(n.sessions, s)
	n.mu.Unlock()
}

// owns 会话是否属于本网络
func (n *Network) owns(s pkgif.Session) (*Session, bool) {
	ms, ok := s.(*Session)
	if !ok || ms.n != n {
		return nil, false
	}
	return ms, true
}

// ============================================================================
//                              注册表
// ============================================================================

func (n *Network) addAdvertiser(a *Advertiser) []*Browser {
	n.mu.Lock()
	defer n.mu.Unlock()

	set := n.advertisers[a.serviceType]
	if set == nil {
		set = make(map[*Advertiser]struct{})
		n.advertisers[a.serviceType] = set
	}
	set[a] = struct{}{}
	return n.browsersLocked(a.serviceType, a.local)
}

func (n *Network) removeAdvertiser(a *Advertiser) []*Browser {
	n.mu.Lock()
	defer n.mu.Unlock()

	set := n.advertisers[a.serviceType]
	if _, ok := set[a]; !ok {
		return nil
	}
	delete(set, a)
	return n.browsersLocked(a.serviceType, a.local)
}

func (n *Network) addBrowser(b *Browser) []*Advertiser {
	n.mu.Lock()
	defer n.mu.Unlock()

	set := n.browsers[b.serviceType]
	if set == nil {
		set = make(map[*Browser]struct{})
		n.browsers[b.serviceType] = set
	}
	set[b] = struct{}{}

	var advs []*Advertiser
	for a := range n.advertisers[b.serviceType] {
		if a.local != b.local {
			advs = append(advs, a)
		}
	}
	return advs
}

func (n *Network) removeBrowser(b *Browser) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.browsers[b.serviceType], b)
}

// advertiser 返回 peer 在服务类型上运行中的广播器
func (n *Network) advertiser(serviceType string, peer types.PeerID) *Advertiser {
	n.mu.Lock()
	defer n.mu.Unlock()

	for a := range n.advertisers[serviceType] {
		if a.local == peer {
			return a
		}
	}
	return nil
}

func (n *Network) browsersLocked(serviceType string, exclude types.PeerID) []*Browser {
	var bs []*Browser
	for b := range n.browsers[serviceType] {
		if b.local != exclude {
			bs = append(bs, b)
		}
	}
	return bs
}

// ============================================================================
//                              会话连接
// ============================================================================

// link 连接两个会话
//
// 任一方已关闭时返回 false；已经连接时返回 true，不重复通知。
func (n *Network) link(a, b *Session) bool {
	n.linkMu.Lock()
	defer n.linkMu.Unlock()

	if a == b || a.isClosed() || b.isClosed() {
		return false
	}
	if a.remote(b.local) != nil {
		return true
	}
	a.addPeer(b)
	b.addPeer(a)

	a.emitPeerState(b.local, types.PeerConnected)
	b.emitPeerState(a.local, types.PeerConnected)
	n.log.Debug("会话已连接", "a", a.local.ShortString(), "b", b.local.ShortString())
	return true
}

// unlink 断开 s 的全部连接，对端收到 PeerNotConnected
func (n *Network) unlink(s *Session) {
	n.linkMu.Lock()
	defer n.linkMu.Unlock()

	for _, remote := range s.takePeers() {
		if remote.removePeer(s.local, s) {
			remote.emitPeerState(s.local, types.PeerNotConnected)
		}
	}
}
