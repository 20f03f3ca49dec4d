package coordinator

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dep2p/go-peerkit/internal/core/metrics"
	"github.com/dep2p/go-peerkit/internal/util/logger"
	pkgif "github.com/dep2p/go-peerkit/pkg/interfaces"
	"github.com/dep2p/go-peerkit/pkg/types"
)

// SessionSource 提供当前传输会话，不存在时创建
type SessionSource interface {
	Session() (pkgif.Session, error)
}

// Hooks 会话状态机注入的回调
//
// 回调在 Coordinator 不持锁时调用。
type Hooks struct {
	// CanAccept 返回 false 时拒绝所有邀请
	CanAccept func() bool

	// Accepted 接受邀请并停止广播之后调用
	Accepted func(peer types.PeerID)
}

// ============================================================================
//                              Coordinator 结构体
// ============================================================================

// Coordinator 发现协调器
type Coordinator struct {
	config    *Config
	local     types.PeerID
	discovery pkgif.Discovery
	sessions  SessionSource
	metrics   *metrics.Metrics
	log       *slog.Logger

	mu         sync.Mutex
	hooks      Hooks
	advertiser pkgif.Advertiser
	browser    pkgif.Browser
	found      *lru.Cache[types.PeerID, types.DiscoveryInfo]
	known      []types.PeerID
}

// ============================================================================
//                              构造函数
// ============================================================================

// New 创建协调器
func New(config *Config, local types.PeerID, discovery pkgif.Discovery, sessions SessionSource, m *metrics.Metrics) (*Coordinator, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	found, err := lru.New[types.PeerID, types.DiscoveryInfo](config.FoundCacheSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	return &Coordinator{
		config:    config,
		local:     local,
		discovery: discovery,
		sessions:  sessions,
		metrics:   m,
		log:       logger.OrDefault(config.Logger, "discovery/coordinator"),
		found:     found,
	}, nil
}

// SetHooks 设置状态机回调
func (c *Coordinator) SetHooks(h Hooks) {
	c.mu.Lock()
	c.hooks = h
	c.mu.Unlock()
}

// ============================================================================
//                              角色管理
// ============================================================================

// StartAdvertising 启动广播，已在广播时为空操作
func (c *Coordinator) StartAdvertising(serviceType string, info types.DiscoveryInfo) error {
	if serviceType == "" {
		return ErrEmptyServiceType
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.advertiser != nil {
		return nil
	}

	adv, err := c.discovery.NewAdvertiser(c.local, serviceType, info.Clone())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAdvertiseFailed, err)
	}
	adv.SetObserver(&advertiserObserver{c: c, handle: adv})
	if err := adv.Start(); err != nil {
		adv.SetObserver(nil)
		return fmt.Errorf("%w: %v", ErrAdvertiseFailed, err)
	}

	c.advertiser = adv
	c.log.Debug("开始广播", "service", serviceType)
	return nil
}

// StopAdvertising 停止广播，未在广播时为空操作
func (c *Coordinator) StopAdvertising() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopAdvertisingLocked()
}

func (c *Coordinator) stopAdvertisingLocked() {
	if c.advertiser == nil {
		return
	}
	c.advertiser.SetObserver(nil)
	c.advertiser.Stop()
	c.advertiser = nil
	c.log.Debug("停止广播")
}

// StartBrowsing 启动浏览，已在浏览时为空操作
func (c *Coordinator) StartBrowsing(serviceType string) error {
	if serviceType == "" {
		return ErrEmptyServiceType
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.browser != nil {
		return nil
	}

	br, err := c.discovery.NewBrowser(c.local, serviceType)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBrowseFailed, err)
	}
	br.SetObserver(&browserObserver{c: c, handle: br})
	if err := br.Start(); err != nil {
		br.SetObserver(nil)
		return fmt.Errorf("%w: %v", ErrBrowseFailed, err)
	}

	c.browser = br
	c.log.Debug("开始浏览", "service", serviceType)
	return nil
}

// StopBrowsing 停止浏览，未在浏览时为空操作
func (c *Coordinator) StopBrowsing() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopBrowsingLocked()
}

func (c *Coordinator) stopBrowsingLocked() {
	if c.browser == nil {
		return
	}
	c.browser.SetObserver(nil)
	c.browser.Stop()
	c.browser = nil
	c.found.Purge()
	c.log.Debug("停止浏览")
}

// Reset 停止全部角色并清空发现缓存与已知节点
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopAdvertisingLocked()
	c.stopBrowsingLocked()
	c.found.Purge()
	c.known = nil
}

// Advertising 是否正在广播
func (c *Coordinator) Advertising() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.advertiser != nil
}

// Browsing 是否正在浏览
func (c *Coordinator) Browsing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.browser != nil
}

// ============================================================================
//                              发现事件
// ============================================================================

// OnPeerFound 浏览器发现节点，立即发出邀请
//
// 邀请失败不重试，结果由传输层以节点状态上报。
func (c *Coordinator) OnPeerFound(peer types.PeerID, info types.DiscoveryInfo) {
	if peer == c.local {
		return
	}

	c.mu.Lock()
	browser := c.browser
	if browser != nil {
		c.found.Add(peer, info.Clone())
	}
	c.mu.Unlock()

	if browser == nil {
		return
	}
	c.log.Debug("发现节点", "peer", peer.ShortString())
	c.invite(browser, peer)
}

// OnPeerLost 浏览器丢失节点
func (c *Coordinator) OnPeerLost(peer types.PeerID) {
	c.mu.Lock()
	c.found.Remove(peer)
	c.mu.Unlock()
	c.log.Debug("节点丢失", "peer", peer.ShortString())
}

// FoundPeers 返回发现缓存中的节点，最近发现的在后
func (c *Coordinator) FoundPeers() []types.PeerID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.found.Keys()
}

// PeerInfo 返回节点广播的发现信息
func (c *Coordinator) PeerInfo(peer types.PeerID) (types.DiscoveryInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	info, ok := c.found.Get(peer)
	return info.Clone(), ok
}

func (c *Coordinator) invite(browser pkgif.Browser, peer types.PeerID) {
	session, err := c.sessions.Session()
	if err != nil {
		c.log.Warn("获取会话失败，放弃邀请", "peer", peer.ShortString(), "err", err)
		return
	}
	if slices.Contains(session.ConnectedPeers(), peer) {
		return
	}

	browser.InvitePeer(peer, session, nil, c.config.InviteTimeout)
	c.metrics.Invitation(metrics.InvitationSent)
	c.log.Debug("已发出邀请", "peer", peer.ShortString(), "timeout", c.config.InviteTimeout)
}

// ============================================================================
//                              邀请决胜
// ============================================================================

// ShouldAccept 决胜规则：本地排序键严格大于邀请方时接受
func ShouldAccept(local, remote types.PeerID) bool {
	return local.Greater(remote)
}

// OnInvitation 广播器收到邀请，返回是否接受
//
// TieBreakWhileBrowsing 策略下，未浏览时跳过排序键比较。
// 接受时以当前会话应答并停止广播，然后通知状态机。
func (c *Coordinator) OnInvitation(peer types.PeerID, context []byte, respond pkgif.InvitationResponder) bool {
	c.mu.Lock()
	hooks := c.hooks
	browsing := c.browser != nil
	c.mu.Unlock()

	accept := hooks.CanAccept == nil || hooks.CanAccept()
	if accept && (browsing || c.config.TieBreak == types.TieBreakStrict) {
		accept = ShouldAccept(c.local, peer)
	}

	var session pkgif.Session
	if accept {
		s, err := c.sessions.Session()
		if err != nil {
			c.log.Warn("获取会话失败，拒绝邀请", "peer", peer.ShortString(), "err", err)
			accept = false
		} else {
			session = s
		}
	}

	respond(accept, session)

	if !accept {
		c.metrics.Invitation(metrics.InvitationRejected)
		c.log.Debug("拒绝邀请", "peer", peer.ShortString())
		return false
	}

	c.metrics.Invitation(metrics.InvitationAccepted)
	c.log.Info("接受邀请", "peer", peer.ShortString())
	c.StopAdvertising()
	if hooks.Accepted != nil {
		hooks.Accepted(peer)
	}
	return true
}

// ============================================================================
//                              重连
// ============================================================================

// Remember 记录连接过的节点，供断开后重连
func (c *Coordinator) Remember(peer types.PeerID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !slices.Contains(c.known, peer) {
		c.known = append(c.known, peer)
	}
}

// KnownPeers 返回已知节点
func (c *Coordinator) KnownPeers() []types.PeerID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.known)
}

// Reconnect 向仍在发现缓存中的已知节点重新发出邀请，返回邀请数
func (c *Coordinator) Reconnect() int {
	c.mu.Lock()
	browser := c.browser
	var targets []types.PeerID
	if browser != nil {
		for _, p := range c.known {
			if c.found.Contains(p) {
				targets = append(targets, p)
			}
		}
	}
	c.mu.Unlock()

	for _, p := range targets {
		c.invite(browser, p)
	}
	if len(targets) > 0 {
		c.log.Info("向已知节点重新发出邀请", "count", len(targets))
	}
	return len(targets)
}

// ============================================================================
//                              观察者绑定
// ============================================================================

// advertiserObserver 忽略已替换句柄上的迟到回调
type advertiserObserver struct {
	c      *Coordinator
	handle pkgif.Advertiser
}

func (o *advertiserObserver) OnInvitation(peer types.PeerID, context []byte, respond pkgif.InvitationResponder) {
	o.c.mu.Lock()
	current := o.c.advertiser == o.handle
	o.c.mu.Unlock()
	if !current {
		respond(false, nil)
		return
	}
	o.c.OnInvitation(peer, context, respond)
}

type browserObserver struct {
	c      *Coordinator
	handle pkgif.Browser
}

func (o *browserObserver) OnPeerFound(peer types.PeerID, info types.DiscoveryInfo) {
	if o.current() {
		o.c.OnPeerFound(peer, info)
	}
}

func (o *browserObserver) OnPeerLost(peer types.PeerID) {
	if o.current() {
		o.c.OnPeerLost(peer)
	}
}

func (o *browserObserver) current() bool {
	o.c.mu.Lock()
	defer o.c.mu.Unlock()
	return o.c.browser == o.handle
}
