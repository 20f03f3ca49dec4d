package mdns

import (
	"context"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/mdns"

	"github.com/dep2p/go-peerkit/internal/core/transport/tcp"
	"github.com/dep2p/go-peerkit/internal/util/dispatch"
	pkgif "github.com/dep2p/go-peerkit/pkg/interfaces"
	"github.com/dep2p/go-peerkit/pkg/types"
)

// peerEntry 已发现的节点
type peerEntry struct {
	addr     string
	info     types.DiscoveryInfo
	lastSeen time.Time
}

// ============================================================================
//                              Browser 实现
// ============================================================================

// Browser mDNS 浏览器
type Browser struct {
	d           *Discovery
	local       types.PeerID
	serviceType string

	mu       sync.Mutex
	observer pkgif.BrowserObserver
	peers    map[types.PeerID]*peerEntry
	events   *dispatch.Queue
	cancel   context.CancelFunc
}

// 确保实现接口
var _ pkgif.Browser = (*Browser)(nil)

func newBrowser(d *Discovery, local types.PeerID, serviceType string) *Browser {
	return &Browser{
		d:           d,
		local:       local,
		serviceType: serviceType,
		peers:       make(map[types.PeerID]*peerEntry),
	}
}

// SetObserver 设置观察者
func (b *Browser) SetObserver(o pkgif.BrowserObserver) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observer = o
}

// Start 启动查询循环，已启动时为空操作
func (b *Browser) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cancel != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	events := dispatch.New()
	b.cancel = cancel
	b.events = events
	b.peers = make(map[types.PeerID]*peerEntry)

	ticker := b.d.config.Clock.Ticker(b.d.config.QueryInterval)
	b.d.track(b)
	go func() {
		defer b.d.loops.Done()
		b.loop(ctx, ticker.C, ticker.Stop, events)
	}()

	b.d.log.Info("mDNS 浏览已启动", "service", serviceName(b.serviceType))
	return nil
}

// Stop 停止查询循环，不等待进行中的查询
//
// 调用方可能持有上层锁，而一次查询最长持续 QueryTimeout。
// 进行中查询的结果在 Stop 之后被丢弃，Discovery.Close 等待循环退出。
func (b *Browser) Stop() {
	b.mu.Lock()
	cancel, events := b.cancel, b.events
	b.cancel, b.events = nil, nil
	b.peers = make(map[types.PeerID]*peerEntry)
	b.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	events.Close()
	b.d.untrack(b)
	b.d.log.Info("mDNS 浏览已停止", "service", serviceName(b.serviceType))
}

// InvitePeer 通过 TCP 传输邀请 peer
//
// session 必须是 TCP 会话。地址未知时拨号失败，结果仍以 PeerNotConnected 上报。
func (b *Browser) InvitePeer(peer types.PeerID, session pkgif.Session, context []byte, timeout time.Duration) {
	s, ok := session.(*tcp.Session)
	if !ok {
		b.d.log.Warn("会话不是 TCP 会话，忽略邀请", "peer", peer.ShortString())
		return
	}

	b.mu.Lock()
	var addr string
	if e := b.peers[peer]; e != nil {
		addr = e.addr
	}
	b.mu.Unlock()

	s.Invite(peer, addr, b.serviceType, context, timeout)
}

// ============================================================================
//                              查询循环
// ============================================================================

// loop 查询循环，events 是本轮 Start 的分发队列，用于识别 Stop 之后的迟到结果
func (b *Browser) loop(ctx context.Context, tick <-chan time.Time, stop func(), events *dispatch.Queue) {
	defer stop()

	b.query(ctx, events)
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-tick:
			b.expire(now, events)
			b.query(ctx, events)
		}
	}
}

// query 执行一次 mDNS 查询
func (b *Browser) query(ctx context.Context, events *dispatch.Queue) {
	if ctx.Err() != nil {
		return
	}

	entries := make(chan *mdns.ServiceEntry, 16)
	handled := make(chan struct{})
	go func() {
		defer close(handled)
		for e := range entries {
			b.handleEntry(e, events)
		}
	}()

	params := &mdns.QueryParam{
		Service:             serviceName(b.serviceType),
		Domain:              b.d.config.Domain,
		Timeout:             b.d.config.QueryTimeout,
		Interface:           b.d.iface(),
		Entries:             entries,
		WantUnicastResponse: true,
		DisableIPv6:         b.d.config.DisableIPv6,
	}
	if err := b.d.lookup(params); err != nil {
		b.d.log.Debug("mDNS 查询失败", "err", err)
	}
	close(entries)
	<-handled
}

// handleEntry 处理一条查询结果，events 已不是当前队列时丢弃
func (b *Browser) handleEntry(entry *mdns.ServiceEntry, events *dispatch.Queue) {
	if entry == nil || !strings.Contains(entry.Name, serviceName(b.serviceType)) {
		return
	}

	peer, info, err := parseTXTRecords(entry.InfoFields)
	if err != nil {
		b.d.log.Debug("忽略无效的 mDNS 记录", "name", entry.Name, "err", err)
		return
	}
	if peer == b.local {
		return
	}
	addr := entryAddr(entry)
	if addr == "" {
		return
	}

	now := b.d.config.Clock.Now()

	b.mu.Lock()
	if events == nil || b.events != events {
		b.mu.Unlock()
		return
	}
	e, exists := b.peers[peer]
	if !exists {
		e = &peerEntry{}
		b.peers[peer] = e
	}
	e.addr, e.info, e.lastSeen = addr, info, now
	b.mu.Unlock()

	if exists {
		return
	}
	b.d.log.Debug("mDNS 发现节点", "peer", peer.ShortString(), "addr", addr)
	info = info.Clone()
	events.Post(func() {
		if o := b.currentObserver(); o != nil {
			o.OnPeerFound(peer, info)
		}
	})
}

// expire 移除超过 PeerTTL 未出现的节点
func (b *Browser) expire(now time.Time, events *dispatch.Queue) {
	cutoff := now.Add(-b.d.config.PeerTTL)

	b.mu.Lock()
	if b.events != events {
		b.mu.Unlock()
		return
	}
	var lost []types.PeerID
	for p, e := range b.peers {
		if e.lastSeen.Before(cutoff) {
			delete(b.peers, p)
			lost = append(lost, p)
		}
	}
	b.mu.Unlock()

	for _, p := range lost {
		b.d.log.Debug("mDNS 节点过期", "peer", p.ShortString())
		events.Post(func() {
			if o := b.currentObserver(); o != nil {
				o.OnPeerLost(p)
			}
		})
	}
}

func (b *Browser) currentObserver() pkgif.BrowserObserver {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.observer
}

// entryAddr 返回条目的可拨号地址，优先 IPv4
func entryAddr(entry *mdns.ServiceEntry) string {
	if entry.Port <= 0 {
		return ""
	}
	port := strconv.Itoa(entry.Port)
	if ip := entry.AddrV4; ip != nil && !ip.IsUnspecified() {
		return net.JoinHostPort(ip.String(), port)
	}
	if ip := entry.AddrV6; ip != nil && !ip.IsUnspecified() {
		return net.JoinHostPort(ip.String(), port)
	}
	return ""
}
