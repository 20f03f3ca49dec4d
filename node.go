package peerkit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.uber.org/fx"

	"github.com/dep2p/go-peerkit/config"
	"github.com/dep2p/go-peerkit/internal/core/metrics"
	"github.com/dep2p/go-peerkit/internal/core/session"
	"github.com/dep2p/go-peerkit/internal/discovery/coordinator"
	"github.com/dep2p/go-peerkit/internal/util/logger"
	"github.com/dep2p/go-peerkit/pkg/types"
)

// 生命周期超时
const (
	// startTimeout Fx 应用启动超时
	startTimeout = 30 * time.Second

	// stopTimeout Fx 应用停止超时
	stopTimeout = 10 * time.Second
)

// ════════════════════════════════════════════════════════════════════════════
//                              Node 结构体
// ════════════════════════════════════════════════════════════════════════════

// Node PeerKit 节点
//
// New 完成配置与组件组装，此时节点处于 inactive。Activate 开始广播和/或浏览。
// 所有方法都可以并发调用。
type Node struct {
	app     *fx.App
	machine *session.Machine
	coord   *coordinator.Coordinator
	metrics *metrics.Metrics
	local   types.PeerID

	reliability Reliability
	log         *slog.Logger

	mu       sync.Mutex
	observer *Observer
	closed   bool
}

// New 创建节点
//
// 展示名与服务类型必须通过选项或配置给出。
func New(opts ...Option) (*Node, error) {
	o := newOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}
	if o.transport != nil {
		// 自定义传输不使用内置传输配置
		o.config.Transport.Kind = config.TransportMem
	}
	if err := o.config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	o.config.Log.Apply()

	local, err := types.NewPeerID(o.config.Identity.DisplayName)
	if err != nil {
		return nil, err
	}

	n := &Node{
		local:       local,
		reliability: o.config.Session.Reliability,
		log:         logger.OrDefault(o.logger, "peerkit"),
		observer:    o.observer,
	}

	n.app = buildFxApp(o, local, n)
	if err := n.app.Err(); err != nil {
		return nil, fmt.Errorf("build node: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), startTimeout)
	defer cancel()
	if err := n.app.Start(ctx); err != nil {
		return nil, fmt.Errorf("start node: %w", err)
	}

	if n.observer != nil {
		n.machine.Notifier().SetObserver(n.observer)
	}

	n.log.Info("节点已创建",
		"peer", local.ShortString(),
		"service", o.config.Discovery.ServiceType,
		"mode", o.config.Discovery.Mode)
	return n, nil
}

// ════════════════════════════════════════════════════════════════════════════
//                              生命周期
// ════════════════════════════════════════════════════════════════════════════

// Activate 从 inactive 进入 searching，已激活时为空操作
//
// Deactivate 会清除观察者，Activate 重新挂上最近一次设置的观察者。
func (n *Node) Activate() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return ErrNodeClosed
	}
	obs := n.observer
	n.mu.Unlock()

	if n.machine.State() == types.StateInactive && obs != nil {
		n.machine.Notifier().SetObserver(obs)
	}
	return n.machine.Activate()
}

// Deactivate 停止全部角色并拆除会话，任何状态下都可调用
func (n *Node) Deactivate() {
	n.machine.Deactivate()
}

// Close 停用并释放全部资源，可重复调用
func (n *Node) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	n.mu.Unlock()

	n.machine.Deactivate()

	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := n.app.Stop(ctx); err != nil {
		return fmt.Errorf("stop node: %w", err)
	}
	n.log.Info("节点已关闭", "peer", n.local.ShortString())
	return nil
}

func (n *Node) isClosed() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.closed
}

// ════════════════════════════════════════════════════════════════════════════
//                              观察者
// ════════════════════════════════════════════════════════════════════════════

// SetObserver 替换观察者
func (n *Node) SetObserver(obs Observer) {
	n.mu.Lock()
	n.observer = &obs
	n.mu.Unlock()

	n.machine.Notifier().SetObserver(&obs)
}

// On 为事件名注册处理器，handler 为 nil 时注销
//
// 处理器在 ReceivedObject 之后调用，Deactivate 不会清除它。
func (n *Node) On(event string, handler EventHandler) {
	n.machine.Notifier().On(event, handler)
}

// ════════════════════════════════════════════════════════════════════════════
//                              查询
// ════════════════════════════════════════════════════════════════════════════

// LocalPeer 本地身份
func (n *Node) LocalPeer() PeerID {
	return n.local
}

// State 当前会话状态
func (n *Node) State() SessionState {
	return n.machine.State()
}

// Mode 当前角色
func (n *Node) Mode() Mode {
	return n.machine.Mode()
}

// SetMode 设置角色，searching 状态下立即生效
func (n *Node) SetMode(mode Mode) error {
	if n.isClosed() {
		return ErrNodeClosed
	}
	return n.machine.SetMode(mode)
}

// ConnectedPeers 当前已连接的节点
func (n *Node) ConnectedPeers() []PeerID {
	return n.machine.Sessions().ConnectedPeers()
}

// FoundPeers 浏览期间发现且尚未消失的节点
func (n *Node) FoundPeers() []PeerID {
	return n.coord.FoundPeers()
}

// PeerInfo 返回已发现节点广播的键值信息
func (n *Node) PeerInfo(peer PeerID) (DiscoveryInfo, bool) {
	return n.coord.PeerInfo(peer)
}

// Traffic 经过会话的数据字节统计，不含资源传输
func (n *Node) Traffic() TrafficStats {
	return n.metrics.Traffic().Totals()
}

// PeerTraffic 与单个节点之间的数据字节统计
func (n *Node) PeerTraffic(peer PeerID) TrafficStats {
	return n.metrics.Traffic().ForPeer(peer)
}
