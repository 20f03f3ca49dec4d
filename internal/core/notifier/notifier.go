// Package notifier 将传输事件与状态迁移分发给应用观察者
//
// Notifier 持有至多一个可替换的 Observer，以及按事件名注册的处理器。
// 回调在调用方（传输层回调）所在的 goroutine 上同步执行，
// 单个节点的通知顺序与传输层投递顺序一致。
//
// 入站数据先以原始字节通知（ReceivedData），解码成功后再以
// 结构化信封通知（ReceivedObject 及同名事件处理器）。解码失败只抑制后者。
//
// 资源接收失败不会触发 ReceivedResource，而是触发 ResourceFailed。
package notifier

import (
	"errors"
	"log/slog"
	"sync"

	"go.uber.org/fx"

	"github.com/dep2p/go-peerkit/internal/core/metrics"
	"github.com/dep2p/go-peerkit/internal/protocol/envelope"
	"github.com/dep2p/go-peerkit/internal/util/logger"
	pkgif "github.com/dep2p/go-peerkit/pkg/interfaces"
	"github.com/dep2p/go-peerkit/pkg/types"
)

// Module Notifier Fx 模块
var Module = fx.Module("notifier",
	fx.Provide(NewFromParams),
)

// Params Notifier 依赖参数
type Params struct {
	fx.In

	Codec   *envelope.Codec
	Metrics *metrics.Metrics `optional:"true"`
	Logger  *slog.Logger     `optional:"true"`
}

// NewFromParams 从 Fx 参数创建 Notifier
func NewFromParams(p Params) *Notifier {
	return New(p.Codec, p.Metrics, p.Logger)
}

// Notifier 观察者分发器
type Notifier struct {
	codec   *envelope.Codec
	metrics *metrics.Metrics
	log     *slog.Logger

	mu       sync.RWMutex
	observer *pkgif.Observer
	handlers map[string]pkgif.EventHandler
}

// New 创建 Notifier，metrics 与 log 可为 nil
func New(codec *envelope.Codec, m *metrics.Metrics, log *slog.Logger) *Notifier {
	if codec == nil {
		codec = envelope.NewCodec()
	}
	return &Notifier{
		codec:    codec,
		metrics:  m,
		log:      logger.OrDefault(log, "notifier"),
		handlers: make(map[string]pkgif.EventHandler),
	}
}

// SetObserver 替换观察者，传 nil 等同于 Clear
func (n *Notifier) SetObserver(o *pkgif.Observer) {
	var snapshot *pkgif.Observer
	if o != nil {
		cp := *o
		snapshot = &cp
	}

	n.mu.Lock()
	n.observer = snapshot
	n.mu.Unlock()
}

// Clear 解除观察者
func (n *Notifier) Clear() {
	n.SetObserver(nil)
}

// HasObserver 是否设置了观察者
func (n *Notifier) HasObserver() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.observer != nil
}

// On 为事件名注册处理器，handler 为 nil 时注销
func (n *Notifier) On(event string, handler pkgif.EventHandler) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if handler == nil {
		delete(n.handlers, event)
		return
	}
	n.handlers[event] = handler
}

func (n *Notifier) current() *pkgif.Observer {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.observer
}

// PeerStateChanged 分发节点连接状态
func (n *Notifier) PeerStateChanged(peer types.PeerID, state types.PeerState) {
	o := n.current()
	if o == nil {
		return
	}

	switch state {
	case types.PeerConnecting:
		if o.Connecting != nil {
			o.Connecting(peer)
		}
	case types.PeerConnected:
		if o.Connected != nil {
			o.Connected(peer)
		}
	case types.PeerNotConnected:
		if o.Disconnected != nil {
			o.Disconnected(peer)
		}
	}
}

// StateChanged 分发会话状态迁移
func (n *Notifier) StateChanged(from, to types.SessionState) {
	if o := n.current(); o != nil && o.StateChanged != nil {
		o.StateChanged(from, to)
	}
}

// DataReceived 分发入站数据
//
// 原始字节回调总是触发；仅当数据是合法信封时再触发结构化回调。
func (n *Notifier) DataReceived(peer types.PeerID, data []byte) {
	n.metrics.DataReceived(peer, len(data))

	o := n.current()
	if o != nil && o.ReceivedData != nil {
		o.ReceivedData(peer, data)
	}

	env, err := n.codec.Decode(data)
	if err != nil {
		n.metrics.Envelope(metrics.EnvelopeMalformed)
		n.log.Debug("丢弃无法解码的信封",
			"peer", peer.ShortString(),
			"size", len(data),
			"err", err)
		return
	}
	n.metrics.Envelope(metrics.EnvelopeReceived)

	if o != nil && o.ReceivedObject != nil {
		o.ReceivedObject(peer, env.Event, env.Object)
	}

	n.mu.RLock()
	handler := n.handlers[env.Event]
	n.mu.RUnlock()
	if handler != nil {
		handler(peer, env.Object)
	}
}

// ResourceFinished 分发资源接收结果
func (n *Notifier) ResourceFinished(peer types.PeerID, name, localPath string, err error) {
	o := n.current()

	if err != nil {
		n.metrics.Resource(metrics.ResourceFailed)
		n.log.Warn("资源接收失败",
			"peer", peer.ShortString(),
			"name", name,
			"err", err)
		if o != nil && o.ResourceFailed != nil {
			o.ResourceFailed(peer, name, errors.Join(ErrResourceTransfer, err))
		}
		return
	}

	n.metrics.Resource(metrics.ResourceReceived)
	if o != nil && o.ReceivedResource != nil {
		o.ReceivedResource(peer, name, localPath)
	}
}
