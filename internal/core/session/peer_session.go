package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dep2p/go-peerkit/internal/core/metrics"
	"github.com/dep2p/go-peerkit/internal/protocol/envelope"
	"github.com/dep2p/go-peerkit/internal/util/logger"
	pkgif "github.com/dep2p/go-peerkit/pkg/interfaces"
	"github.com/dep2p/go-peerkit/pkg/types"
)

// ============================================================================
//                              PeerSession 结构体
// ============================================================================

// PeerSession 传输会话句柄的唯一持有者
type PeerSession struct {
	transport pkgif.Transport
	local     types.PeerID
	codec     *envelope.Codec
	metrics   *metrics.Metrics
	log       *slog.Logger

	mu       sync.Mutex
	handle   pkgif.Session
	observer pkgif.SessionObserver
}

// NewPeerSession 创建 PeerSession，此时不创建传输会话
func NewPeerSession(transport pkgif.Transport, local types.PeerID, codec *envelope.Codec, m *metrics.Metrics, log *slog.Logger) (*PeerSession, error) {
	if transport == nil {
		return nil, ErrNoTransport
	}
	if local.IsEmpty() {
		return nil, types.ErrEmptyPeerID
	}
	if codec == nil {
		codec = envelope.NewCodec()
	}
	return &PeerSession{
		transport: transport,
		local:     local,
		codec:     codec,
		metrics:   m,
		log:       logger.OrDefault(log, "core/session"),
	}, nil
}

// LocalPeer 本地身份
func (s *PeerSession) LocalPeer() types.PeerID {
	return s.local
}

// SetObserver 设置会话观察者，同时绑定到当前句柄
func (s *PeerSession) SetObserver(o pkgif.SessionObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.observer = o
	if s.handle != nil {
		s.bindLocked(s.handle)
	}
}

// Session 返回当前传输会话，不存在时创建
func (s *PeerSession) Session() (pkgif.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle != nil {
		return s.handle, nil
	}

	h, err := s.transport.CreateSession(s.local)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
	}
	s.handle = h
	s.bindLocked(h)
	s.log.Debug("创建传输会话", "local", s.local.ShortString())
	return h, nil
}

// Current 返回当前句柄，不创建
func (s *PeerSession) Current() pkgif.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

// Teardown 解除观察者、断开并清空句柄，没有句柄时为空操作
func (s *PeerSession) Teardown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle == nil {
		return
	}
	s.handle.SetObserver(nil)
	s.handle.Disconnect()
	s.handle = nil
	s.log.Debug("拆除传输会话", "local", s.local.ShortString())
}

// ConnectedPeers 当前会话的已连接节点，没有会话时为空
func (s *PeerSession) ConnectedPeers() []types.PeerID {
	h := s.Current()
	if h == nil {
		return nil
	}
	return h.ConnectedPeers()
}

func (s *PeerSession) bindLocked(h pkgif.Session) {
	if s.observer == nil {
		h.SetObserver(nil)
		return
	}
	h.SetObserver(&boundObserver{s: s, handle: h, inner: s.observer})
}

// ============================================================================
//                              发送
// ============================================================================

// SendEvent 编码信封并发送
//
// peers 为空时发往全部已连接节点。没有目标节点时不调用传输层。
// 传输层错误以 ErrSendFailed 包装返回。
func (s *PeerSession) SendEvent(event string, object any, peers []types.PeerID, mode types.Reliability) error {
	data, err := s.codec.Encode(event, object)
	if err != nil {
		return err
	}

	h := s.Current()
	if h == nil {
		return nil
	}
	if len(peers) == 0 {
		peers = h.ConnectedPeers()
	}
	if len(peers) == 0 {
		s.log.Debug("没有已连接节点，跳过发送", "event", event)
		return nil
	}

	if err := h.Send(data, peers, mode); err != nil {
		s.metrics.SendFailure()
		s.log.Warn("发送失败", "event", event, "peers", len(peers), "err", err)
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	s.metrics.Envelope(metrics.EnvelopeSent)
	for _, peer := range peers {
		s.metrics.DataSent(peer, len(data))
	}
	return nil
}

// SendResource 向每个目标节点发送文件资源
//
// 返回与 peers 等长的进度切片，启动失败的节点对应 nil，
// 其错误同时汇总在返回的 error 中。onComplete 每个节点最多调用一次。
func (s *PeerSession) SendResource(path, name string, peers []types.PeerID, onComplete func(peer types.PeerID, err error)) ([]pkgif.Progress, error) {
	h := s.Current()
	if h == nil {
		return nil, nil
	}
	if len(peers) == 0 {
		peers = h.ConnectedPeers()
	}
	if len(peers) == 0 {
		return nil, nil
	}

	progress := make([]pkgif.Progress, len(peers))
	var errs []error
	for i, peer := range peers {
		p, err := h.SendResource(path, name, peer, func(err error) {
			if err != nil {
				s.metrics.Resource(metrics.ResourceFailed)
			}
			if onComplete != nil {
				onComplete(peer, err)
			}
		})
		if err != nil {
			s.metrics.SendFailure()
			errs = append(errs, fmt.Errorf("%s: %w", peer.ShortString(), err))
			continue
		}
		progress[i] = p
	}

	if len(errs) > 0 {
		return progress, fmt.Errorf("%w: %w", ErrSendFailed, errors.Join(errs...))
	}
	return progress, nil
}

// ============================================================================
//                              观察者绑定
// ============================================================================

// boundObserver 丢弃已替换句柄上的迟到回调
type boundObserver struct {
	s      *PeerSession
	handle pkgif.Session
	inner  pkgif.SessionObserver
}

func (b *boundObserver) live() bool {
	return b.s.Current() == b.handle
}

func (b *boundObserver) OnPeerStateChanged(peer types.PeerID, state types.PeerState) {
	if b.live() {
		b.inner.OnPeerStateChanged(peer, state)
	}
}

func (b *boundObserver) OnDataReceived(peer types.PeerID, data []byte) {
	if b.live() {
		b.inner.OnDataReceived(peer, data)
	}
}

func (b *boundObserver) OnResourceFinished(peer types.PeerID, name, localPath string, err error) {
	if b.live() {
		b.inner.OnResourceFinished(peer, name, localPath, err)
	}
}
