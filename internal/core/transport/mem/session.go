package mem

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"go.uber.org/multierr"

	"github.com/dep2p/go-peerkit/internal/util/dispatch"
	pkgif "github.com/dep2p/go-peerkit/pkg/interfaces"
	"github.com/dep2p/go-peerkit/pkg/types"
)

// ============================================================================
//                              Session 实现
// ============================================================================

// Session 进程内会话
type Session struct {
	n     *Network
	local types.PeerID
	log   *slog.Logger
	queue *dispatch.Queue

	mu       sync.Mutex
	observer pkgif.SessionObserver
	peers    map[types.PeerID]*Session
	closed   bool
}

// 确保实现接口
var _ pkgif.Session = (*Session)(nil)

func newSession(n *Network, local types.PeerID) *Session {
	return &Session{
		n:     n,
		local: local,
		log:   n.log.With("local", local.ShortString()),
		queue: dispatch.New(),
		peers: make(map[types.PeerID]*Session),
	}
}

// LocalPeer 返回本地身份
func (s *Session) LocalPeer() types.PeerID {
	return s.local
}

// ConnectedPeers 返回已连接节点，按排序键升序
func (s *Session) ConnectedPeers() []types.PeerID {
	s.mu.Lock()
	defer s.mu.Unlock()

	peers := make([]types.PeerID, 0, len(s.peers))
	for p := range s.peers {
		peers = append(peers, p)
	}
	slices.SortFunc(peers, func(a, b types.PeerID) int { return a.Compare(b) })
	return peers
}

// SetObserver 设置观察者
func (s *Session) SetObserver(o pkgif.SessionObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observer = o
}

// Send 投递数据到指定节点
//
// 进程内投递总是可靠的，mode 只影响日志。
func (s *Session) Send(data []byte, peers []types.PeerID, mode types.Reliability) error {
	if s.isClosed() {
		return ErrSessionClosed
	}

	var err error
	for _, p := range peers {
		remote := s.remote(p)
		if remote == nil {
			err = multierr.Append(err, fmt.Errorf("%w: %s", ErrPeerNotConnected, p.ShortString()))
			continue
		}
		payload := slices.Clone(data)
		from := s.local
		remote.emit(func(o pkgif.SessionObserver) { o.OnDataReceived(from, payload) })
	}
	s.log.Debug("已投递数据", "peers", len(peers), "bytes", len(data), "mode", mode.String())
	return err
}

// Disconnect 断开全部节点并释放会话
func (s *Session) Disconnect() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.n.unlink(s)
	s.queue.Close()
	s.n.removeSession(s)
}

// ============================================================================
//                              节点表
// ============================================================================

func (s *Session) remote(p types.PeerID) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peers[p]
}

func (s *Session) addPeer(remote *Session) {
	s.mu.Lock()
	s.peers[remote.local] = remote
	s.mu.Unlock()
}

func (s *Session) removePeer(p types.PeerID, remote *Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.peers[p] != remote {
		return false
	}
	delete(s.peers, p)
	return true
}

func (s *Session) takePeers() []*Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	peers := make([]*Session, 0, len(s.peers))
	for _, r := range s.peers {
		peers = append(peers, r)
	}
	s.peers = make(map[types.PeerID]*Session)
	return peers
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// ============================================================================
//                              回调分发
// ============================================================================

// post 在会话队列上执行 fn，会话关闭后直接在调用方执行
func (s *Session) post(fn func()) {
	if !s.queue.Post(fn) {
		fn()
	}
}

// emit 在会话队列上通知观察者，会话关闭后丢弃
func (s *Session) emit(fn func(o pkgif.SessionObserver)) {
	s.queue.Post(func() {
		s.mu.Lock()
		o := s.observer
		s.mu.Unlock()
		if o != nil {
			fn(o)
		}
	})
}

func (s *Session) emitPeerState(peer types.PeerID, state types.PeerState) {
	s.emit(func(o pkgif.SessionObserver) { o.OnPeerStateChanged(peer, state) })
}
