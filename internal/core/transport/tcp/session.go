package tcp

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"slices"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/dep2p/go-peerkit/internal/util/dispatch"
	pkgif "github.com/dep2p/go-peerkit/pkg/interfaces"
	"github.com/dep2p/go-peerkit/pkg/types"
)

// errDuplicate 到该节点的连接已存在
var errDuplicate = errors.New("tcp: duplicate connection")

// ============================================================================
//                              Session 实现
// ============================================================================

// Session TCP 会话
type Session struct {
	t     *Transport
	local types.PeerID
	log   *slog.Logger

	queue *dispatch.Queue

	mu       sync.Mutex
	observer pkgif.SessionObserver
	peers    map[types.PeerID]*peerConn
	closed   bool
}

// 确保实现接口
var _ pkgif.Session = (*Session)(nil)

func newSession(t *Transport, local types.PeerID) *Session {
	return &Session{
		t:     t,
		local: local,
		log:   t.log.With("local", local.ShortString()),
		queue: dispatch.New(),
		peers: make(map[types.PeerID]*peerConn),
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

// Send 向指定节点发送数据帧
func (s *Session) Send(data []byte, peers []types.PeerID, _ types.Reliability) error {
	if s.isClosed() {
		return ErrSessionClosed
	}

	var err error
	for _, p := range peers {
		pc := s.peer(p)
		if pc == nil {
			err = multierr.Append(err, fmt.Errorf("%w: %s", ErrPeerNotConnected, p.ShortString()))
			continue
		}
		if werr := pc.write(&frame{Type: frameData, Body: data}); werr != nil {
			err = multierr.Append(err, fmt.Errorf("%s: %w", p.ShortString(), werr))
		}
	}
	return err
}

// Disconnect 断开全部节点并释放会话
func (s *Session) Disconnect() {
	if err := s.close(); err != nil {
		s.log.Debug("断开会话时出错", "err", err)
	}
}

// Invite 拨号 addr 并邀请 peer 加入本会话
//
// 立即返回。握手结果以节点状态回调上报：
// 成功为 PeerConnected，拒绝、超时或网络错误为 PeerNotConnected。
// 已连接的节点直接忽略。
func (s *Session) Invite(peer types.PeerID, addr, serviceType string, context []byte, timeout time.Duration) {
	if s.isClosed() || s.peer(peer) != nil {
		return
	}
	s.emitPeerState(peer, types.PeerConnecting)
	go func() {
		if err := s.invite(peer, addr, serviceType, context, timeout); err != nil {
			s.log.Debug("邀请失败", "peer", peer.ShortString(), "addr", addr, "err", err)
			s.inviteFailed(peer)
		}
	}()
}

// inviteFailed 上报邀请失败，对端的反向邀请已建立连接时不上报
func (s *Session) inviteFailed(peer types.PeerID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.peers[peer] != nil {
		return
	}
	s.emitPeerState(peer, types.PeerNotConnected)
}

func (s *Session) invite(peer types.PeerID, addr, serviceType string, context []byte, timeout time.Duration) error {
	conn, err := dial(addr, timeout)
	if err != nil {
		return err
	}

	ok := false
	defer func() {
		if !ok {
			_ = conn.Close()
		}
	}()

	_ = conn.SetDeadline(time.Now().Add(timeout))
	sc, err := secure(conn, true)
	if err != nil {
		return err
	}
	conn = sc

	err = writeFrame(conn, &frame{
		Type:    frameInvite,
		Name:    s.local.Name,
		Key:     s.local.String(),
		Service: serviceType,
		Body:    context,
	})
	if err != nil {
		return err
	}

	r := bufio.NewReader(conn)
	reply, err := readFrame(r)
	if err != nil {
		return err
	}
	if reply.Type != frameAccept {
		return ErrInvitationRejected
	}
	remote, err := types.ParsePeerID(reply.Name, reply.Key)
	if err != nil {
		return err
	}
	if remote != peer {
		return fmt.Errorf("%w: unexpected peer %s", ErrInvitationRejected, remote.ShortString())
	}
	_ = conn.SetDeadline(time.Time{})

	switch err := s.attach(peer, conn, r); {
	case err == nil:
		ok = true
		return nil
	case errors.Is(err, errDuplicate):
		return nil
	default:
		return err
	}
}

// ============================================================================
//                              连接管理
// ============================================================================

// attach 把握手完成的连接加入会话
//
// 会话已关闭时返回 ErrSessionClosed；已存在到该节点的连接时保留旧连接，返回 errDuplicate。
func (s *Session) attach(peer types.PeerID, conn net.Conn, r *bufio.Reader) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.peers[peer] != nil {
		s.mu.Unlock()
		s.log.Debug("重复连接，关闭新连接", "peer", peer.ShortString())
		return errDuplicate
	}
	pc := newPeerConn(s, peer, conn, r)
	s.peers[peer] = pc
	// 持锁投递，与 inviteFailed 保持先后
	s.emitPeerState(peer, types.PeerConnected)
	s.mu.Unlock()

	s.log.Info("节点已连接", "peer", peer.ShortString(), "remote", conn.RemoteAddr().String())
	go pc.readLoop()
	return nil
}

// detach 连接断开后移除节点
func (s *Session) detach(pc *peerConn, cause error) {
	s.mu.Lock()
	current := s.peers[pc.peer] == pc
	if current {
		delete(s.peers, pc.peer)
	}
	closed := s.closed
	s.mu.Unlock()

	if !current || closed {
		return
	}
	s.log.Info("节点已断开", "peer", pc.peer.ShortString(), "cause", cause)
	s.emitPeerState(pc.peer, types.PeerNotConnected)
}

func (s *Session) peer(p types.PeerID) *peerConn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peers[p]
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conns := s.peers
	s.peers = make(map[types.PeerID]*peerConn)
	s.queue.Close()
	s.mu.Unlock()

	var err error
	for _, pc := range conns {
		err = multierr.Append(err, pc.close())
	}
	s.t.removeSession(s)
	return err
}

// ============================================================================
//                              回调分发
// ============================================================================

// post 在分发 goroutine 上执行 fn，会话关闭后直接在调用方执行
func (s *Session) post(fn func()) {
	if !s.queue.Post(fn) {
		fn()
	}
}

// emit 在分发 goroutine 上通知观察者，会话关闭后丢弃
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
