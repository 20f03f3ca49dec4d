package tcp

import (
	"bufio"
	"errors"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-peerkit/internal/util/logger"
	pkgif "github.com/dep2p/go-peerkit/pkg/interfaces"
	"github.com/dep2p/go-peerkit/pkg/types"
)

// InvitationHandler 处理某个服务类型的入站邀请，必须调用 respond 作答
type InvitationHandler func(peer types.PeerID, context []byte, respond pkgif.InvitationResponder)

// ============================================================================
//                              Transport 实现
// ============================================================================

// Transport TCP 会话传输
type Transport struct {
	config   *Config
	log      *slog.Logger
	listener *net.TCPListener
	group    errgroup.Group
	closing  chan struct{}
	closed   atomic.Bool

	mu       sync.RWMutex
	handlers map[string]InvitationHandler
	sessions map[*Session]struct{}
	inflight map[net.Conn]struct{}
}

// 确保实现接口
var _ pkgif.Transport = (*Transport)(nil)

// New 创建传输并开始监听
func New(config *Config) (*Transport, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	l, err := listen(config.ListenAddr)
	if err != nil {
		return nil, err
	}

	t := &Transport{
		config:   config,
		log:      logger.OrDefault(config.Logger, "transport/tcp"),
		listener: l,
		closing:  make(chan struct{}),
		handlers: make(map[string]InvitationHandler),
		sessions: make(map[*Session]struct{}),
		inflight: make(map[net.Conn]struct{}),
	}
	t.group.Go(t.acceptLoop)

	t.log.Info("TCP 传输已启动", "addr", l.Addr().String())
	return t, nil
}

// Addr 返回实际监听地址
func (t *Transport) Addr() net.Addr {
	return t.listener.Addr()
}

// Port 返回实际监听端口
func (t *Transport) Port() int {
	if addr, ok := t.listener.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}

// CreateSession 为本地身份创建会话
func (t *Transport) CreateSession(local types.PeerID) (pkgif.Session, error) {
	if t.closed.Load() {
		return nil, ErrTransportClosed
	}

	s := newSession(t, local)

	t.mu.Lock()
	t.sessions[s] = struct{}{}
	t.mu.Unlock()
	return s, nil
}

// SetInvitationHandler 注册服务类型的邀请处理器，h 为 nil 时注销
func (t *Transport) SetInvitationHandler(serviceType string, h InvitationHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if h == nil {
		delete(t.handlers, serviceType)
		return
	}
	t.handlers[serviceType] = h
}

func (t *Transport) handler(serviceType string) InvitationHandler {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.handlers[serviceType]
}

func (t *Transport) removeSession(s *Session) {
	t.mu.Lock()
	delete(t.sessions, s)
	t.mu.Unlock()
}

// Close 关闭监听器与全部会话，等待后台 goroutine 退出
func (t *Transport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(t.closing)

	err := t.listener.Close()

	t.mu.Lock()
	sessions := make([]*Session, 0, len(t.sessions))
	for s := range t.sessions {
		sessions = append(sessions, s)
	}
	for c := range t.inflight {
		err = multierr.Append(err, c.Close())
	}
	t.inflight = make(map[net.Conn]struct{})
	t.mu.Unlock()

	for _, s := range sessions {
		err = multierr.Append(err, s.close())
	}

	err = multierr.Append(err, t.group.Wait())
	t.log.Info("TCP 传输已关闭")
	return err
}

// ============================================================================
//                              入站握手
// ============================================================================

func (t *Transport) acceptLoop() error {
	for {
		conn, err := t.listener.Accept()
		if err != nil {
			if t.closed.Load() {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return err
		}

		t.mu.Lock()
		t.inflight[conn] = struct{}{}
		t.mu.Unlock()

		t.group.Go(func() error {
			t.handshake(conn)
			return nil
		})
	}
}

type answer struct {
	accept  bool
	session pkgif.Session
}

// handshake 完成加密握手后读取 invite 帧，交给处理器并等待应答
func (t *Transport) handshake(raw net.Conn) {
	attached := false
	defer func() {
		t.mu.Lock()
		delete(t.inflight, raw)
		t.mu.Unlock()
		if !attached {
			_ = raw.Close()
		}
	}()

	_ = raw.SetDeadline(time.Now().Add(t.config.HandshakeTimeout))
	conn, err := secure(raw, false)
	if err != nil {
		t.log.Debug("加密握手失败", "remote", raw.RemoteAddr().String(), "err", err)
		return
	}
	r := bufio.NewReader(conn)

	f, err := readFrame(r)
	if err != nil || f.Type != frameInvite {
		t.log.Debug("丢弃无效的入站连接", "remote", conn.RemoteAddr().String(), "err", err)
		return
	}
	peer, err := types.ParsePeerID(f.Name, f.Key)
	if err != nil {
		t.log.Debug("邀请方身份无效", "remote", conn.RemoteAddr().String(), "err", err)
		return
	}

	h := t.handler(f.Service)
	if h == nil {
		t.log.Debug("没有匹配的邀请处理器", "service", f.Service, "peer", peer.ShortString())
		_ = writeFrame(conn, &frame{Type: frameReject, Reason: "no handler"})
		return
	}

	answers := make(chan answer, 1)
	var once sync.Once
	h(peer, f.Body, func(accept bool, session pkgif.Session) {
		once.Do(func() { answers <- answer{accept: accept, session: session} })
	})

	var a answer
	select {
	case a = <-answers:
	case <-time.After(t.config.HandshakeTimeout):
		t.log.Debug("邀请应答超时", "peer", peer.ShortString())
	case <-t.closing:
		return
	}

	s, ok := a.session.(*Session)
	if !a.accept || !ok || s.t != t {
		_ = writeFrame(conn, &frame{Type: frameReject})
		return
	}

	if err := writeFrame(conn, &frame{Type: frameAccept, Name: s.local.Name, Key: s.local.String()}); err != nil {
		t.log.Debug("发送接受应答失败", "peer", peer.ShortString(), "err", err)
		return
	}
	_ = conn.SetDeadline(time.Time{})

	attached = s.attach(peer, conn, r) == nil
}
