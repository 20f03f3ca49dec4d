package tcp

import (
	"bufio"
	"errors"
	"io"
	"net"
	"sync"

	pkgif "github.com/dep2p/go-peerkit/pkg/interfaces"
	"github.com/dep2p/go-peerkit/pkg/types"
)

// ============================================================================
//                              peerConn 实现
// ============================================================================

// peerConn 会话内到单个节点的连接
type peerConn struct {
	s    *Session
	peer types.PeerID
	conn net.Conn
	r    *bufio.Reader

	writeMu sync.Mutex

	closeOnce sync.Once
	closeErr  error

	// incoming 只在 readLoop 中访问
	incoming map[string]*incomingResource
}

func newPeerConn(s *Session, peer types.PeerID, conn net.Conn, r *bufio.Reader) *peerConn {
	return &peerConn{
		s:        s,
		peer:     peer,
		conn:     conn,
		r:        r,
		incoming: make(map[string]*incomingResource),
	}
}

// write 写出一帧，同一连接上的帧不会交错
func (pc *peerConn) write(f *frame) error {
	pc.writeMu.Lock()
	defer pc.writeMu.Unlock()

	if err := writeFrame(pc.conn, f); err != nil {
		if errors.Is(err, net.ErrClosed) {
			return ErrConnectionClosed
		}
		return err
	}
	return nil
}

func (pc *peerConn) close() error {
	pc.closeOnce.Do(func() {
		pc.closeErr = pc.conn.Close()
		if errors.Is(pc.closeErr, net.ErrClosed) {
			pc.closeErr = nil
		}
	})
	return pc.closeErr
}

// readLoop 读取并分发入站帧，连接出错时退出并从会话移除
func (pc *peerConn) readLoop() {
	var cause error
	for {
		f, err := readFrame(pc.r)
		if err != nil {
			cause = err
			break
		}
		if err := pc.handle(f); err != nil {
			cause = err
			break
		}
	}

	if errors.Is(cause, io.EOF) || errors.Is(cause, net.ErrClosed) {
		cause = ErrConnectionClosed
	}
	pc.failIncoming(cause)
	_ = pc.close()
	pc.s.detach(pc, cause)
}

func (pc *peerConn) handle(f *frame) error {
	switch f.Type {
	case frameData:
		data := f.Body
		pc.s.emit(func(o pkgif.SessionObserver) { o.OnDataReceived(pc.peer, data) })
	case frameResourceBegin:
		pc.beginResource(f)
	case frameResourceChunk:
		pc.writeResource(f)
	case frameResourceEnd:
		pc.endResource(f)
	case frameResourceAbort:
		pc.abortResource(f)
	default:
		pc.s.log.Debug("忽略未知帧", "peer", pc.peer.ShortString(), "type", f.Type)
	}
	return nil
}
