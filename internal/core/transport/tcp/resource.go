package tcp

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	pkgif "github.com/dep2p/go-peerkit/pkg/interfaces"
	"github.com/dep2p/go-peerkit/pkg/types"
)

// ============================================================================
//                              发送方
// ============================================================================

// transfer 出站资源传输进度
type transfer struct {
	id        string
	total     int64
	completed atomic.Int64
	cancel    chan struct{}
	once      sync.Once
}

// 确保实现接口
var _ pkgif.Progress = (*transfer)(nil)

func (tr *transfer) Completed() int64 { return tr.completed.Load() }

func (tr *transfer) Total() int64 { return tr.total }

func (tr *transfer) Fraction() float64 {
	if tr.total <= 0 {
		if tr.completed.Load() > 0 || tr.isCancelled() {
			return 1
		}
		return 0
	}
	return float64(tr.completed.Load()) / float64(tr.total)
}

func (tr *transfer) Cancel() {
	tr.once.Do(func() { close(tr.cancel) })
}

func (tr *transfer) isCancelled() bool {
	select {
	case <-tr.cancel:
		return true
	default:
		return false
	}
}

// SendResource 向单个节点发送文件
//
// 文件按块流式发送，onComplete 在分发 goroutine 上恰好调用一次。
func (s *Session) SendResource(path, name string, peer types.PeerID, onComplete func(error)) (pkgif.Progress, error) {
	if s.isClosed() {
		return nil, ErrSessionClosed
	}
	pc := s.peer(peer)
	if pc == nil {
		return nil, fmt.Errorf("%w: %s", ErrPeerNotConnected, peer.ShortString())
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, fmt.Errorf("tcp: %s is a directory", path)
	}

	tr := &transfer{
		id:     uuid.NewString(),
		total:  info.Size(),
		cancel: make(chan struct{}),
	}
	go func() {
		err := pc.sendResource(tr, f, name)
		_ = f.Close()
		if err != nil {
			s.log.Debug("资源发送失败", "peer", peer.ShortString(), "name", name, "err", err)
		}
		if onComplete != nil {
			s.post(func() { onComplete(err) })
		}
	}()
	return tr, nil
}

func (pc *peerConn) sendResource(tr *transfer, r io.Reader, name string) error {
	if err := pc.write(&frame{Type: frameResourceBegin, ID: tr.id, Name: name, Size: tr.total}); err != nil {
		return err
	}

	buf := make([]byte, resourceChunkSize)
	for {
		if tr.isCancelled() {
			_ = pc.write(&frame{Type: frameResourceAbort, ID: tr.id, Reason: "cancelled"})
			return ErrTransferCancelled
		}

		n, rerr := r.Read(buf)
		if n > 0 {
			if err := pc.write(&frame{Type: frameResourceChunk, ID: tr.id, Body: buf[:n]}); err != nil {
				return err
			}
			tr.completed.Add(int64(n))
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			_ = pc.write(&frame{Type: frameResourceAbort, ID: tr.id, Reason: rerr.Error()})
			return rerr
		}
	}

	return pc.write(&frame{Type: frameResourceEnd, ID: tr.id})
}

// ============================================================================
//                              接收方
// ============================================================================

// incomingResource 入站资源
type incomingResource struct {
	name     string
	file     *os.File
	size     int64
	received int64
}

func (pc *peerConn) beginResource(f *frame) {
	if _, ok := pc.incoming[f.ID]; ok || f.ID == "" {
		return
	}

	dir := pc.s.t.config.ResourceDir
	if dir == "" {
		dir = os.TempDir()
	}
	file, err := os.CreateTemp(dir, "peerkit-*-"+safeName(f.Name))
	if err != nil {
		pc.finishResource(f.Name, "", err)
		return
	}
	pc.incoming[f.ID] = &incomingResource{name: f.Name, file: file, size: f.Size}
}

func (pc *peerConn) writeResource(f *frame) {
	in, ok := pc.incoming[f.ID]
	if !ok {
		return
	}
	if _, err := in.file.Write(f.Body); err != nil {
		pc.dropResource(f.ID, in, err)
		return
	}
	in.received += int64(len(f.Body))
}

func (pc *peerConn) endResource(f *frame) {
	in, ok := pc.incoming[f.ID]
	if !ok {
		return
	}
	if in.received != in.size {
		pc.dropResource(f.ID, in, fmt.Errorf("%w: %d of %d bytes", ErrTransferIncomplete, in.received, in.size))
		return
	}

	delete(pc.incoming, f.ID)
	if err := in.file.Close(); err != nil {
		_ = os.Remove(in.file.Name())
		pc.finishResource(in.name, "", err)
		return
	}
	pc.finishResource(in.name, in.file.Name(), nil)
}

func (pc *peerConn) abortResource(f *frame) {
	in, ok := pc.incoming[f.ID]
	if !ok {
		return
	}
	err := ErrTransferAborted
	if f.Reason != "" {
		err = fmt.Errorf("%w: %s", ErrTransferAborted, f.Reason)
	}
	pc.dropResource(f.ID, in, err)
}

// failIncoming 连接断开时结束全部未完成的入站资源
func (pc *peerConn) failIncoming(cause error) {
	for id, in := range pc.incoming {
		pc.dropResource(id, in, cause)
	}
}

func (pc *peerConn) dropResource(id string, in *incomingResource, err error) {
	delete(pc.incoming, id)
	_ = in.file.Close()
	_ = os.Remove(in.file.Name())
	pc.finishResource(in.name, "", err)
}

func (pc *peerConn) finishResource(name, localPath string, err error) {
	peer := pc.peer
	pc.s.emit(func(o pkgif.SessionObserver) { o.OnResourceFinished(peer, name, localPath, err) })
}

// safeName 去掉路径成分，避免写出目标目录
func safeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == ".." {
		return "resource"
	}
	return strings.ReplaceAll(name, "*", "_")
}
