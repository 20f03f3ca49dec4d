package mem

import (
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

// transfer 资源传输进度
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
		return 0
	}
	return float64(tr.completed.Load()) / float64(tr.total)
}

func (tr *transfer) Cancel() {
	tr.once.Do(func() { close(tr.cancel) })
}

// cancelReader 取消后读取返回 ErrTransferCancelled
type cancelReader struct {
	r  io.Reader
	tr *transfer
}

func (c *cancelReader) Read(p []byte) (int, error) {
	select {
	case <-c.tr.cancel:
		return 0, ErrTransferCancelled
	default:
	}
	n, err := c.r.Read(p)
	c.tr.completed.Add(int64(n))
	return n, err
}

// SendResource 把文件复制给单个节点
//
// 复制在独立 goroutine 上进行；onComplete 在本会话队列上调用，
// 接收方在自己的队列上收到 OnResourceFinished。
func (s *Session) SendResource(path, name string, peer types.PeerID, onComplete func(error)) (pkgif.Progress, error) {
	if s.isClosed() {
		return nil, ErrSessionClosed
	}
	remote := s.remote(peer)
	if remote == nil {
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
		return nil, fmt.Errorf("mem: %s is a directory", path)
	}

	tr := &transfer{
		id:     uuid.NewString(),
		total:  info.Size(),
		cancel: make(chan struct{}),
	}
	from := s.local
	go func() {
		localPath, err := s.n.copyResource(&cancelReader{r: f, tr: tr}, name)
		_ = f.Close()

		remote.emit(func(o pkgif.SessionObserver) { o.OnResourceFinished(from, name, localPath, err) })
		if onComplete != nil {
			s.post(func() { onComplete(err) })
		}
	}()
	return tr, nil
}

// copyResource 把资源写入接收目录，失败时不留下文件
func (n *Network) copyResource(r io.Reader, name string) (string, error) {
	dir := n.config.ResourceDir
	if dir == "" {
		dir = os.TempDir()
	}

	base := filepath.Base(name)
	if base == "." || base == ".." || base == string(filepath.Separator) {
		base = "resource"
	}
	base = strings.ReplaceAll(base, "*", "_")
	out, err := os.CreateTemp(dir, "peerkit-*-"+base)
	if err != nil {
		return "", err
	}

	if _, err := io.Copy(out, r); err != nil {
		_ = out.Close()
		_ = os.Remove(out.Name())
		return "", err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(out.Name())
		return "", err
	}
	return out.Name(), nil
}
