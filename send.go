package peerkit

import (
	"os"
	"path/filepath"
)

// SendOption 发送选项
type SendOption func(*sendOptions)

type sendOptions struct {
	peers       []PeerID
	reliability Reliability
}

// WithPeers 只发往指定节点，默认发往全部已连接节点
func WithPeers(peers ...PeerID) SendOption {
	return func(o *sendOptions) {
		o.peers = append(o.peers[:0:0], peers...)
	}
}

// WithReliability 指定发送模式
func WithReliability(r Reliability) SendOption {
	return func(o *sendOptions) {
		o.reliability = r
	}
}

func (n *Node) sendOptions(opts []SendOption) *sendOptions {
	so := &sendOptions{reliability: n.reliability}
	for _, opt := range opts {
		opt(so)
	}
	return so
}

// SendEvent 发送事件，object 可为 nil
//
// 没有目标节点时直接返回 nil，不调用传输层。
// 传输层拒绝发送时返回 ErrSendFailed。
func (n *Node) SendEvent(event string, object any, opts ...SendOption) error {
	if n.isClosed() {
		return ErrNodeClosed
	}
	so := n.sendOptions(opts)
	return n.machine.Sessions().SendEvent(event, object, so.peers, so.reliability)
}

// SendResource 向目标节点发送文件
//
// 返回与目标节点一一对应的进度，启动失败的节点对应 nil，
// 其错误汇总在返回的 error 中。onComplete 对每个成功启动的节点调用一次。
// 没有目标节点时返回空切片。
func (n *Node) SendResource(path, name string, onComplete func(peer PeerID, err error), opts ...SendOption) ([]Progress, error) {
	if n.isClosed() {
		return nil, ErrNodeClosed
	}
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	if name == "" {
		name = filepath.Base(path)
	}
	so := n.sendOptions(opts)
	return n.machine.Sessions().SendResource(path, name, so.peers, onComplete)
}
