package mem

import "errors"

var (
	// ErrNetworkClosed 网络已关闭
	ErrNetworkClosed = errors.New("mem: network closed")

	// ErrSessionClosed 会话已断开
	ErrSessionClosed = errors.New("mem: session closed")

	// ErrPeerNotConnected 节点未连接
	ErrPeerNotConnected = errors.New("mem: peer not connected")

	// ErrTransferCancelled 资源传输被取消
	ErrTransferCancelled = errors.New("mem: transfer cancelled")

	// ErrInvalidConfig 无效的配置
	ErrInvalidConfig = errors.New("mem: invalid config")
)
