package tcp

import "errors"

var (
	// ErrTransportClosed 传输已关闭
	ErrTransportClosed = errors.New("tcp: transport closed")

	// ErrSessionClosed 会话已断开
	ErrSessionClosed = errors.New("tcp: session closed")

	// ErrPeerNotConnected 节点未连接
	ErrPeerNotConnected = errors.New("tcp: peer not connected")

	// ErrInvitationRejected 邀请被拒绝
	ErrInvitationRejected = errors.New("tcp: invitation rejected")

	// ErrMalformedFrame 帧格式错误
	ErrMalformedFrame = errors.New("tcp: malformed frame")

	// ErrFrameTooLarge 帧超过长度上限
	ErrFrameTooLarge = errors.New("tcp: frame too large")

	// ErrTransferAborted 资源传输被对端中止
	ErrTransferAborted = errors.New("tcp: transfer aborted")

	// ErrTransferCancelled 资源传输被取消
	ErrTransferCancelled = errors.New("tcp: transfer cancelled")

	// ErrTransferIncomplete 资源长度与声明不符
	ErrTransferIncomplete = errors.New("tcp: transfer incomplete")

	// ErrHandshakeFailed 加密握手失败
	ErrHandshakeFailed = errors.New("tcp: secure handshake failed")

	// ErrDecryptFailed 密文无法解密，连接被篡改或密钥不一致
	ErrDecryptFailed = errors.New("tcp: decrypt failed")

	// ErrConnectionClosed 连接已关闭
	ErrConnectionClosed = errors.New("tcp: connection closed")

	// ErrInvalidConfig 无效的配置
	ErrInvalidConfig = errors.New("tcp: invalid config")
)
