package peerkit

import (
	"errors"

	"github.com/dep2p/go-peerkit/config"
	"github.com/dep2p/go-peerkit/internal/core/session"
	"github.com/dep2p/go-peerkit/internal/protocol/envelope"
)

// 公共错误定义
var (
	// ErrNodeClosed 节点已关闭
	ErrNodeClosed = errors.New("peerkit: node closed")

	// ErrInvalidConfig 配置缺少必填项或取值非法
	ErrInvalidConfig = config.ErrInvalidConfig

	// ErrEmptyEvent 事件名为空
	ErrEmptyEvent = envelope.ErrEmptyEvent

	// ErrUnsupportedObject 对象包含无法编码的值
	ErrUnsupportedObject = envelope.ErrUnsupportedObject

	// ErrMalformedEnvelope 入站数据不是合法信封
	ErrMalformedEnvelope = envelope.ErrMalformedEnvelope

	// ErrSendFailed 传输层拒绝发送
	ErrSendFailed = session.ErrSendFailed

	// ErrInvalidMode 模式未设置任何角色
	ErrInvalidMode = session.ErrInvalidMode
)
