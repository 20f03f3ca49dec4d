package session

import "errors"

var (
	// ErrInvalidConfig 无效的配置
	ErrInvalidConfig = errors.New("session: invalid config")

	// ErrInvalidMode 模式未设置任何角色
	ErrInvalidMode = errors.New("session: invalid mode")

	// ErrNoTransport 未提供传输层
	ErrNoTransport = errors.New("session: no transport")

	// ErrSessionUnavailable 传输会话创建失败
	ErrSessionUnavailable = errors.New("session: transport session unavailable")

	// ErrSendFailed 传输层发送失败
	ErrSendFailed = errors.New("session: send failed")

	// ErrRolesFailed 所有请求的发现角色都启动失败
	ErrRolesFailed = errors.New("session: discovery roles failed to start")
)
