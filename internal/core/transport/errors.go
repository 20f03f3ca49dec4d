package transport

import "errors"

var (
	// ErrUnknownKind 未知的传输种类
	ErrUnknownKind = errors.New("transport: unknown kind")

	// ErrInvalidConfig 配置无效
	ErrInvalidConfig = errors.New("transport: invalid config")
)
