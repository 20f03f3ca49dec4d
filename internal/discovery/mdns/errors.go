package mdns

import "errors"

var (
	// ErrInvalidConfig 无效配置
	ErrInvalidConfig = errors.New("mdns: invalid config")

	// ErrNoTransport 缺少 TCP 传输
	ErrNoTransport = errors.New("mdns: transport is nil")

	// ErrServerStart 服务器启动失败
	ErrServerStart = errors.New("mdns: failed to start server")

	// ErrNoLocalAddress 没有可广播的本地地址
	ErrNoLocalAddress = errors.New("mdns: no local address to advertise")

	// ErrMissingID TXT 记录缺少身份
	ErrMissingID = errors.New("mdns: txt record missing id")
)
