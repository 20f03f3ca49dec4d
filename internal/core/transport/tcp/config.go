package tcp

import (
	"fmt"
	"log/slog"
	"time"
)

// Config TCP 传输配置
type Config struct {
	// ListenAddr 监听地址，端口为 0 时由系统分配
	ListenAddr string

	// ResourceDir 入站资源的落盘目录，为空时使用系统临时目录
	ResourceDir string

	// HandshakeTimeout 入站邀请握手（读取 invite 帧与等待应答）的超时
	HandshakeTimeout time.Duration

	// Logger 为空时使用 transport/tcp 子系统日志
	Logger *slog.Logger
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:       ":0",
		HandshakeTimeout: 30 * time.Second,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("%w: ListenAddr is empty", ErrInvalidConfig)
	}
	if c.HandshakeTimeout <= 0 {
		return fmt.Errorf("%w: HandshakeTimeout must be positive", ErrInvalidConfig)
	}
	return nil
}
