package mem

import (
	"fmt"
	"log/slog"

	"github.com/benbjohnson/clock"
)

// Config 进程内网络配置
type Config struct {
	// ResourceDir 入站资源的落盘目录，为空时使用系统临时目录
	ResourceDir string

	// Clock 邀请超时使用的时钟
	Clock clock.Clock

	// Logger 为空时使用 transport/mem 子系统日志
	Logger *slog.Logger
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Clock: clock.New(),
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Clock == nil {
		return fmt.Errorf("%w: Clock is nil", ErrInvalidConfig)
	}
	return nil
}
