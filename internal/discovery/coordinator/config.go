package coordinator

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/dep2p/go-peerkit/pkg/types"
)

// 默认值
const (
	DefaultInviteTimeout  = 30 * time.Second
	DefaultFoundCacheSize = 256
)

// Config 协调器配置
type Config struct {
	// InviteTimeout 邀请超时，超时后由传输层上报未连接
	InviteTimeout time.Duration

	// FoundCacheSize 发现缓存容量
	FoundCacheSize int

	// TieBreak 邀请决胜策略，默认 TieBreakStrict
	TieBreak types.TieBreak

	// Logger 为空时使用 discovery/coordinator 子系统日志
	Logger *slog.Logger
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		InviteTimeout:  DefaultInviteTimeout,
		FoundCacheSize: DefaultFoundCacheSize,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.InviteTimeout <= 0 {
		return fmt.Errorf("%w: InviteTimeout must be positive", ErrInvalidConfig)
	}
	if c.FoundCacheSize <= 0 {
		return fmt.Errorf("%w: FoundCacheSize must be positive", ErrInvalidConfig)
	}
	if !c.TieBreak.IsValid() {
		return fmt.Errorf("%w: TieBreak %s", ErrInvalidConfig, c.TieBreak)
	}
	return nil
}
