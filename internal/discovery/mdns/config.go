package mdns

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
)

const (
	// DefaultDomain mDNS 域名
	DefaultDomain = "local."

	// DefaultQueryInterval 查询间隔
	DefaultQueryInterval = 2 * time.Second

	// DefaultQueryTimeout 单次查询等待应答的时长
	DefaultQueryTimeout = time.Second

	// DefaultPeerTTL 节点多久未出现视为丢失
	DefaultPeerTTL = 10 * time.Second
)

// Config mDNS 发现配置
type Config struct {
	// Domain 域名，默认 "local."
	Domain string

	// QueryInterval 查询间隔
	QueryInterval time.Duration

	// QueryTimeout 单次查询超时，不超过 QueryInterval
	QueryTimeout time.Duration

	// PeerTTL 节点过期时间
	PeerTTL time.Duration

	// Interface 指定网络接口（空表示所有接口）
	Interface string

	// DisableIPv6 禁用 IPv6
	DisableIPv6 bool

	// Clock 查询与过期使用的时钟
	Clock clock.Clock

	// Logger 为空时使用 discovery/mdns 子系统日志
	Logger *slog.Logger
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Domain:        DefaultDomain,
		QueryInterval: DefaultQueryInterval,
		QueryTimeout:  DefaultQueryTimeout,
		PeerTTL:       DefaultPeerTTL,
		DisableIPv6:   true,
		Clock:         clock.New(),
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Domain == "" {
		return fmt.Errorf("%w: Domain is empty", ErrInvalidConfig)
	}
	if c.QueryInterval <= 0 {
		return fmt.Errorf("%w: QueryInterval must be positive", ErrInvalidConfig)
	}
	if c.QueryTimeout <= 0 || c.QueryTimeout > c.QueryInterval {
		return fmt.Errorf("%w: QueryTimeout must be in (0, QueryInterval]", ErrInvalidConfig)
	}
	if c.PeerTTL < c.QueryInterval {
		return fmt.Errorf("%w: PeerTTL must not be shorter than QueryInterval", ErrInvalidConfig)
	}
	if c.Clock == nil {
		return fmt.Errorf("%w: Clock is nil", ErrInvalidConfig)
	}
	return nil
}
