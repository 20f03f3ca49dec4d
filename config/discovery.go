package config

import (
	"fmt"
	"time"

	"github.com/dep2p/go-peerkit/pkg/types"
)

// 服务类型约束
const (
	// MaxServiceTypeLen 服务类型最大长度
	MaxServiceTypeLen = 15
)

// DiscoveryConfig 发现配置
type DiscoveryConfig struct {
	// ServiceType 服务类型，只有相同服务类型的节点互相可见
	//
	// 1 到 15 个字符，只能包含小写字母、数字和连字符。
	ServiceType string `json:"service_type"`

	// Mode 角色：client、server、peer（all、both 为别名）
	Mode types.Mode `json:"mode"`

	// InviteTimeout 邀请超时
	InviteTimeout Duration `json:"invite_timeout,omitempty"`

	// Info 随广播发布的键值信息
	Info map[string]string `json:"info,omitempty"`

	// FoundCacheSize 协调器记住的已发现节点上限
	FoundCacheSize int `json:"found_cache_size,omitempty"`

	// TieBreak 邀请决胜策略：strict（默认）或 browsing
	TieBreak types.TieBreak `json:"tie_break,omitempty"`
}

// DefaultDiscoveryConfig 返回默认发现配置
func DefaultDiscoveryConfig() DiscoveryConfig {
	return DiscoveryConfig{
		Mode:           types.ModePeer,
		InviteTimeout:  Duration(30 * time.Second),
		FoundCacheSize: 256,
	}
}

// Validate 验证发现配置
func (c DiscoveryConfig) Validate() error {
	if err := ValidateServiceType(c.ServiceType); err != nil {
		return err
	}
	if !c.Mode.IsValid() {
		return fmt.Errorf("%w: discovery.mode %s", ErrInvalidConfig, c.Mode)
	}
	if c.InviteTimeout <= 0 {
		return fmt.Errorf("%w: discovery.invite_timeout must be positive", ErrInvalidConfig)
	}
	if c.FoundCacheSize <= 0 {
		return fmt.Errorf("%w: discovery.found_cache_size must be positive", ErrInvalidConfig)
	}
	if !c.TieBreak.IsValid() {
		return fmt.Errorf("%w: discovery.tie_break %s", ErrInvalidConfig, c.TieBreak)
	}
	return nil
}

// ValidateServiceType 检查服务类型是否可以用作 mDNS 服务名
func ValidateServiceType(s string) error {
	if s == "" || len(s) > MaxServiceTypeLen {
		return fmt.Errorf("%w: service type %q must be 1-%d characters", ErrInvalidConfig, s, MaxServiceTypeLen)
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		case r == '-' && i > 0 && i < len(s)-1:
		default:
			return fmt.Errorf("%w: service type %q contains %q", ErrInvalidConfig, s, r)
		}
	}
	return nil
}
