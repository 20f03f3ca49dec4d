package session

import (
	"fmt"
	"log/slog"

	"github.com/dep2p/go-peerkit/pkg/types"
)

// Config 状态机配置
type Config struct {
	// ServiceType 广播与浏览使用的服务类型
	ServiceType string

	// DiscoveryInfo 随广播发布的键值信息
	DiscoveryInfo types.DiscoveryInfo

	// Mode 初始角色
	Mode types.Mode

	// StopBrowsingOnConnect 为 true 时连接后同时停止浏览
	StopBrowsingOnConnect bool

	// Logger 为空时使用 core/session 子系统日志
	Logger *slog.Logger
}

// DefaultConfig 返回默认配置
func DefaultConfig(serviceType string) *Config {
	return &Config{
		ServiceType: serviceType,
		Mode:        types.ModePeer,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.ServiceType == "" {
		return fmt.Errorf("%w: ServiceType is empty", ErrInvalidConfig)
	}
	if !c.Mode.IsValid() {
		return fmt.Errorf("%w: %s", ErrInvalidMode, c.Mode)
	}
	return nil
}
