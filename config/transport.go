package config

import (
	"fmt"
	"time"
)

// 传输种类
const (
	// TransportLAN TCP 会话加 mDNS 发现
	TransportLAN = "lan"

	// TransportMem 进程内网络
	TransportMem = "mem"
)

// TransportConfig 传输配置
type TransportConfig struct {
	// Kind 传输种类：lan 或 mem
	Kind string `json:"kind"`

	// ListenAddr TCP 监听地址，端口为 0 时由系统分配
	ListenAddr string `json:"listen_addr,omitempty"`

	// ResourceDir 入站资源落盘目录，为空时使用系统临时目录
	ResourceDir string `json:"resource_dir,omitempty"`

	// QueryInterval mDNS 查询间隔
	QueryInterval Duration `json:"query_interval,omitempty"`

	// PeerTTL 节点多久未应答视为消失
	PeerTTL Duration `json:"peer_ttl,omitempty"`

	// Interface 限定 mDNS 使用的网卡
	Interface string `json:"interface,omitempty"`
}

// DefaultTransportConfig 返回默认传输配置
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		Kind:          TransportLAN,
		ListenAddr:    ":0",
		QueryInterval: Duration(2 * time.Second),
		PeerTTL:       Duration(10 * time.Second),
	}
}

// Validate 验证传输配置
func (c TransportConfig) Validate() error {
	switch c.Kind {
	case TransportMem:
		return nil
	case TransportLAN:
	default:
		return fmt.Errorf("%w: transport.kind %q", ErrInvalidConfig, c.Kind)
	}

	if c.ListenAddr == "" {
		return fmt.Errorf("%w: transport.listen_addr is empty", ErrInvalidConfig)
	}
	if c.QueryInterval <= 0 {
		return fmt.Errorf("%w: transport.query_interval must be positive", ErrInvalidConfig)
	}
	if c.PeerTTL < c.QueryInterval {
		return fmt.Errorf("%w: transport.peer_ttl must not be shorter than query_interval", ErrInvalidConfig)
	}
	return nil
}
