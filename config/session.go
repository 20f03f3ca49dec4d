package config

import "github.com/dep2p/go-peerkit/pkg/types"

// SessionConfig 会话策略
type SessionConfig struct {
	// StopBrowsingOnConnect 连接后是否停止浏览
	//
	// 默认只停止广播，浏览继续以便加入更多节点。
	StopBrowsingOnConnect bool `json:"stop_browsing_on_connect"`

	// Reliability SendEvent 的默认发送模式
	Reliability types.Reliability `json:"reliability"`
}

// DefaultSessionConfig 返回默认会话策略
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Reliability: types.Reliable,
	}
}

// Validate 验证会话策略
func (c SessionConfig) Validate() error {
	return nil
}
