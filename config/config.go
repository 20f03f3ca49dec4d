// Package config 提供 PeerKit 的统一配置
//
// 主 Config 由各子配置组成，每个子配置在独立文件中定义，
// 各自提供默认值与 Validate。配置可从 JSON 加载：
//
//	cfg, err := config.LoadFile("peerkit.json")
//	if err != nil {
//	    return err
//	}
//	cfg.Discovery.Mode = types.ModeServer
//
// JSON 中的时长写作字符串，例如 "30s"。
package config

// Config PeerKit 完整配置
type Config struct {
	// Identity 本地身份
	Identity IdentityConfig `json:"identity"`

	// Discovery 发现与邀请
	Discovery DiscoveryConfig `json:"discovery"`

	// Session 会话策略
	Session SessionConfig `json:"session"`

	// Transport 传输
	Transport TransportConfig `json:"transport"`

	// Log 日志
	Log LogConfig `json:"log"`
}

// NewConfig 创建默认配置
//
// 默认配置缺少展示名与服务类型，需要调用方补齐后才能通过 Validate。
func NewConfig() *Config {
	return &Config{
		Identity:  DefaultIdentityConfig(),
		Discovery: DefaultDiscoveryConfig(),
		Session:   DefaultSessionConfig(),
		Transport: DefaultTransportConfig(),
		Log:       DefaultLogConfig(),
	}
}

// Validate 依次验证各子配置
func (c *Config) Validate() error {
	if c == nil {
		return ErrNilConfig
	}
	if err := c.Identity.Validate(); err != nil {
		return err
	}
	if err := c.Discovery.Validate(); err != nil {
		return err
	}
	if err := c.Session.Validate(); err != nil {
		return err
	}
	if err := c.Transport.Validate(); err != nil {
		return err
	}
	return c.Log.Validate()
}
