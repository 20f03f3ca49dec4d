package peerkit

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dep2p/go-peerkit/config"
	"github.com/dep2p/go-peerkit/internal/core/transport/mem"
)

// Option 节点配置选项
//
// 选项按顺序应用。WithConfig 与 WithConfigFile 整体替换配置，
// 应放在其他选项之前。
type Option func(*options) error

// options 内部选项
type options struct {
	config *config.Config

	observer *Observer
	logger   *slog.Logger
	registry prometheus.Registerer

	// 自定义能力，二者同时设置时替换内置传输
	transport Transport
	discovery Discovery

	network *mem.Network
}

func newOptions() *options {
	return &options{config: config.NewConfig()}
}

// ════════════════════════════════════════════════════════════════════════════
//                              配置来源
// ════════════════════════════════════════════════════════════════════════════

// WithConfig 使用完整配置
func WithConfig(cfg *config.Config) Option {
	return func(o *options) error {
		if cfg == nil {
			return config.ErrNilConfig
		}
		cp := *cfg
		o.config = &cp
		return nil
	}
}

// WithConfigFile 从 JSON 文件加载配置
func WithConfigFile(path string) Option {
	return func(o *options) error {
		cfg, err := config.LoadFile(path)
		if err != nil {
			return err
		}
		o.config = cfg
		return nil
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              身份与发现
// ════════════════════════════════════════════════════════════════════════════

// WithDisplayName 设置展示名
func WithDisplayName(name string) Option {
	return func(o *options) error {
		if name == "" {
			return errors.New("display name is empty")
		}
		o.config.Identity.DisplayName = name
		return nil
	}
}

// WithServiceType 设置服务类型
func WithServiceType(serviceType string) Option {
	return func(o *options) error {
		if err := config.ValidateServiceType(serviceType); err != nil {
			return err
		}
		o.config.Discovery.ServiceType = serviceType
		return nil
	}
}

// WithMode 设置初始角色
func WithMode(mode Mode) Option {
	return func(o *options) error {
		if !mode.IsValid() {
			return fmt.Errorf("%w: %s", ErrInvalidMode, mode)
		}
		o.config.Discovery.Mode = mode
		return nil
	}
}

// WithInviteTimeout 设置邀请超时
func WithInviteTimeout(d time.Duration) Option {
	return func(o *options) error {
		if d <= 0 {
			return errors.New("invite timeout must be positive")
		}
		o.config.Discovery.InviteTimeout = config.Duration(d)
		return nil
	}
}

// WithDiscoveryInfo 设置随广播发布的键值信息
func WithDiscoveryInfo(info DiscoveryInfo) Option {
	return func(o *options) error {
		o.config.Discovery.Info = map[string]string(info.Clone())
		return nil
	}
}

// WithStopBrowsingOnConnect 连接后同时停止浏览
//
// 默认只停止广播，浏览继续以便加入更多节点。
func WithStopBrowsingOnConnect(stop bool) Option {
	return func(o *options) error {
		o.config.Session.StopBrowsingOnConnect = stop
		return nil
	}
}

// WithTieBreak 设置邀请决胜策略
//
// 默认 TieBreakStrict。只广播的节点需要接受任意 client 时使用 TieBreakWhileBrowsing。
func WithTieBreak(tb TieBreak) Option {
	return func(o *options) error {
		if !tb.IsValid() {
			return fmt.Errorf("invalid tie-break policy %s", tb)
		}
		o.config.Discovery.TieBreak = tb
		return nil
	}
}

// WithDefaultReliability 设置 SendEvent 的默认发送模式
func WithDefaultReliability(r Reliability) Option {
	return func(o *options) error {
		o.config.Session.Reliability = r
		return nil
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              回调与可观测性
// ════════════════════════════════════════════════════════════════════════════

// WithObserver 设置观察者
func WithObserver(obs Observer) Option {
	return func(o *options) error {
		o.observer = &obs
		return nil
	}
}

// WithLogger 为全部组件设置日志
func WithLogger(l *slog.Logger) Option {
	return func(o *options) error {
		o.logger = l
		return nil
	}
}

// WithMetricsRegistry 将指标注册到 reg
func WithMetricsRegistry(reg prometheus.Registerer) Option {
	return func(o *options) error {
		o.registry = reg
		return nil
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              传输
// ════════════════════════════════════════════════════════════════════════════

// WithListenAddr 设置 TCP 监听地址
func WithListenAddr(addr string) Option {
	return func(o *options) error {
		o.config.Transport.Kind = config.TransportLAN
		o.config.Transport.ListenAddr = addr
		return nil
	}
}

// WithResourceDir 设置入站资源落盘目录
func WithResourceDir(dir string) Option {
	return func(o *options) error {
		o.config.Transport.ResourceDir = dir
		return nil
	}
}

// WithMemNetwork 使用共享的进程内网络
func WithMemNetwork(n *MemNetwork) Option {
	return func(o *options) error {
		if n == nil {
			return errors.New("mem network is nil")
		}
		o.config.Transport.Kind = config.TransportMem
		o.network = n
		return nil
	}
}

// WithTransport 使用自定义的传输与发现能力
func WithTransport(t Transport, d Discovery) Option {
	return func(o *options) error {
		if t == nil || d == nil {
			return errors.New("transport and discovery are required")
		}
		o.transport, o.discovery = t, d
		return nil
	}
}
