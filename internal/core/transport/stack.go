package transport

import (
	"fmt"
	"log/slog"
	"time"

	"go.uber.org/multierr"

	"github.com/dep2p/go-peerkit/internal/core/transport/mem"
	"github.com/dep2p/go-peerkit/internal/core/transport/tcp"
	"github.com/dep2p/go-peerkit/internal/discovery/mdns"
	"github.com/dep2p/go-peerkit/internal/util/logger"
	pkgif "github.com/dep2p/go-peerkit/pkg/interfaces"
)

// Kind 传输种类
type Kind string

const (
	// KindLAN TCP 加 mDNS
	KindLAN Kind = "lan"

	// KindMem 进程内网络
	KindMem Kind = "mem"
)

// ============================================================================
//                              配置
// ============================================================================

// Config 传输组装配置
type Config struct {
	// Kind 传输种类
	Kind Kind

	// ListenAddr TCP 监听地址（lan）
	ListenAddr string

	// ResourceDir 入站资源落盘目录，为空时使用系统临时目录
	ResourceDir string

	// QueryInterval mDNS 查询间隔（lan）
	QueryInterval time.Duration

	// PeerTTL 节点多久未应答视为消失（lan）
	PeerTTL time.Duration

	// Interface 限定 mDNS 使用的网卡，为空时使用全部（lan）
	Interface string

	// Network 共享的进程内网络（mem），为空时新建独占网络
	Network *mem.Network

	// Logger 为空时各子系统使用自己的日志
	Logger *slog.Logger
}

// NewConfig 返回默认配置
func NewConfig() Config {
	return Config{
		Kind:          KindLAN,
		ListenAddr:    tcp.DefaultConfig().ListenAddr,
		QueryInterval: mdns.DefaultQueryInterval,
		PeerTTL:       mdns.DefaultPeerTTL,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	switch c.Kind {
	case KindMem:
		return nil
	case KindLAN:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, c.Kind)
	}

	if c.ListenAddr == "" {
		return fmt.Errorf("%w: ListenAddr is empty", ErrInvalidConfig)
	}
	if c.QueryInterval <= 0 {
		return fmt.Errorf("%w: QueryInterval must be positive", ErrInvalidConfig)
	}
	if c.PeerTTL < c.QueryInterval {
		return fmt.Errorf("%w: PeerTTL must not be shorter than QueryInterval", ErrInvalidConfig)
	}
	return nil
}

// ============================================================================
//                              Stack
// ============================================================================

// Stack 一组共享底层资源的传输与发现
type Stack struct {
	kind      Kind
	transport pkgif.Transport
	discovery pkgif.Discovery
	closers   []func() error
	log       *slog.Logger
}

// New 按配置创建 Stack
func New(cfg Config) (*Stack, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Stack{
		kind: cfg.Kind,
		log:  logger.OrDefault(cfg.Logger, "core/transport"),
	}
	var err error
	switch cfg.Kind {
	case KindMem:
		err = s.buildMem(cfg)
	case KindLAN:
		err = s.buildLAN(cfg)
	}
	if err != nil {
		return nil, err
	}

	s.log.Info("传输已创建", "kind", cfg.Kind)
	return s, nil
}

func (s *Stack) buildMem(cfg Config) error {
	n := cfg.Network
	if n == nil {
		mc := mem.DefaultConfig()
		mc.ResourceDir = cfg.ResourceDir
		mc.Logger = cfg.Logger

		var err error
		if n, err = mem.NewNetwork(mc); err != nil {
			return err
		}
		// 只关闭自己创建的网络
		s.closers = append(s.closers, n.Close)
	}
	s.transport, s.discovery = n, n
	return nil
}

func (s *Stack) buildLAN(cfg Config) error {
	tc := tcp.DefaultConfig()
	tc.ListenAddr = cfg.ListenAddr
	tc.ResourceDir = cfg.ResourceDir
	tc.Logger = cfg.Logger

	t, err := tcp.New(tc)
	if err != nil {
		return err
	}

	mc := mdns.DefaultConfig()
	mc.QueryInterval = cfg.QueryInterval
	mc.PeerTTL = cfg.PeerTTL
	mc.Interface = cfg.Interface
	mc.Logger = cfg.Logger
	if mc.QueryTimeout > mc.QueryInterval {
		mc.QueryTimeout = mc.QueryInterval / 2
	}

	d, err := mdns.New(mc, t)
	if err != nil {
		return multierr.Append(err, t.Close())
	}

	s.transport, s.discovery = t, d
	s.closers = append(s.closers, d.Close, t.Close)
	return nil
}

// Kind 返回传输种类
func (s *Stack) Kind() Kind {
	return s.kind
}

// Transport 返回传输能力
func (s *Stack) Transport() pkgif.Transport {
	return s.transport
}

// Discovery 返回发现能力
func (s *Stack) Discovery() pkgif.Discovery {
	return s.discovery
}

// Close 释放 Stack 创建的资源
func (s *Stack) Close() error {
	var err error
	for _, c := range s.closers {
		err = multierr.Append(err, c())
	}
	s.closers = nil
	return err
}
