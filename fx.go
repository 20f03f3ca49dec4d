package peerkit

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/dep2p/go-peerkit/config"
	"github.com/dep2p/go-peerkit/internal/core/metrics"
	"github.com/dep2p/go-peerkit/internal/core/notifier"
	"github.com/dep2p/go-peerkit/internal/core/session"
	"github.com/dep2p/go-peerkit/internal/core/transport"
	"github.com/dep2p/go-peerkit/internal/discovery/coordinator"
	"github.com/dep2p/go-peerkit/internal/protocol/envelope"
	pkgif "github.com/dep2p/go-peerkit/pkg/interfaces"
	"github.com/dep2p/go-peerkit/pkg/types"
)

// buildFxApp 构建 Fx 应用
//
// 加载顺序（按依赖）：
//  1. 传输：Transport + Discovery
//  2. 基础：Codec → Metrics → Notifier
//  3. 发现协调器
//  4. 会话：PeerSession → Machine
func buildFxApp(o *options, local types.PeerID, node *Node) *fx.App {
	cfg := o.config

	modules := []fx.Option{
		fx.Supply(local),
		fx.Supply(sessionConfig(cfg, o.logger)),
		fx.Supply(coordinatorConfig(cfg, o.logger)),
	}

	// ════════════════════════════════════════════════════════════════════════
	// 1. 传输
	// ════════════════════════════════════════════════════════════════════════
	if o.transport != nil {
		modules = append(modules, fx.Supply(
			fx.Annotate(o.transport, fx.As(new(pkgif.Transport))),
			fx.Annotate(o.discovery, fx.As(new(pkgif.Discovery))),
		))
	} else {
		modules = append(modules,
			fx.Supply(transportConfig(cfg, o.network, o.logger)),
			transport.Module,
		)
	}

	// ════════════════════════════════════════════════════════════════════════
	// 2. 基础组件
	// ════════════════════════════════════════════════════════════════════════
	if o.registry != nil {
		modules = append(modules, fx.Supply(fx.Annotate(o.registry, fx.As(new(prometheus.Registerer)))))
	}
	if o.logger != nil {
		modules = append(modules, fx.Supply(o.logger))
	}
	modules = append(modules,
		envelope.Module,
		metrics.Module,
		notifier.Module,
	)

	// ════════════════════════════════════════════════════════════════════════
	// 3-4. 发现协调器与会话
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules,
		coordinator.Module,
		session.Module,
		fx.Populate(&node.machine, &node.coord, &node.metrics),
	)

	// 禁用 Fx 日志输出
	modules = append(modules,
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: zap.NewNop()}
		}),
	)

	return fx.New(modules...)
}

func sessionConfig(cfg *config.Config, l *slog.Logger) *session.Config {
	sc := session.DefaultConfig(cfg.Discovery.ServiceType)
	sc.Mode = cfg.Discovery.Mode
	sc.DiscoveryInfo = types.DiscoveryInfo(cfg.Discovery.Info).Clone()
	sc.StopBrowsingOnConnect = cfg.Session.StopBrowsingOnConnect
	sc.Logger = l
	return sc
}

func coordinatorConfig(cfg *config.Config, l *slog.Logger) *coordinator.Config {
	cc := coordinator.DefaultConfig()
	cc.InviteTimeout = cfg.Discovery.InviteTimeout.Duration()
	cc.FoundCacheSize = cfg.Discovery.FoundCacheSize
	cc.TieBreak = cfg.Discovery.TieBreak
	cc.Logger = l
	return cc
}

func transportConfig(cfg *config.Config, network *MemNetwork, l *slog.Logger) *transport.Config {
	return &transport.Config{
		Kind:          transport.Kind(cfg.Transport.Kind),
		ListenAddr:    cfg.Transport.ListenAddr,
		ResourceDir:   cfg.Transport.ResourceDir,
		QueryInterval: cfg.Transport.QueryInterval.Duration(),
		PeerTTL:       cfg.Transport.PeerTTL.Duration(),
		Interface:     cfg.Transport.Interface,
		Network:       network,
		Logger:        l,
	}
}
