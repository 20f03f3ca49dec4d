package coordinator

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-peerkit/internal/core/metrics"
	pkgif "github.com/dep2p/go-peerkit/pkg/interfaces"
	"github.com/dep2p/go-peerkit/pkg/types"
)

// ============================================================================
//
//	Fx 模块定义
//
// ============================================================================

// Module Coordinator Fx 模块
var Module = fx.Module("discovery_coordinator",
	fx.Provide(NewFromParams),
	fx.Invoke(registerLifecycle),
)

// Params Coordinator 依赖参数
type Params struct {
	fx.In

	Config    *Config `optional:"true"`
	Local     types.PeerID
	Discovery pkgif.Discovery
	Sessions  SessionSource
	Metrics   *metrics.Metrics `optional:"true"`
}

// NewFromParams 从 Fx 参数创建 Coordinator
func NewFromParams(p Params) (*Coordinator, error) {
	return New(p.Config, p.Local, p.Discovery, p.Sessions, p.Metrics)
}

// registerLifecycle 应用停止时停止全部角色
func registerLifecycle(lc fx.Lifecycle, c *Coordinator) {
	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			c.Reset()
			return nil
		},
	})
}
