package session

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-peerkit/internal/core/metrics"
	"github.com/dep2p/go-peerkit/internal/core/notifier"
	"github.com/dep2p/go-peerkit/internal/discovery/coordinator"
	"github.com/dep2p/go-peerkit/internal/protocol/envelope"
	pkgif "github.com/dep2p/go-peerkit/pkg/interfaces"
	"github.com/dep2p/go-peerkit/pkg/types"
)

// ============================================================================
//
//	Fx 模块定义
//
// ============================================================================

// Module Session Fx 模块
//
// 同时以 coordinator.SessionSource 的身份提供 PeerSession。
var Module = fx.Module("session",
	fx.Provide(
		fx.Annotate(
			NewPeerSessionFromParams,
			fx.As(fx.Self()),
			fx.As(new(coordinator.SessionSource)),
		),
		NewMachineFromParams,
	),
	fx.Invoke(registerLifecycle),
)

// PeerSessionParams PeerSession 依赖参数
type PeerSessionParams struct {
	fx.In

	Transport pkgif.Transport
	Local     types.PeerID
	Codec     *envelope.Codec
	Metrics   *metrics.Metrics `optional:"true"`
	Config    *Config          `optional:"true"`
}

// NewPeerSessionFromParams 从 Fx 参数创建 PeerSession
func NewPeerSessionFromParams(p PeerSessionParams) (*PeerSession, error) {
	var cfg Config
	if p.Config != nil {
		cfg = *p.Config
	}
	return NewPeerSession(p.Transport, p.Local, p.Codec, p.Metrics, cfg.Logger)
}

// MachineParams Machine 依赖参数
type MachineParams struct {
	fx.In

	Config      *Config
	Sessions    *PeerSession
	Coordinator *coordinator.Coordinator
	Notifier    *notifier.Notifier
	Metrics     *metrics.Metrics `optional:"true"`
}

// NewMachineFromParams 从 Fx 参数创建 Machine
func NewMachineFromParams(p MachineParams) (*Machine, error) {
	return NewMachine(p.Config, p.Sessions, p.Coordinator, p.Notifier, p.Metrics)
}

// registerLifecycle 应用停止时进入 inactive
func registerLifecycle(lc fx.Lifecycle, mc *Machine) {
	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			mc.Deactivate()
			return nil
		},
	})
}
