package transport

import (
	"context"

	"go.uber.org/fx"

	pkgif "github.com/dep2p/go-peerkit/pkg/interfaces"
)

// ============================================================================
//
//	Fx 模块定义
//
// ============================================================================

// Module 传输 Fx 模块
var Module = fx.Module("transport",
	fx.Provide(ProvideStack),
	fx.Invoke(registerLifecycle),
)

// Params 依赖参数
type Params struct {
	fx.In

	Config *Config `optional:"true"`
}

// Output Fx 输出
type Output struct {
	fx.Out

	Stack     *Stack
	Transport pkgif.Transport
	Discovery pkgif.Discovery
}

// ProvideStack 创建 Stack 并分别提供传输与发现
func ProvideStack(p Params) (Output, error) {
	cfg := NewConfig()
	if p.Config != nil {
		cfg = *p.Config
	}

	s, err := New(cfg)
	if err != nil {
		return Output{}, err
	}
	return Output{
		Stack:     s,
		Transport: s.Transport(),
		Discovery: s.Discovery(),
	}, nil
}

// registerLifecycle 应用停止时关闭传输
func registerLifecycle(lc fx.Lifecycle, s *Stack) {
	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return s.Close()
		},
	})
}
