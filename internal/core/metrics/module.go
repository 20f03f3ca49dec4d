package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

// Params Metrics 依赖参数
type Params struct {
	fx.In

	Registerer prometheus.Registerer `optional:"true"`
}

// Module 是 metrics 的 Fx 模块
var Module = fx.Module("metrics",
	fx.Provide(NewFromParams),
)

// NewFromParams 从参数创建 Metrics，未提供 Registerer 时指标只在进程内累计
func NewFromParams(p Params) *Metrics {
	return New(p.Registerer)
}
