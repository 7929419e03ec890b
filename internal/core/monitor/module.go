package monitor

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	pkgif "github.com/dechat/go-dechat/pkg/interfaces"
)

// ============================================================================
// Fx 模块
// ============================================================================

// Params Fx 模块输入参数
type Params struct {
	fx.In

	Graph    pkgif.Graph
	Identity pkgif.Identity
	Clock    clock.Clock `optional:"true"`
	Options  []Option    `group:"monitorOptions"`
}

// Result Fx 模块输出结果
type Result struct {
	fx.Out

	Monitor pkgif.ConnectionMonitor
}

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("core/monitor",
		fx.Provide(ProvideMonitor),
		fx.Invoke(registerLifecycle),
	)
}

// ProvideMonitor 提供连通性监视器
func ProvideMonitor(p Params) (Result, error) {
	m, err := New(Dep{
		Graph:    p.Graph,
		Identity: p.Identity,
		Clock:    p.Clock,
	}, p.Options...)
	if err != nil {
		return Result{}, err
	}
	return Result{Monitor: m}, nil
}

// registerLifecycle 随应用生命周期启停探测循环
func registerLifecycle(lc fx.Lifecycle, monitor pkgif.ConnectionMonitor) {
	m, ok := monitor.(*Monitor)
	if !ok {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error { return m.Start() },
		OnStop:  func(context.Context) error { return m.Stop() },
	})
}
