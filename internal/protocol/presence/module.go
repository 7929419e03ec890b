package presence

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
	Options  []Option    `group:"presenceOptions"`
}

// Result Fx 模块输出结果
type Result struct {
	fx.Out

	Presence pkgif.Presence
}

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("protocol/presence",
		fx.Provide(ProvideService),
		fx.Invoke(registerLifecycle),
	)
}

// registerLifecycle 应用关闭时走优雅下线路径
func registerLifecycle(lc fx.Lifecycle, presence pkgif.Presence) {
	svc, ok := presence.(*Service)
	if !ok {
		return
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			svc.mu.Lock()
			active := svc.stopHeartbeat != nil
			svc.mu.Unlock()
			if !active {
				return nil
			}
			return svc.GoOffline(ctx)
		},
	})
}

// ProvideService 提供在线状态服务
func ProvideService(p Params) (Result, error) {
	svc, err := New(Dep{
		Graph:    p.Graph,
		Identity: p.Identity,
		Clock:    p.Clock,
	}, p.Options...)
	if err != nil {
		return Result{}, err
	}
	return Result{Presence: svc}, nil
}
