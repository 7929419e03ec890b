package dm

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dechat/go-dechat/internal/core/metrics"
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
	Metrics  *metrics.Metrics `optional:"true"`
	Clock    clock.Clock      `optional:"true"`
	Options  []Option         `group:"dmOptions"`
}

// Result Fx 模块输出结果
type Result struct {
	fx.Out

	Messaging pkgif.DMMessaging
}

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("protocol/dm",
		fx.Provide(ProvideService),
		fx.Invoke(registerLifecycle),
	)
}

// registerLifecycle 启动时发布交换公钥，让对端可以发起私信
func registerLifecycle(lc fx.Lifecycle, messaging pkgif.DMMessaging) {
	svc, ok := messaging.(*Service)
	if !ok {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			svc.PublishExchangeKey(ctx)
			return nil
		},
	})
}

// ProvideService 提供私信服务
func ProvideService(p Params) (Result, error) {
	svc, err := New(Dep{
		Graph:    p.Graph,
		Identity: p.Identity,
		Metrics:  p.Metrics,
		Clock:    p.Clock,
	}, p.Options...)
	if err != nil {
		return Result{}, err
	}
	return Result{Messaging: svc}, nil
}
