package channel

import (
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

	Graph      pkgif.Graph
	Identity   pkgif.Identity    `optional:"true"`
	Moderation pkgif.Moderation  `optional:"true"`
	Audit      pkgif.AuditLog    `optional:"true"`
	Metrics    *metrics.Metrics  `optional:"true"`
	Clock      clock.Clock       `optional:"true"`
	Options    []Option          `group:"channelOptions"`
}

// Result Fx 模块输出结果
type Result struct {
	fx.Out

	Messaging pkgif.ChannelMessaging
}

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("protocol/channel",
		fx.Provide(ProvideService),
	)
}

// ProvideService 提供频道消息服务
func ProvideService(p Params) (Result, error) {
	svc, err := New(Dep{
		Graph:      p.Graph,
		Identity:   p.Identity,
		Moderation: p.Moderation,
		Audit:      p.Audit,
		Metrics:    p.Metrics,
		Clock:      p.Clock,
	}, p.Options...)
	if err != nil {
		return Result{}, err
	}
	return Result{Messaging: svc}, nil
}
