package dechat

import (
	"context"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	// Core Layer
	"github.com/dechat/go-dechat/internal/core/identity"
	"github.com/dechat/go-dechat/internal/core/metrics"
	"github.com/dechat/go-dechat/internal/core/monitor"

	// Graph Layer
	"github.com/dechat/go-dechat/internal/graph/memgraph"
	"github.com/dechat/go-dechat/internal/graph/wiregraph"

	// Protocol Layer
	"github.com/dechat/go-dechat/internal/protocol/channel"
	"github.com/dechat/go-dechat/internal/protocol/dm"
	"github.com/dechat/go-dechat/internal/protocol/presence"
	"github.com/dechat/go-dechat/internal/protocol/voice"

	pkgif "github.com/dechat/go-dechat/pkg/interfaces"
)

// buildFxApp 构建 Fx 应用
//
// 组装所有内部模块，采用条件加载策略：
//   - 核心模块：必须加载（Identity, Metrics, Graph）
//   - 条件模块：根据选项加载（协作方、自定义图）
//   - 扩展模块：用户自定义 Fx 选项
//
// 加载顺序（按依赖）：
//  1. Core Layer: Identity → Metrics → Graph
//  2. Protocol Layer: Channel → Presence → DM → Voice
//  3. Monitor Layer: ConnectionMonitor（随生命周期启停）
func buildFxApp(o *options, c *Client) *fx.App {
	modules := []fx.Option{
		// ════════════════════════════════════════════════════════════════════
		// 1. 基础注入（种子、时钟、注册器）
		// ════════════════════════════════════════════════════════════════════
		fx.Provide(fx.Annotated{
			Name:   "identitySeed",
			Target: func() []byte { return o.identitySeed },
		}),
		fx.Provide(func() clock.Clock {
			if o.clock != nil {
				return o.clock
			}
			return clock.New()
		}),
	}

	if o.registerer != nil {
		modules = append(modules, fx.Provide(func() prometheus.Registerer { return o.registerer }))
	}

	// ════════════════════════════════════════════════════════════════════════
	// 2. 复制图（注入 > 中继 > 进程内）
	// ════════════════════════════════════════════════════════════════════════
	switch {
	case o.graph != nil:
		modules = append(modules, fx.Provide(func() pkgif.Graph { return o.graph }))
	case len(o.relayEndpoints) > 0:
		c.ownsGraph = true
		modules = append(modules,
			fx.Provide(func(clk clock.Clock) (pkgif.Graph, error) {
				gopts := append([]wiregraph.Option{wiregraph.WithClock(clk)}, o.graphOptions...)
				return wiregraph.New(o.relayEndpoints, gopts...)
			}),
			fx.Invoke(closeGraphOnStop),
		)
	default:
		c.ownsGraph = true
		modules = append(modules,
			fx.Provide(func(clk clock.Clock) pkgif.Graph {
				return memgraph.New(memgraph.WithClock(clk))
			}),
			fx.Invoke(closeGraphOnStop),
		)
	}

	// ════════════════════════════════════════════════════════════════════════
	// 3. 协作方（条件加载）
	// ════════════════════════════════════════════════════════════════════════
	if o.moderation != nil {
		modules = append(modules, fx.Provide(func() pkgif.Moderation { return o.moderation }))
	}
	if o.audit != nil {
		modules = append(modules, fx.Provide(func() pkgif.AuditLog { return o.audit }))
	}
	if o.media != nil {
		modules = append(modules, fx.Provide(func() pkgif.MediaProvider { return o.media }))
	}

	// ════════════════════════════════════════════════════════════════════════
	// 4. 协议透传选项（分组注入）
	// ════════════════════════════════════════════════════════════════════════
	for _, opt := range o.channelOptions {
		modules = append(modules, groupValue("channelOptions", opt))
	}
	for _, opt := range o.presenceOptions {
		modules = append(modules, groupValue("presenceOptions", opt))
	}
	for _, opt := range o.dmOptions {
		modules = append(modules, groupValue("dmOptions", opt))
	}
	for _, opt := range o.voiceOptions {
		modules = append(modules, groupValue("voiceOptions", opt))
	}
	for _, opt := range o.monitorOptions {
		modules = append(modules, groupValue("monitorOptions", opt))
	}

	// ════════════════════════════════════════════════════════════════════════
	// 5. 核心与协议模块
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules,
		identity.Module(),
		metrics.Module(),
		channel.Module(),
		presence.Module(),
		dm.Module(),
		voice.Module(),
		monitor.Module(),
	)

	// ════════════════════════════════════════════════════════════════════════
	// 6. 扩展模块与组件回填
	// ════════════════════════════════════════════════════════════════════════
	if len(o.userFxOptions) > 0 {
		modules = append(modules, o.userFxOptions...)
	}

	modules = append(modules,
		fx.Populate(
			&c.graph,
			&c.identity,
			&c.channels,
			&c.presence,
			&c.dms,
			&c.voice,
			&c.monitor,
		),

		// 禁用 Fx 日志输出（避免干扰用户日志）
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: zap.NewNop()}
		}),
		fx.NopLogger,
	)

	return fx.New(modules...)
}

// groupValue 把单个协议选项注入指定分组
func groupValue[T any](group string, opt T) fx.Option {
	return fx.Provide(fx.Annotated{
		Group:  group,
		Target: func() T { return opt },
	})
}

// closeGraphOnStop 自建的图随应用关闭
func closeGraphOnStop(lc fx.Lifecycle, g pkgif.Graph) {
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return g.Close() },
	})
}
