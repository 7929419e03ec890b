package voice

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

	Graph    pkgif.Graph
	Identity pkgif.Identity
	Media    pkgif.MediaProvider `optional:"true"`
	Metrics  *metrics.Metrics    `optional:"true"`
	Clock    clock.Clock         `optional:"true"`
	Options  []Option            `group:"voiceOptions"`
}

// Result Fx 模块输出结果
type Result struct {
	fx.Out

	Voice pkgif.Voice
}

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("protocol/voice",
		fx.Provide(ProvideManager),
	)
}

// ProvideManager 提供语音管理器
func ProvideManager(p Params) (Result, error) {
	m, err := NewManager(Dep{
		Graph:    p.Graph,
		Identity: p.Identity,
		Media:    p.Media,
		Metrics:  p.Metrics,
		Clock:    p.Clock,
	}, p.Options...)
	if err != nil {
		return Result{}, err
	}
	return Result{Voice: m}, nil
}
