package identity

import (
	"go.uber.org/fx"

	pkgif "github.com/dechat/go-dechat/pkg/interfaces"
)

// ============================================================================
// Fx 模块
// ============================================================================

// Result Fx 模块输出结果
type Result struct {
	fx.Out

	Identity pkgif.Identity
}

// Params Fx 模块输入参数
type Params struct {
	fx.In

	// Seed 身份种子；为空时生成新身份
	Seed []byte `name:"identitySeed" optional:"true"`
}

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("identity",
		fx.Provide(ProvideIdentity),
	)
}

// ProvideIdentity 提供 Identity 实例
func ProvideIdentity(p Params) (Result, error) {
	var (
		id  *Identity
		err error
	)
	if len(p.Seed) > 0 {
		id, err = FromSeed(p.Seed)
	} else {
		id, err = Generate()
	}
	if err != nil {
		return Result{}, err
	}
	return Result{Identity: id}, nil
}
