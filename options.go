package dechat

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dechat/go-dechat/internal/core/monitor"
	"github.com/dechat/go-dechat/internal/graph/wiregraph"
	"github.com/dechat/go-dechat/internal/protocol/channel"
	"github.com/dechat/go-dechat/internal/protocol/dm"
	"github.com/dechat/go-dechat/internal/protocol/presence"
	"github.com/dechat/go-dechat/internal/protocol/voice"
	"github.com/dechat/go-dechat/pkg/interfaces"
)

// Option 用户配置选项函数
type Option func(*options) error

// options 内部选项结构
type options struct {
	// 身份配置
	identitySeed []byte

	// 复制图配置
	graph          interfaces.Graph
	relayEndpoints []string
	graphOptions   []wiregraph.Option

	// 协作方
	moderation interfaces.Moderation
	audit      interfaces.AuditLog
	resolver   interfaces.ContentResolver
	media      interfaces.MediaProvider

	// 观测配置
	registerer prometheus.Registerer

	// 时钟（测试用）
	clock clock.Clock

	// 各协议透传选项
	channelOptions  []channel.Option
	presenceOptions []presence.Option
	dmOptions       []dm.Option
	voiceOptions    []voice.Option
	monitorOptions  []monitor.Option

	// 扩展 Fx 选项
	userFxOptions []fx.Option
}

// defaultOptions 返回默认选项
func defaultOptions() *options {
	return &options{}
}

// apply 应用全部选项
func (o *options) apply(opts ...Option) error {
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return err
		}
	}
	return nil
}

// ════════════════════════════════════════════════════════════════════════════
//                              身份与图
// ════════════════════════════════════════════════════════════════════════════

// WithIdentitySeed 以固定种子派生身份（32 字节）
//
// 不设置时每次启动生成新身份。
func WithIdentitySeed(seed []byte) Option {
	return func(o *options) error {
		if len(seed) != ed25519.SeedSize {
			return fmt.Errorf("identity seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
		}
		o.identitySeed = append([]byte(nil), seed...)
		return nil
	}
}

// WithRelayEndpoints 设置复制图中继端点（websocket URL）
//
// 多个端点按序轮转重连。不设置且未注入自定义图时，
// 使用进程内图（单进程场景）。
func WithRelayEndpoints(endpoints ...string) Option {
	return func(o *options) error {
		if len(endpoints) == 0 {
			return errors.New("at least one relay endpoint required")
		}
		o.relayEndpoints = append([]string(nil), endpoints...)
		return nil
	}
}

// WithGraph 注入自定义复制图实现（测试或嵌入场景）
func WithGraph(g interfaces.Graph) Option {
	return func(o *options) error {
		if g == nil {
			return errors.New("graph must not be nil")
		}
		o.graph = g
		return nil
	}
}

// WithGraphAckTimeout 设置图写入确认超时
func WithGraphAckTimeout(d time.Duration) Option {
	return func(o *options) error {
		o.graphOptions = append(o.graphOptions, wiregraph.WithAckTimeout(d))
		return nil
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              协作方
// ════════════════════════════════════════════════════════════════════════════

// WithModeration 注入社区权限协作方（管理者删除消息需要）
func WithModeration(m interfaces.Moderation) Option {
	return func(o *options) error {
		o.moderation = m
		return nil
	}
}

// WithAuditLog 注入审计协作方
func WithAuditLog(a interfaces.AuditLog) Option {
	return func(o *options) error {
		o.audit = a
		return nil
	}
}

// WithContentResolver 注入内容寻址存储协作方
//
// 核心只携带附件的内容 ID，字节取回交给协作方。
func WithContentResolver(r interfaces.ContentResolver) Option {
	return func(o *options) error {
		o.resolver = r
		return nil
	}
}

// WithMediaProvider 注入媒体设备协作方（语音出声需要）
func WithMediaProvider(m interfaces.MediaProvider) Option {
	return func(o *options) error {
		o.media = m
		return nil
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              协议调优
// ════════════════════════════════════════════════════════════════════════════

// WithThrottleInterval 设置订阅节流间隔（默认 16ms，一帧）
func WithThrottleInterval(d time.Duration) Option {
	return func(o *options) error {
		o.channelOptions = append(o.channelOptions, channel.WithThrottleInterval(d))
		return nil
	}
}

// WithPresenceHeartbeat 设置在场心跳间隔
func WithPresenceHeartbeat(d time.Duration) Option {
	return func(o *options) error {
		o.presenceOptions = append(o.presenceOptions, presence.WithHeartbeatInterval(d))
		return nil
	}
}

// WithMeshCapacity 设置语音网状拓扑容量上限（默认 8）
func WithMeshCapacity(n int) Option {
	return func(o *options) error {
		if n <= 0 {
			return fmt.Errorf("mesh capacity must be positive, got %d", n)
		}
		o.voiceOptions = append(o.voiceOptions, voice.WithMeshCapacity(n))
		return nil
	}
}

// WithVoiceRelay 设置语音中继（SFU）端点与令牌
func WithVoiceRelay(endpoint, token string) Option {
	return func(o *options) error {
		if endpoint == "" {
			return errors.New("voice relay endpoint must not be empty")
		}
		o.voiceOptions = append(o.voiceOptions, voice.WithRelay(endpoint, token))
		return nil
	}
}

// WithMonitorProbeInterval 设置连通性探测间隔
func WithMonitorProbeInterval(d time.Duration) Option {
	return func(o *options) error {
		o.monitorOptions = append(o.monitorOptions, monitor.WithProbeInterval(d))
		return nil
	}
}

// WithDMReadTimeout 设置私信密钥交换读取超时
func WithDMReadTimeout(d time.Duration) Option {
	return func(o *options) error {
		o.dmOptions = append(o.dmOptions, dm.WithReadTimeout(d))
		return nil
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              观测与扩展
// ════════════════════════════════════════════════════════════════════════════

// WithMetricsRegisterer 注入 Prometheus 注册器；不设置时指标不暴露
func WithMetricsRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) error {
		o.registerer = reg
		return nil
	}
}

// WithClock 注入时钟（测试用）
func WithClock(clk clock.Clock) Option {
	return func(o *options) error {
		if clk == nil {
			return errors.New("clock must not be nil")
		}
		o.clock = clk
		return nil
	}
}

// WithFxOptions 追加用户自定义 Fx 选项（扩展模块）
func WithFxOptions(opts ...fx.Option) Option {
	return func(o *options) error {
		o.userFxOptions = append(o.userFxOptions, opts...)
		return nil
	}
}
