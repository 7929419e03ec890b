package voice

import (
	"context"

	"github.com/benbjohnson/clock"

	"github.com/dechat/go-dechat/internal/core/metrics"
	"github.com/dechat/go-dechat/pkg/interfaces"
	"github.com/dechat/go-dechat/pkg/lib/log"
	"github.com/dechat/go-dechat/pkg/types"
)

var logger = log.Logger("protocol/voice")

// Manager 实现 Voice 接口
type Manager struct {
	graph    interfaces.Graph
	identity interfaces.Identity
	media    interfaces.MediaProvider
	metrics  *metrics.Metrics
	clock    clock.Clock
	config   *Config
}

// 确保 Manager 实现了 interfaces.Voice 接口
var _ interfaces.Voice = (*Manager)(nil)

// Dep 管理器依赖
type Dep struct {
	// Graph 复制图客户端（必须）
	Graph interfaces.Graph

	// Identity 本地身份（必须）
	Identity interfaces.Identity

	// Media 媒体设备协作方；nil 时只维护名册与信令，不出声
	Media interfaces.MediaProvider

	// Metrics 指标；nil 时不暴露
	Metrics *metrics.Metrics

	// Clock 时钟；nil 时使用真实时钟
	Clock clock.Clock
}

// NewManager 创建语音管理器
func NewManager(dep Dep, opts ...Option) (*Manager, error) {
	if dep.Graph == nil {
		return nil, ErrNilGraph
	}
	if dep.Identity == nil {
		return nil, ErrNilIdentity
	}

	config := DefaultConfig()
	for _, opt := range opts {
		opt(config)
	}
	if dep.Metrics == nil {
		dep.Metrics = metrics.Nop()
	}
	if dep.Clock == nil {
		dep.Clock = clock.New()
	}

	return &Manager{
		graph:    dep.Graph,
		identity: dep.Identity,
		media:    dep.Media,
		metrics:  dep.Metrics,
		clock:    dep.Clock,
		config:   config,
	}, nil
}

// liveCount 统计频道当前存活参与者数
func (m *Manager) liveCount(ctx context.Context, channelID string) (int, error) {
	scanCtx, cancel := context.WithTimeout(ctx, m.config.ScanTimeout)
	defer cancel()

	now := m.clock.Now()
	count := 0
	err := m.graph.Scan(scanCtx, types.VoiceParticipantsPath(channelID), func(_ types.Path, value []byte) bool {
		p, err := types.DecodeVoiceParticipant(value)
		if err == nil && p.Live(now, m.config.StaleBound) {
			count++
		}
		return true
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// selectTier 按参与者数与中继可用性选择层级
//
// 达到网状容量但中继未配置时仍回退网状：通话继续，发容量告警。
func (m *Manager) selectTier(count int) (tier types.Tier, fallback bool) {
	if count < m.config.MeshCapacity {
		return types.TierMesh, false
	}
	if m.config.RelayEndpoint != "" {
		return types.TierRelay, false
	}
	return types.TierMesh, true
}

// Join 加入频道通话
func (m *Manager) Join(ctx context.Context, channelID string) (interfaces.Call, error) {
	if channelID == "" {
		return nil, ErrEmptyChannelID
	}

	count, err := m.liveCount(ctx, channelID)
	if err != nil {
		return nil, err
	}
	tier, fallback := m.selectTier(count)

	c := newCall(channelID, tier, m.graph, m.identity, m.metrics, m.clock, m.config)
	switch tier {
	case types.TierRelay:
		c.engine = newRelayEngine(c, m.media)
	default:
		c.engine = newMeshEngine(c, m.media)
	}

	if err := c.start(ctx); err != nil {
		// 启动失败不留半开资源
		_ = c.engine.close()
		return nil, err
	}

	if fallback {
		logger.Warn("超出网状容量且无中继可用，回退网状",
			"channel", channelID, "participants", count, "capacity", m.config.MeshCapacity)
		c.emit(interfaces.CallEvent{Type: interfaces.CallEventCapacityFallback, Tier: tier})
	}

	logger.Info("已加入通话", "channel", channelID, "tier", string(tier), "participants", count)
	return c, nil
}
