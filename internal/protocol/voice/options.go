package voice

import (
	"time"

	"github.com/pion/webrtc/v4"
)

// Option 定义配置选项函数
type Option func(*Config)

// Config 语音协议配置
type Config struct {
	// MeshCapacity 网状拓扑容量上限（达到即尝试中继）
	MeshCapacity int

	// HeartbeatInterval 参与者心跳周期
	HeartbeatInterval time.Duration

	// StaleBound 心跳超过该时限视为已离开
	StaleBound time.Duration

	// RescanInterval 名册补偿扫描周期（订阅是至少一次而非保证送达）
	RescanInterval time.Duration

	// ScanTimeout 全量扫描时限
	ScanTimeout time.Duration

	// SpeakingThresholdDB 发言判定阈值（dBFS）
	SpeakingThresholdDB float64

	// SpeakingHold 发言下降沿保持时间
	SpeakingHold time.Duration

	// RelayEndpoint 选择性转发服务端点（空表示未配置）
	RelayEndpoint string

	// RelayToken 中继加入令牌
	RelayToken string

	// ICEServers ICE 服务器列表
	ICEServers []webrtc.ICEServer
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		MeshCapacity:        8,
		HeartbeatInterval:   10 * time.Second,
		StaleBound:          30 * time.Second,
		RescanInterval:      15 * time.Second,
		ScanTimeout:         3 * time.Second,
		SpeakingThresholdDB: -50,
		SpeakingHold:        300 * time.Millisecond,
		ICEServers: []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		},
	}
}

// WithMeshCapacity 设置网状容量上限
func WithMeshCapacity(capacity int) Option {
	return func(c *Config) {
		c.MeshCapacity = capacity
	}
}

// WithHeartbeatInterval 设置心跳周期
func WithHeartbeatInterval(interval time.Duration) Option {
	return func(c *Config) {
		c.HeartbeatInterval = interval
	}
}

// WithStaleBound 设置心跳超限时限
func WithStaleBound(bound time.Duration) Option {
	return func(c *Config) {
		c.StaleBound = bound
	}
}

// WithRescanInterval 设置补偿扫描周期
func WithRescanInterval(interval time.Duration) Option {
	return func(c *Config) {
		c.RescanInterval = interval
	}
}

// WithRelay 设置中继端点与令牌
func WithRelay(endpoint, token string) Option {
	return func(c *Config) {
		c.RelayEndpoint = endpoint
		c.RelayToken = token
	}
}

// WithSpeakingThreshold 设置发言判定阈值
func WithSpeakingThreshold(db float64) Option {
	return func(c *Config) {
		c.SpeakingThresholdDB = db
	}
}

// WithSpeakingHold 设置发言保持时间
func WithSpeakingHold(hold time.Duration) Option {
	return func(c *Config) {
		c.SpeakingHold = hold
	}
}

// WithICEServers 设置 ICE 服务器
func WithICEServers(servers []webrtc.ICEServer) Option {
	return func(c *Config) {
		c.ICEServers = servers
	}
}
