package channel

import "time"

// Option 定义配置选项函数
type Option func(*Config)

// Config 频道消息协议配置
type Config struct {
	// ThrottleInterval 消息订阅冲刷节拍
	ThrottleInterval time.Duration

	// ReactionDebounce 反应重建去抖窗口
	ReactionDebounce time.Duration

	// ScanTimeout 历史/反应全量扫描时限
	ScanTimeout time.Duration

	// SeenCacheSize 已见状态缓存容量（按消息 ID）
	SeenCacheSize int
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		ThrottleInterval: 16 * time.Millisecond,
		ReactionDebounce: 150 * time.Millisecond,
		ScanTimeout:      3 * time.Second,
		SeenCacheSize:    4096,
	}
}

// WithThrottleInterval 设置冲刷节拍
func WithThrottleInterval(interval time.Duration) Option {
	return func(c *Config) {
		c.ThrottleInterval = interval
	}
}

// WithReactionDebounce 设置反应去抖窗口
func WithReactionDebounce(debounce time.Duration) Option {
	return func(c *Config) {
		c.ReactionDebounce = debounce
	}
}

// WithScanTimeout 设置扫描时限
func WithScanTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.ScanTimeout = timeout
	}
}

// WithSeenCacheSize 设置已见缓存容量
func WithSeenCacheSize(size int) Option {
	return func(c *Config) {
		c.SeenCacheSize = size
	}
}
