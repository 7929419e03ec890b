package presence

import "time"

// Option 定义配置选项函数
type Option func(*Config)

// Config 在线状态协议配置
type Config struct {
	// HeartbeatInterval 心跳重写周期
	HeartbeatInterval time.Duration

	// OfflineThreshold 心跳超过该时限视为离线
	OfflineThreshold time.Duration

	// TypingExpiry 输入记录过期时限
	TypingExpiry time.Duration

	// SweepInterval 订阅端过期补偿扫描周期
	SweepInterval time.Duration
}

// DefaultConfig 返回默认配置
//
// 离线阈值必须显著大于心跳周期，容忍数次心跳丢失。
func DefaultConfig() *Config {
	return &Config{
		HeartbeatInterval: 20 * time.Second,
		OfflineThreshold:  45 * time.Second,
		TypingExpiry:      6 * time.Second,
		SweepInterval:     5 * time.Second,
	}
}

// WithHeartbeatInterval 设置心跳周期
func WithHeartbeatInterval(interval time.Duration) Option {
	return func(c *Config) {
		c.HeartbeatInterval = interval
	}
}

// WithOfflineThreshold 设置离线阈值
func WithOfflineThreshold(threshold time.Duration) Option {
	return func(c *Config) {
		c.OfflineThreshold = threshold
	}
}

// WithTypingExpiry 设置输入过期时限
func WithTypingExpiry(expiry time.Duration) Option {
	return func(c *Config) {
		c.TypingExpiry = expiry
	}
}

// WithSweepInterval 设置补偿扫描周期
func WithSweepInterval(interval time.Duration) Option {
	return func(c *Config) {
		c.SweepInterval = interval
	}
}
