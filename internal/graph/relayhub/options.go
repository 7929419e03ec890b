package relayhub

import "time"

// ============================================================================
// 配置选项
// ============================================================================

// Config 定义配置
type Config struct {
	// MaxFrameSize 单帧字节上限
	MaxFrameSize int64

	// WriteTimeout 单帧写超时；慢客户端超时即被摘除
	WriteTimeout time.Duration
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		MaxFrameSize: 1 << 20,
		WriteTimeout: 10 * time.Second,
	}
}

// Option 定义配置选项函数
type Option func(*Config)

// WithMaxFrameSize 设置单帧字节上限
func WithMaxFrameSize(n int64) Option {
	return func(c *Config) {
		c.MaxFrameSize = n
	}
}

// WithWriteTimeout 设置单帧写超时
func WithWriteTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.WriteTimeout = d
	}
}
