package wiregraph

import (
	"time"

	"github.com/benbjohnson/clock"
)

// ============================================================================
// 配置选项
// ============================================================================

// Config 定义配置
type Config struct {
	// DialTimeout 单次拨号握手超时
	DialTimeout time.Duration

	// AckTimeout 等待写入确认的兜底超时（ctx 更紧时以 ctx 为准）
	AckTimeout time.Duration

	// BackoffMin 重连退避起点
	BackoffMin time.Duration

	// BackoffMax 重连退避上限
	BackoffMax time.Duration

	// QueueLimit 断线期间待发队列的容量上限
	QueueLimit int

	// Clock 时钟（测试用）
	Clock clock.Clock
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		DialTimeout: 10 * time.Second,
		AckTimeout:  5 * time.Second,
		BackoffMin:  500 * time.Millisecond,
		BackoffMax:  15 * time.Second,
		QueueLimit:  4096,
		Clock:       clock.New(),
	}
}

// Option 定义配置选项函数
type Option func(*Config)

// WithDialTimeout 设置拨号握手超时
func WithDialTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.DialTimeout = d
	}
}

// WithAckTimeout 设置写入确认兜底超时
func WithAckTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.AckTimeout = d
	}
}

// WithBackoff 设置重连退避区间
func WithBackoff(min, max time.Duration) Option {
	return func(c *Config) {
		c.BackoffMin = min
		c.BackoffMax = max
	}
}

// WithQueueLimit 设置待发队列容量上限
func WithQueueLimit(n int) Option {
	return func(c *Config) {
		c.QueueLimit = n
	}
}

// WithClock 注入时钟（测试用）
func WithClock(clk clock.Clock) Option {
	return func(c *Config) {
		c.Clock = clk
	}
}
