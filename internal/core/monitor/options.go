package monitor

import "time"

// Option 定义配置选项函数
type Option func(*Config)

// Config 监视器配置
type Config struct {
	// ProbeInterval 探测周期
	ProbeInterval time.Duration

	// ProbeTimeout 单次探测时限，超时计为失败
	ProbeTimeout time.Duration

	// DegradedRTT 往返时延超过该值视为退化
	DegradedRTT time.Duration

	// FailThreshold 连续失败达到该次数视为断开
	FailThreshold int
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		ProbeInterval: 10 * time.Second,
		ProbeTimeout:  5 * time.Second,
		DegradedRTT:   2 * time.Second,
		FailThreshold: 3,
	}
}

// WithProbeInterval 设置探测周期
func WithProbeInterval(interval time.Duration) Option {
	return func(c *Config) {
		c.ProbeInterval = interval
	}
}

// WithProbeTimeout 设置探测时限
func WithProbeTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.ProbeTimeout = timeout
	}
}

// WithDegradedRTT 设置退化时延阈值
func WithDegradedRTT(rtt time.Duration) Option {
	return func(c *Config) {
		c.DegradedRTT = rtt
	}
}

// WithFailThreshold 设置断开失败阈值
func WithFailThreshold(n int) Option {
	return func(c *Config) {
		c.FailThreshold = n
	}
}
