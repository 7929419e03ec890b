package dm

import "time"

// Option 定义配置选项函数
type Option func(*Config)

// Config 私信协议配置
type Config struct {
	// ReadTimeout 单点读取时限（交换公钥、会话元数据）
	ReadTimeout time.Duration

	// ScanTimeout 历史/会话列表全量扫描时限
	ScanTimeout time.Duration
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		ReadTimeout: 3 * time.Second,
		ScanTimeout: 3 * time.Second,
	}
}

// WithReadTimeout 设置读取时限
func WithReadTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.ReadTimeout = timeout
	}
}

// WithScanTimeout 设置扫描时限
func WithScanTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.ScanTimeout = timeout
	}
}
