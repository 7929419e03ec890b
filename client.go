package dechat

import (
	"context"
	"sync"
	"time"

	"go.uber.org/fx"

	"github.com/dechat/go-dechat/pkg/interfaces"
	"github.com/dechat/go-dechat/pkg/lib/log"
)

var logger = log.Logger("dechat")

// 默认关闭超时
const defaultStopTimeout = 15 * time.Second

// Client 实时传输核心的主入口
//
// 所有协议服务共享同一身份与同一张复制图。
// 并发安全：所有方法可从任意 goroutine 调用。
type Client struct {
	app       *fx.App
	resolver  interfaces.ContentResolver
	ownsGraph bool

	graph    interfaces.Graph
	identity interfaces.Identity
	channels interfaces.ChannelMessaging
	presence interfaces.Presence
	dms      interfaces.DMMessaging
	voice    interfaces.Voice
	monitor  interfaces.ConnectionMonitor

	mu      sync.Mutex
	started bool
	closed  bool
}

// New 创建客户端（未启动）
func New(opts ...Option) (*Client, error) {
	o := defaultOptions()
	if err := o.apply(opts...); err != nil {
		return nil, err
	}

	c := &Client{resolver: o.resolver}
	c.app = buildFxApp(o, c)
	if err := c.app.Err(); err != nil {
		return nil, err
	}
	return c, nil
}

// Start 启动客户端：发布交换密钥、起心跳与探测循环
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClientClosed
	}
	if c.started {
		return ErrAlreadyStarted
	}
	if err := c.app.Start(ctx); err != nil {
		return err
	}
	c.started = true
	logger.Info("客户端已启动", "key", log.TruncateID(c.identity.PublicKey(), 8))
	return nil
}

// Close 关闭客户端并释放所有资源；可重复调用
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if !c.started {
		// 未启动时生命周期钩子不会运行，自建的图需手动关闭
		if c.ownsGraph && c.graph != nil {
			return c.graph.Close()
		}
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultStopTimeout)
	defer cancel()
	if err := c.app.Stop(ctx); err != nil {
		return err
	}
	logger.Info("客户端已关闭")
	return nil
}

// Start 创建并启动客户端（便捷入口）
func Start(ctx context.Context, opts ...Option) (*Client, error) {
	c, err := New(opts...)
	if err != nil {
		return nil, err
	}
	if err := c.Start(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// ════════════════════════════════════════════════════════════════════════════
//                              服务访问
// ════════════════════════════════════════════════════════════════════════════

// Channels 返回频道消息服务
func (c *Client) Channels() interfaces.ChannelMessaging { return c.channels }

// Presence 返回在场服务
func (c *Client) Presence() interfaces.Presence { return c.presence }

// DMs 返回私信服务
func (c *Client) DMs() interfaces.DMMessaging { return c.dms }

// Voice 返回语音服务
func (c *Client) Voice() interfaces.Voice { return c.voice }

// Monitor 返回连通性监视器
func (c *Client) Monitor() interfaces.ConnectionMonitor { return c.monitor }

// Identity 返回本地身份
func (c *Client) Identity() interfaces.Identity { return c.identity }

// Graph 返回底层复制图（高级用法）
func (c *Client) Graph() interfaces.Graph { return c.graph }

// Resolver 返回内容寻址存储协作方；未注入时为 nil
func (c *Client) Resolver() interfaces.ContentResolver { return c.resolver }
