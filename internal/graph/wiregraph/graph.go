package wiregraph

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/dechat/go-dechat/internal/graph/memgraph"
	"github.com/dechat/go-dechat/internal/graph/wire"
	"github.com/dechat/go-dechat/pkg/interfaces"
	"github.com/dechat/go-dechat/pkg/lib/log"
	"github.com/dechat/go-dechat/pkg/types"
)

var logger = log.Logger("graph/wiregraph")

// ============================================================================
// 复制图客户端
// ============================================================================

// Graph 经中继同步的复制图客户端
//
// 本地 memgraph 副本承担全部读与订阅；写入先乐观合并进本地，
// 再发往中继扇出。断线时写入排队，重连后按序补发。
type Graph struct {
	local     *memgraph.Graph
	endpoints []string
	clock     clock.Clock
	config    *Config

	mu     sync.Mutex
	conn   *websocket.Conn
	queue  []wire.Frame
	acks   map[string]chan error
	closed bool

	done chan struct{}
}

// 确保 Graph 实现了 interfaces.Graph 接口
var _ interfaces.Graph = (*Graph)(nil)

// New 创建复制图客户端并启动重连循环
func New(endpoints []string, opts ...Option) (*Graph, error) {
	if len(endpoints) == 0 {
		return nil, ErrNoEndpoints
	}

	config := DefaultConfig()
	for _, opt := range opts {
		opt(config)
	}

	g := &Graph{
		local:     memgraph.New(memgraph.WithClock(config.Clock)),
		endpoints: endpoints,
		clock:     config.Clock,
		config:    config,
		acks:      make(map[string]chan error),
		done:      make(chan struct{}),
	}
	go g.run()
	return g, nil
}

// Put 写入叶子值
//
// 本地合并立即生效，网络送达是最终一致的。
func (g *Graph) Put(_ context.Context, path types.Path, value []byte) error {
	if err := path.Validate(); err != nil {
		return err
	}

	state := g.clock.Now().UnixMilli()
	if err := g.local.ApplyRemote(path, value, state); err != nil {
		return err
	}
	return g.send(wire.Frame{Op: wire.OpPut, ID: uuid.NewString(), Path: path.String(), Value: value, State: state})
}

// PutAck 写入叶子值并等待中继确认
func (g *Graph) PutAck(ctx context.Context, path types.Path, value []byte) error {
	if err := path.Validate(); err != nil {
		return err
	}

	state := g.clock.Now().UnixMilli()
	if err := g.local.ApplyRemote(path, value, state); err != nil {
		return err
	}

	id := uuid.NewString()
	ch := make(chan error, 1)

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return interfaces.ErrClosed
	}
	g.acks[id] = ch
	g.mu.Unlock()

	if err := g.send(wire.Frame{Op: wire.OpPut, ID: id, Path: path.String(), Value: value, State: state, Ack: true}); err != nil {
		g.dropAck(id)
		return err
	}

	timer := g.clock.Timer(g.config.AckTimeout)
	defer timer.Stop()

	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		g.dropAck(id)
		return interfaces.ErrTimeout
	case <-timer.C:
		g.dropAck(id)
		return interfaces.ErrTimeout
	case <-g.done:
		return interfaces.ErrClosed
	}
}

// Get 读取一次；本地未收敛时在 ctx 期限内等待该叶子出现
func (g *Graph) Get(ctx context.Context, path types.Path) ([]byte, error) {
	if err := path.Validate(); err != nil {
		return nil, err
	}

	value, err := g.local.Get(ctx, path)
	if err == nil {
		return value, nil
	}
	if !errors.Is(err, interfaces.ErrNotFound) {
		return nil, err
	}

	// 订阅精确路径等收敛，与 ctx 赛跑
	key := path.String()
	arrived := make(chan []byte, 1)
	cancel, err := g.local.Subscribe(path, func(u interfaces.GraphUpdate) {
		if u.Path.String() != key {
			return
		}
		select {
		case arrived <- u.Value:
		default:
		}
	})
	if err != nil {
		return nil, err
	}
	defer cancel()

	select {
	case value := <-arrived:
		return value, nil
	case <-ctx.Done():
		return nil, interfaces.ErrNotFound
	case <-g.done:
		return nil, interfaces.ErrClosed
	}
}

// Scan 枚举前缀下本地已收敛的所有叶子
func (g *Graph) Scan(ctx context.Context, prefix types.Path, fn func(path types.Path, value []byte) bool) error {
	return g.local.Scan(ctx, prefix, fn)
}

// Subscribe 订阅前缀下的收敛更新（本地写与远端写一视同仁）
func (g *Graph) Subscribe(prefix types.Path, handler interfaces.UpdateHandler) (interfaces.CancelFunc, error) {
	return g.local.Subscribe(prefix, handler)
}

// Close 关闭客户端；未决的确认等待以 ErrClosed 结束
func (g *Graph) Close() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	close(g.done)
	conn := g.conn
	g.conn = nil
	for id, ch := range g.acks {
		delete(g.acks, id)
		ch <- interfaces.ErrClosed
	}
	g.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	return g.local.Close()
}

// ============================================================================
// 发送路径
// ============================================================================

// send 发送一帧；断线时入队等待重连补发
func (g *Graph) send(f wire.Frame) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return interfaces.ErrClosed
	}
	if g.conn == nil {
		if len(g.queue) >= g.config.QueueLimit {
			return ErrQueueFull
		}
		g.queue = append(g.queue, f)
		return nil
	}
	if err := g.conn.WriteJSON(f); err != nil {
		// 写失败交给读循环触发重连，本帧转入队列
		logger.Warn("发送失败，帧转入待发队列", "path", f.Path, "err", err)
		g.queue = append(g.queue, f)
	}
	return nil
}

// dropAck 放弃一个确认等待
func (g *Graph) dropAck(id string) {
	g.mu.Lock()
	delete(g.acks, id)
	g.mu.Unlock()
}

// resolveAck 路由中继回执到等待方
func (g *Graph) resolveAck(id string, err error) {
	g.mu.Lock()
	ch, ok := g.acks[id]
	if ok {
		delete(g.acks, id)
	}
	g.mu.Unlock()

	if ok {
		ch <- err
	}
}

// ============================================================================
// 连接维护
// ============================================================================

// run 拨号与重连循环，随 Close 退出
func (g *Graph) run() {
	backoff := g.config.BackoffMin
	for attempt := 0; ; attempt++ {
		select {
		case <-g.done:
			return
		default:
		}

		endpoint := g.endpoints[attempt%len(g.endpoints)]
		conn, err := g.dial(endpoint)
		if err != nil {
			logger.Warn("中继拨号失败", "endpoint", endpoint, "err", err)
			if !g.sleep(backoff) {
				return
			}
			backoff = min(backoff*2, g.config.BackoffMax)
			continue
		}

		backoff = g.config.BackoffMin
		if !g.attach(conn) {
			return
		}
		logger.Info("已连接中继", "endpoint", endpoint)

		g.readLoop(conn)
		g.detach(conn)

		if !g.sleep(g.config.BackoffMin) {
			return
		}
	}
}

// dial 拨号单个端点
func (g *Graph) dial(endpoint string) (*websocket.Conn, error) {
	ctx, cancel := context.WithTimeout(context.Background(), g.config.DialTimeout)
	defer cancel()

	dialer := websocket.Dialer{HandshakeTimeout: g.config.DialTimeout}
	conn, resp, err := dialer.DialContext(ctx, endpoint, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// attach 挂接新连接：发 hello 取快照，补发断线期间积压的帧
func (g *Graph) attach(conn *websocket.Conn) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		_ = conn.Close()
		return false
	}
	g.conn = conn

	if err := conn.WriteJSON(wire.Frame{Op: wire.OpHello}); err != nil {
		return true
	}
	pending := g.queue
	g.queue = nil
	for i, f := range pending {
		if err := conn.WriteJSON(f); err != nil {
			// 剩余帧留到下次重连
			g.queue = append(g.queue, pending[i:]...)
			break
		}
	}
	return true
}

// detach 摘除断开的连接
func (g *Graph) detach(conn *websocket.Conn) {
	g.mu.Lock()
	if g.conn == conn {
		g.conn = nil
	}
	g.mu.Unlock()
	_ = conn.Close()
}

// readLoop 读取中继帧直至连接断开
func (g *Graph) readLoop(conn *websocket.Conn) {
	for {
		var f wire.Frame
		if err := conn.ReadJSON(&f); err != nil {
			g.mu.Lock()
			closed := g.closed
			g.mu.Unlock()
			if !closed {
				logger.Warn("中继连接中断", "err", err)
			}
			return
		}

		switch f.Op {
		case wire.OpUpdate:
			path, err := types.ParsePath(f.Path)
			if err != nil {
				logger.Warn("丢弃路径非法的更新帧", "path", f.Path, "err", err)
				continue
			}
			if err := g.local.ApplyRemote(path, f.Value, f.State); err != nil {
				logger.Warn("合并远端更新失败", "path", f.Path, "err", err)
			}
		case wire.OpAck:
			var ackErr error
			if f.Error != "" {
				ackErr = errors.New(f.Error)
			}
			g.resolveAck(f.ID, ackErr)
		}
	}
}

// sleep 可被 Close 打断的等待；返回 false 表示已关闭
func (g *Graph) sleep(d time.Duration) bool {
	timer := g.clock.Timer(d)
	defer timer.Stop()

	select {
	case <-g.done:
		return false
	case <-timer.C:
		return true
	}
}
