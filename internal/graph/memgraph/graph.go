// Package memgraph 实现进程内的复制图
//
// 以叶子级 last-write-wins 收敛的路径寻址键值图，带前缀订阅。
// 既用作测试基底，也作为 wiregraph 的本地副本：远端增量经
// ApplyRemote 合并进来，订阅方对本地写与远端写一视同仁。
//
// 订阅语义刻意保留基底的"收敛抖动"：同一逻辑值可能被推送多次
// （包括订阅时对既有叶子的回放），上层协议必须自行幂等合并。
package memgraph

import (
	"context"
	"sort"
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/dechat/go-dechat/pkg/interfaces"
	"github.com/dechat/go-dechat/pkg/lib/log"
	"github.com/dechat/go-dechat/pkg/types"
)

var logger = log.Logger("graph/memgraph")

// 订阅通道容量；满时丢弃并记录（与事件总线相同的非阻塞策略）
const subscriptionBuffer = 256

// leaf 单个叶子：值 + 状态时间戳（LWW 比较键）
type leaf struct {
	value []byte
	state int64
}

// subscription 一个前缀订阅
type subscription struct {
	prefix  types.Path
	ch      chan interfaces.GraphUpdate
	done    chan struct{}
	handler interfaces.UpdateHandler
}

// Graph 进程内复制图
type Graph struct {
	mu     sync.RWMutex
	leaves map[string]*leaf
	subs   map[int]*subscription
	nextID int
	closed bool

	clock clock.Clock
}

// 确保 Graph 实现了 interfaces.Graph 接口
var _ interfaces.Graph = (*Graph)(nil)

// Option 定义配置选项函数
type Option func(*Graph)

// WithClock 注入时钟（测试用）
func WithClock(c clock.Clock) Option {
	return func(g *Graph) {
		g.clock = c
	}
}

// New 创建进程内复制图
func New(opts ...Option) *Graph {
	g := &Graph{
		leaves: make(map[string]*leaf),
		subs:   make(map[int]*subscription),
		clock:  clock.New(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Put 写入叶子值（本地图总是立即收敛）
func (g *Graph) Put(_ context.Context, path types.Path, value []byte) error {
	if err := path.Validate(); err != nil {
		return err
	}
	return g.apply(path, value, g.clock.Now().UnixMilli())
}

// PutAck 写入叶子值并确认；本地图的写入即确认
func (g *Graph) PutAck(ctx context.Context, path types.Path, value []byte) error {
	return g.Put(ctx, path, value)
}

// ApplyRemote 合并一条远端增量（LWW：旧状态被丢弃）
func (g *Graph) ApplyRemote(path types.Path, value []byte, state int64) error {
	if err := path.Validate(); err != nil {
		return err
	}
	return g.apply(path, value, state)
}

// apply 按状态时间戳合并并通知订阅者
//
// 与既有状态相等的写入仍然通知 —— 这正是基底的收敛抖动语义，
// 上层的幂等合并依赖它被如实保留。
func (g *Graph) apply(path types.Path, value []byte, state int64) error {
	key := path.String()

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return interfaces.ErrClosed
	}

	existing, ok := g.leaves[key]
	if ok && existing.state > state {
		// 落后于已收敛状态的写入直接丢弃
		g.mu.Unlock()
		return nil
	}

	buf := make([]byte, len(value))
	copy(buf, value)
	g.leaves[key] = &leaf{value: buf, state: state}

	update := interfaces.GraphUpdate{Path: path, Value: buf, State: state}
	targets := make([]*subscription, 0, 4)
	for _, sub := range g.subs {
		if path.HasPrefix(sub.prefix) {
			targets = append(targets, sub)
		}
	}
	g.mu.Unlock()

	for _, sub := range targets {
		sub.deliver(update)
	}
	return nil
}

// Get 读取一次；本地图无收敛延迟，缺失立即返回 ErrNotFound
func (g *Graph) Get(_ context.Context, path types.Path) ([]byte, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.closed {
		return nil, interfaces.ErrClosed
	}

	l, ok := g.leaves[path.String()]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	buf := make([]byte, len(l.value))
	copy(buf, l.value)
	return buf, nil
}

// Scan 枚举前缀下的所有叶子（路径字典序），fn 返回 false 时终止
func (g *Graph) Scan(ctx context.Context, prefix types.Path, fn func(path types.Path, value []byte) bool) error {
	if err := prefix.Validate(); err != nil {
		return err
	}

	g.mu.RLock()
	if g.closed {
		g.mu.RUnlock()
		return interfaces.ErrClosed
	}

	type entry struct {
		path  types.Path
		value []byte
	}
	matched := make([]entry, 0, 16)
	for key, l := range g.leaves {
		p, err := types.ParsePath(key)
		if err != nil {
			continue
		}
		if !p.HasPrefix(prefix) {
			continue
		}
		buf := make([]byte, len(l.value))
		copy(buf, l.value)
		matched = append(matched, entry{path: p, value: buf})
	}
	g.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].path.String() < matched[j].path.String()
	})

	for _, e := range matched {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if !fn(e.path, e.value) {
			return nil
		}
	}
	return nil
}

// Subscribe 订阅前缀下的收敛更新
//
// 订阅建立时回放既有叶子（基底对新订阅者重放已知状态），
// 之后持续推送每次收敛。
func (g *Graph) Subscribe(prefix types.Path, handler interfaces.UpdateHandler) (interfaces.CancelFunc, error) {
	if err := prefix.Validate(); err != nil {
		return nil, err
	}
	if handler == nil {
		return nil, ErrNilHandler
	}

	sub := &subscription{
		prefix:  prefix,
		ch:      make(chan interfaces.GraphUpdate, subscriptionBuffer),
		done:    make(chan struct{}),
		handler: handler,
	}

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil, interfaces.ErrClosed
	}
	id := g.nextID
	g.nextID++
	g.subs[id] = sub

	// 回放快照（持锁收集，异步投递）
	replay := make([]interfaces.GraphUpdate, 0, 16)
	for key, l := range g.leaves {
		p, err := types.ParsePath(key)
		if err != nil {
			continue
		}
		if p.HasPrefix(prefix) {
			buf := make([]byte, len(l.value))
			copy(buf, l.value)
			replay = append(replay, interfaces.GraphUpdate{Path: p, Value: buf, State: l.state})
		}
	}
	g.mu.Unlock()

	sort.Slice(replay, func(i, j int) bool {
		return replay[i].State < replay[j].State
	})

	go sub.pump()
	for _, u := range replay {
		sub.deliver(u)
	}

	cancel := func() {
		g.mu.Lock()
		if _, ok := g.subs[id]; ok {
			delete(g.subs, id)
			close(sub.done)
		}
		g.mu.Unlock()
	}
	return cancel, nil
}

// Close 关闭图并释放所有订阅
func (g *Graph) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return nil
	}
	g.closed = true
	for id, sub := range g.subs {
		delete(g.subs, id)
		close(sub.done)
	}
	return nil
}

// Len 返回叶子数（测试与诊断用）
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.leaves)
}

// deliver 非阻塞投递；队列满时丢弃（订阅方负责用重扫补偿）
func (s *subscription) deliver(u interfaces.GraphUpdate) {
	select {
	case <-s.done:
	case s.ch <- u:
	default:
		logger.Warn("订阅队列已满，丢弃更新", "path", u.Path.String())
	}
}

// pump 按到达顺序串行回调
func (s *subscription) pump() {
	for {
		select {
		case <-s.done:
			return
		case u := <-s.ch:
			s.handler(u)
		}
	}
}
