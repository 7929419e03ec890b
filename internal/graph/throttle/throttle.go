// Package throttle 实现订阅更新的限速合并
//
// 把图订阅的原始更新风暴按逻辑键缓冲成批，以固定节拍
// （约一个 UI 帧，16ms）冲刷，防止收敛抖动饱和下游消费者。
// 每个上层协议都经由本助手消费订阅，而不是直接吃原始回调。
package throttle

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// DefaultInterval 默认冲刷节拍（UI 帧级）
const DefaultInterval = 16 * time.Millisecond

// Item 一条待冲刷的更新
type Item struct {
	// Key 逻辑键（同键更新在一个批次内合并，保留最新值）
	Key string

	// Value 最新值
	Value any
}

// FlushFunc 批冲刷回调；按首次到达顺序送达，每键一条
type FlushFunc func(items []Item)

// Throttle 订阅限速器
type Throttle struct {
	clock    clock.Clock
	interval time.Duration
	flush    FlushFunc

	mu      sync.Mutex
	pending []Item
	index   map[string]int
	timer   *clock.Timer
	closed  bool
}

// Option 定义配置选项函数
type Option func(*Throttle)

// WithInterval 设置冲刷节拍
func WithInterval(interval time.Duration) Option {
	return func(t *Throttle) {
		t.interval = interval
	}
}

// WithClock 注入时钟（测试用）
func WithClock(c clock.Clock) Option {
	return func(t *Throttle) {
		t.clock = c
	}
}

// New 创建限速器
func New(flush FlushFunc, opts ...Option) *Throttle {
	t := &Throttle{
		clock:    clock.New(),
		interval: DefaultInterval,
		flush:    flush,
		index:    make(map[string]int),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Add 缓冲一条更新，节拍到点统一冲刷
func (t *Throttle) Add(key string, value any) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}

	if i, ok := t.index[key]; ok {
		// 同键合并：保留首次到达的位置，值取最新
		t.pending[i].Value = value
		t.mu.Unlock()
		return
	}

	t.index[key] = len(t.pending)
	t.pending = append(t.pending, Item{Key: key, Value: value})

	if t.timer == nil {
		t.timer = t.clock.AfterFunc(t.interval, t.Flush)
	}
	t.mu.Unlock()
}

// AddImmediate 缓冲并立即冲刷
//
// 编辑/删除类更新必须即时可感，不等节拍。
func (t *Throttle) AddImmediate(key string, value any) {
	t.Add(key, value)
	t.Flush()
}

// Flush 冲刷当前批次：每个缓冲项送达一次、按到达顺序，然后清空
func (t *Throttle) Flush() {
	t.mu.Lock()
	if t.closed || len(t.pending) == 0 {
		t.stopTimerLocked()
		t.mu.Unlock()
		return
	}

	batch := t.pending
	t.pending = nil
	t.index = make(map[string]int)
	t.stopTimerLocked()
	t.mu.Unlock()

	// 回调在锁外执行，冲刷期间的新 Add 进入下一批
	t.flush(batch)
}

// Pending 返回当前缓冲条数（测试与诊断用）
func (t *Throttle) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Close 冲刷残余并停止
func (t *Throttle) Close() {
	t.Flush()

	t.mu.Lock()
	t.closed = true
	t.stopTimerLocked()
	t.mu.Unlock()
}

// stopTimerLocked 停掉未触发的定时器（须持锁调用）
func (t *Throttle) stopTimerLocked() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
