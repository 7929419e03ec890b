package monitor

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dechat/go-dechat/pkg/interfaces"
	"github.com/dechat/go-dechat/pkg/lib/log"
	"github.com/dechat/go-dechat/pkg/types"
)

var logger = log.Logger("core/monitor")

// Monitor 实现 ConnectionMonitor 接口
type Monitor struct {
	graph    interfaces.Graph
	identity interfaces.Identity
	clock    clock.Clock
	config   *Config

	mu       sync.Mutex
	started  bool
	stop     chan struct{}
	state    interfaces.ConnectionState
	rtt      time.Duration
	fails    int
	watchers map[int]chan interfaces.ConnectionEvent
	nextID   int
}

// 确保 Monitor 实现了 interfaces.ConnectionMonitor 接口
var _ interfaces.ConnectionMonitor = (*Monitor)(nil)

// Dep 监视器依赖
type Dep struct {
	// Graph 复制图客户端（必须）
	Graph interfaces.Graph

	// Identity 本地身份（必须），探测路径由公钥前缀派生
	Identity interfaces.Identity

	// Clock 时钟；nil 时使用真实时钟
	Clock clock.Clock
}

// New 创建连通性监视器
func New(dep Dep, opts ...Option) (*Monitor, error) {
	if dep.Graph == nil {
		return nil, ErrNilGraph
	}
	if dep.Identity == nil {
		return nil, ErrNilIdentity
	}

	config := DefaultConfig()
	for _, opt := range opts {
		opt(config)
	}
	if dep.Clock == nil {
		dep.Clock = clock.New()
	}

	return &Monitor{
		graph:    dep.Graph,
		identity: dep.Identity,
		clock:    dep.Clock,
		config:   config,
		state:    interfaces.ConnectionConnected,
		watchers: make(map[int]chan interfaces.ConnectionEvent),
	}, nil
}

// Start 启动探测循环
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return ErrAlreadyStarted
	}
	m.started = true
	m.stop = make(chan struct{})
	go m.probeLoop(m.stop)
	return nil
}

// Stop 停止探测循环
func (m *Monitor) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return ErrNotStarted
	}
	m.started = false
	close(m.stop)
	return nil
}

// State 当前状态
func (m *Monitor) State() interfaces.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// RTT 最近一次成功探测的往返时延
func (m *Monitor) RTT() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rtt
}

// Watch 订阅状态变化
func (m *Monitor) Watch() (<-chan interfaces.ConnectionEvent, interfaces.CancelFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	ch := make(chan interfaces.ConnectionEvent, 16)
	m.watchers[id] = ch

	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, ok := m.watchers[id]; ok {
			delete(m.watchers, id)
			close(ch)
		}
	}
}

// probeLoop 周期性图往返探测
func (m *Monitor) probeLoop(stop chan struct{}) {
	ticker := m.clock.Ticker(m.config.ProbeInterval)
	defer ticker.Stop()

	// 启动后立刻做一次探测，不等第一个周期
	m.probe()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.probe()
		}
	}
}

// probe 单次往返探测：写入时间戳并等待确认，耗时即 RTT
func (m *Monitor) probe() {
	ctx, cancel := context.WithTimeout(context.Background(), m.config.ProbeTimeout)
	defer cancel()

	path := types.PingPath(m.identity.PublicKey())
	value := strconv.FormatInt(m.clock.Now().UnixNano(), 10)

	start := m.clock.Now()
	err := m.graph.PutAck(ctx, path, []byte(value))
	rtt := m.clock.Now().Sub(start)

	if err != nil {
		m.onFailure(err)
		return
	}
	m.onSuccess(rtt)
}

func (m *Monitor) onSuccess(rtt time.Duration) {
	state := interfaces.ConnectionConnected
	if rtt > m.config.DegradedRTT {
		state = interfaces.ConnectionDegraded
	}

	m.mu.Lock()
	m.fails = 0
	m.rtt = rtt
	changed := m.state != state
	m.state = state
	m.mu.Unlock()

	if changed {
		logger.Info("连通状态变化", "state", string(state), "rtt", rtt.String())
		m.notify(interfaces.ConnectionEvent{State: state, RTT: rtt, At: m.clock.Now()})
	}
}

func (m *Monitor) onFailure(err error) {
	m.mu.Lock()
	m.fails++
	state := interfaces.ConnectionDegraded
	if m.fails >= m.config.FailThreshold {
		state = interfaces.ConnectionDisconnected
	}
	changed := m.state != state
	m.state = state
	fails := m.fails
	m.mu.Unlock()

	if changed {
		logger.Warn("连通状态变化", "state", string(state), "fails", fails, "error", err)
		m.notify(interfaces.ConnectionEvent{State: state, At: m.clock.Now()})
	}
}

// notify 向所有观察者推送事件，慢消费者丢弃而不阻塞探测循环
func (m *Monitor) notify(event interfaces.ConnectionEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.watchers {
		select {
		case ch <- event:
		default:
		}
	}
}
