package relayhub

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dechat/go-dechat/internal/graph/wire"
	"github.com/dechat/go-dechat/pkg/lib/log"
	"github.com/dechat/go-dechat/pkg/types"
)

var logger = log.Logger("graph/relayhub")

// leaf 单个叶子：值 + 状态时间戳（LWW 比较键）
type leaf struct {
	value []byte
	state int64
}

// client 一条在线连接；写经 mu 串行
type client struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	mu sync.Mutex
}

// write 串行写一帧，带写超时
func (c *client) write(f wire.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return c.conn.WriteJSON(f)
}

// Hub 复制图中继；实现 http.Handler，每个升级连接一个读循环
type Hub struct {
	upgrader websocket.Upgrader
	config   *Config

	mu      sync.Mutex
	leaves  map[string]leaf
	clients map[*client]bool
	closed  bool

	connectedClients prometheus.Gauge
	framesMerged     prometheus.Counter
	framesDropped    prometheus.Counter
	leafCount        prometheus.Gauge
}

// 确保 Hub 实现了 http.Handler 接口
var _ http.Handler = (*Hub)(nil)

// New 创建中继并注册指标
func New(reg prometheus.Registerer, opts ...Option) *Hub {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(config)
	}

	h := &Hub{
		upgrader: websocket.Upgrader{
			// 图中继面向任意对等端，握手不校验来源
			CheckOrigin: func(*http.Request) bool { return true },
		},
		config:  config,
		leaves:  make(map[string]leaf),
		clients: make(map[*client]bool),
		connectedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dechat_relay_connected_clients",
			Help: "当前在线客户端数",
		}),
		framesMerged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dechat_relay_frames_merged_total",
			Help: "完成合并并扇出的写入帧数",
		}),
		framesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dechat_relay_frames_dropped_total",
			Help: "因路径非法或落后状态被丢弃的写入帧数",
		}),
		leafCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dechat_relay_leaves",
			Help: "快照中的叶子数",
		}),
	}
	if reg != nil {
		reg.MustRegister(h.connectedClients, h.framesMerged, h.framesDropped, h.leafCount)
	}
	return h
}

// ServeHTTP 升级连接并进入读循环
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("连接升级失败", "remote", r.RemoteAddr, "err", err)
		return
	}
	conn.SetReadLimit(h.config.MaxFrameSize)

	c := &client{conn: conn, writeTimeout: h.config.WriteTimeout}
	if !h.register(c) {
		_ = conn.Close()
		return
	}
	logger.Info("客户端接入", "remote", r.RemoteAddr)

	defer func() {
		h.unregister(c)
		_ = conn.Close()
		logger.Info("客户端离开", "remote", r.RemoteAddr)
	}()

	for {
		var f wire.Frame
		if err := conn.ReadJSON(&f); err != nil {
			return
		}

		switch f.Op {
		case wire.OpHello:
			h.replay(c)
		case wire.OpPut:
			h.merge(c, f)
		default:
			logger.Warn("丢弃未知操作码", "op", f.Op, "remote", r.RemoteAddr)
		}
	}
}

// register 登记新连接
func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}
	h.clients[c] = true
	h.connectedClients.Inc()
	return true
}

// unregister 摘除连接
func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		h.connectedClients.Dec()
	}
}

// replay 向单个客户端回放全量快照
func (h *Hub) replay(c *client) {
	h.mu.Lock()
	snapshot := make([]wire.Frame, 0, len(h.leaves))
	for path, l := range h.leaves {
		snapshot = append(snapshot, wire.Frame{Op: wire.OpUpdate, Path: path, Value: l.value, State: l.state})
	}
	h.mu.Unlock()

	for _, f := range snapshot {
		if err := c.write(f); err != nil {
			return
		}
	}
}

// merge 合并一次写入并扇出
//
// 落后于已收敛状态的写入丢弃但仍回执成功 —— 客户端关心的是
// 送达，不是胜出；相等状态照常扇出，保留基底的收敛抖动语义。
func (h *Hub) merge(c *client, f wire.Frame) {
	if _, err := types.ParsePath(f.Path); err != nil {
		h.framesDropped.Inc()
		if f.Ack {
			_ = c.write(wire.Frame{Op: wire.OpAck, ID: f.ID, Error: err.Error()})
		}
		return
	}

	h.mu.Lock()
	existing, ok := h.leaves[f.Path]
	stale := ok && existing.state > f.State
	if !stale {
		buf := make([]byte, len(f.Value))
		copy(buf, f.Value)
		h.leaves[f.Path] = leaf{value: buf, state: f.State}
		h.leafCount.Set(float64(len(h.leaves)))
	}
	targets := make([]*client, 0, len(h.clients))
	for cl := range h.clients {
		targets = append(targets, cl)
	}
	h.mu.Unlock()

	if stale {
		h.framesDropped.Inc()
	} else {
		h.framesMerged.Inc()
		update := wire.Frame{Op: wire.OpUpdate, Path: f.Path, Value: f.Value, State: f.State}
		for _, cl := range targets {
			if err := cl.write(update); err != nil {
				logger.Warn("扇出失败", "path", f.Path, "err", err)
			}
		}
	}

	if f.Ack {
		_ = c.write(wire.Frame{Op: wire.OpAck, ID: f.ID})
	}
}

// ClientCount 返回在线客户端数（诊断用）
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// LeafCount 返回快照叶子数（诊断用）
func (h *Hub) LeafCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.leaves)
}

// Close 关闭中继并掐断所有连接
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		_ = c.conn.Close()
	}
	return nil
}
