package presence

import (
	"context"
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/dechat/go-dechat/internal/graph/throttle"
	"github.com/dechat/go-dechat/pkg/interfaces"
	"github.com/dechat/go-dechat/pkg/lib/log"
	"github.com/dechat/go-dechat/pkg/types"
)

var logger = log.Logger("protocol/presence")

// Service 实现 Presence 接口
type Service struct {
	graph    interfaces.Graph
	identity interfaces.Identity
	clock    clock.Clock
	config   *Config

	mu     sync.Mutex
	status types.Status
	// stopHeartbeat 非 nil 表示心跳在跑；关闭即停
	stopHeartbeat chan struct{}
}

// 确保 Service 实现了 interfaces.Presence 接口
var _ interfaces.Presence = (*Service)(nil)

// Dep 服务依赖
type Dep struct {
	// Graph 复制图客户端（必须）
	Graph interfaces.Graph

	// Identity 本地身份（必须）
	Identity interfaces.Identity

	// Clock 时钟；nil 时使用真实时钟
	Clock clock.Clock
}

// New 创建在线状态服务
func New(dep Dep, opts ...Option) (*Service, error) {
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

	return &Service{
		graph:    dep.Graph,
		identity: dep.Identity,
		clock:    dep.Clock,
		config:   config,
		status:   types.StatusOffline,
	}, nil
}

// writeRecord 重写自己的在线记录
func (s *Service) writeRecord(ctx context.Context, status types.Status) error {
	record := &types.PresenceRecord{
		PublicKey: s.identity.PublicKey(),
		Status:    status,
		LastSeen:  s.clock.Now().UnixMilli(),
	}
	data, err := types.EncodePresence(record)
	if err != nil {
		return err
	}
	return s.graph.Put(ctx, types.PresencePath(record.PublicKey), data)
}

// SetStatus 写入状态并启动（或保持）心跳
//
// offline 等价于 GoOffline。心跳是会话级单一资源，
// 重复调用只更新自述状态，不叠加定时器。
func (s *Service) SetStatus(ctx context.Context, status types.Status) error {
	if !status.Valid() {
		return ErrInvalidStatus
	}
	if status == types.StatusOffline {
		return s.GoOffline(ctx)
	}

	s.mu.Lock()
	s.status = status
	if s.stopHeartbeat == nil {
		stop := make(chan struct{})
		s.stopHeartbeat = stop
		go s.heartbeatLoop(stop)
	}
	s.mu.Unlock()

	if err := s.writeRecord(ctx, status); err != nil {
		return err
	}
	logger.Debug("状态已更新", "status", string(status))
	return nil
}

// GoOffline 写入最终 offline 并取消心跳
//
// 优雅退出的最后一次写入走确认通道，离线记录丢失会让其他端
// 一直等到心跳超时才感知。
func (s *Service) GoOffline(ctx context.Context) error {
	s.mu.Lock()
	if s.stopHeartbeat != nil {
		close(s.stopHeartbeat)
		s.stopHeartbeat = nil
	}
	s.status = types.StatusOffline
	s.mu.Unlock()

	record := &types.PresenceRecord{
		PublicKey: s.identity.PublicKey(),
		Status:    types.StatusOffline,
		LastSeen:  s.clock.Now().UnixMilli(),
	}
	data, err := types.EncodePresence(record)
	if err != nil {
		return err
	}
	return s.graph.PutAck(ctx, types.PresencePath(record.PublicKey), data)
}

// heartbeatLoop 按周期重写在线记录，维持新鲜度
func (s *Service) heartbeatLoop(stop chan struct{}) {
	ticker := s.clock.Ticker(s.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			status := s.status
			s.mu.Unlock()
			if err := s.writeRecord(context.Background(), status); err != nil {
				logger.Warn("心跳写入失败", "error", err)
			}
		}
	}
}

// SubscribePresence 订阅一组身份的有效状态
//
// 每个身份先推一次 offline 基线；此后只有有效状态变化经限速器
// 冲刷到处理器，心跳刷新本身不产生回调。状态边沿必须即时可感，
// 走即时冲刷。补偿扫描捕捉无写入的过期转变。
func (s *Service) SubscribePresence(publicKeys []string, handler interfaces.PresenceHandler) (interfaces.CancelFunc, error) {
	if len(publicKeys) == 0 {
		return nil, ErrNoSubscribers
	}

	th := throttle.New(func(items []throttle.Item) {
		for _, item := range items {
			handler(item.Value.(interfaces.PresenceUpdate))
		}
	}, throttle.WithClock(s.clock))

	w := &presenceWatch{
		svc:     s,
		th:      th,
		emitted: make(map[string]types.Status, len(publicKeys)),
		records: make(map[string]*types.PresenceRecord, len(publicKeys)),
		done:    make(chan struct{}),
	}

	for _, key := range publicKeys {
		w.emitted[key] = types.StatusOffline
		th.Add(key, interfaces.PresenceUpdate{PublicKey: key, Status: types.StatusOffline})
	}
	th.Flush()

	var cancels []interfaces.CancelFunc
	for _, key := range publicKeys {
		cancel, err := s.graph.Subscribe(types.PresencePath(key), w.onUpdate)
		if err != nil {
			for _, c := range cancels {
				c()
			}
			close(w.done)
			th.Close()
			return nil, err
		}
		cancels = append(cancels, cancel)
	}

	go w.sweepLoop()

	var once sync.Once
	return func() {
		once.Do(func() {
			for _, c := range cancels {
				c()
			}
			close(w.done)
			th.Close()
		})
	}, nil
}

// presenceWatch 一次在线状态订阅的读取端状态
type presenceWatch struct {
	svc  *Service
	th   *throttle.Throttle
	done chan struct{}

	mu      sync.Mutex
	emitted map[string]types.Status
	records map[string]*types.PresenceRecord
}

func (w *presenceWatch) onUpdate(u interfaces.GraphUpdate) {
	record, err := types.DecodePresence(u.Value)
	if err != nil {
		return
	}

	w.mu.Lock()
	if _, tracked := w.emitted[record.PublicKey]; !tracked {
		w.mu.Unlock()
		return
	}
	w.records[record.PublicKey] = record
	effective := record.EffectiveStatus(w.svc.clock.Now(), w.svc.config.OfflineThreshold)
	changed := w.emitted[record.PublicKey] != effective
	if changed {
		w.emitted[record.PublicKey] = effective
	}
	w.mu.Unlock()

	if changed {
		w.th.AddImmediate(record.PublicKey, interfaces.PresenceUpdate{
			PublicKey: record.PublicKey,
			Status:    effective,
			LastSeen:  record.LastSeen,
		})
	}
}

// sweepLoop 周期性重算有效状态，捕捉心跳停摆导致的离线转变
func (w *presenceWatch) sweepLoop() {
	ticker := w.svc.clock.Ticker(w.svc.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.sweep()
		}
	}
}

func (w *presenceWatch) sweep() {
	now := w.svc.clock.Now()

	var updates []interfaces.PresenceUpdate
	w.mu.Lock()
	for key, record := range w.records {
		effective := record.EffectiveStatus(now, w.svc.config.OfflineThreshold)
		if w.emitted[key] != effective {
			w.emitted[key] = effective
			updates = append(updates, interfaces.PresenceUpdate{
				PublicKey: key,
				Status:    effective,
				LastSeen:  record.LastSeen,
			})
		}
	}
	w.mu.Unlock()

	for _, u := range updates {
		w.th.Add(u.PublicKey, u)
	}
	w.th.Flush()
}

// SetTyping 写入输入状态
//
// 停止输入的显式写入可能丢失，读取侧的过期规则负责兜底。
func (s *Service) SetTyping(ctx context.Context, channelID string, typing bool) error {
	if channelID == "" {
		return ErrEmptyChannelID
	}

	record := &types.TypingRecord{
		ChannelID: channelID,
		PublicKey: s.identity.PublicKey(),
		IsTyping:  typing,
		Timestamp: s.clock.Now().UnixMilli(),
	}
	data, err := types.EncodeTyping(record)
	if err != nil {
		return err
	}
	return s.graph.Put(ctx, types.TypingPath(channelID, record.PublicKey), data)
}

// SubscribeTyping 订阅频道输入状态
//
// 只有有效输入状态的边沿经限速器即时冲刷到回调；
// 记录过期等价于停止输入。
func (s *Service) SubscribeTyping(channelID string, handler interfaces.TypingHandler) (interfaces.CancelFunc, error) {
	if channelID == "" {
		return nil, ErrEmptyChannelID
	}

	th := throttle.New(func(items []throttle.Item) {
		for _, item := range items {
			e := item.Value.(typingEdge)
			handler(channelID, e.key, e.typing)
		}
	}, throttle.WithClock(s.clock))

	w := &typingWatch{
		svc:       s,
		channelID: channelID,
		th:        th,
		emitted:   make(map[string]bool),
		records:   make(map[string]*types.TypingRecord),
		done:      make(chan struct{}),
	}

	cancelSub, err := s.graph.Subscribe(types.TypingChannelPath(channelID), w.onUpdate)
	if err != nil {
		th.Close()
		return nil, err
	}

	go w.sweepLoop()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancelSub()
			close(w.done)
			th.Close()
		})
	}, nil
}

// typingEdge 一次输入状态边沿
type typingEdge struct {
	key    string
	typing bool
}

// typingWatch 一次输入状态订阅的读取端状态
type typingWatch struct {
	svc       *Service
	channelID string
	th        *throttle.Throttle
	done      chan struct{}

	mu      sync.Mutex
	emitted map[string]bool
	records map[string]*types.TypingRecord
}

func (w *typingWatch) onUpdate(u interfaces.GraphUpdate) {
	record, err := types.DecodeTyping(u.Value)
	if err != nil || record.ChannelID != w.channelID {
		return
	}

	w.mu.Lock()
	w.records[record.PublicKey] = record
	effective := record.EffectiveTyping(w.svc.clock.Now(), w.svc.config.TypingExpiry)
	changed := w.emitted[record.PublicKey] != effective
	if changed {
		w.emitted[record.PublicKey] = effective
	}
	w.mu.Unlock()

	if changed {
		w.th.AddImmediate(record.PublicKey, typingEdge{key: record.PublicKey, typing: effective})
	}
}

// sweepLoop 周期性过期扫描，补偿丢失的停止输入写入
func (w *typingWatch) sweepLoop() {
	// 过期粒度要求比在线状态细，直接用过期时限的一半做节拍
	interval := w.svc.config.TypingExpiry / 2
	if interval <= 0 {
		interval = w.svc.config.SweepInterval
	}
	ticker := w.svc.clock.Ticker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.sweep()
		}
	}
}

func (w *typingWatch) sweep() {
	now := w.svc.clock.Now()

	var edges []typingEdge
	w.mu.Lock()
	for key, record := range w.records {
		effective := record.EffectiveTyping(now, w.svc.config.TypingExpiry)
		if w.emitted[key] != effective {
			w.emitted[key] = effective
			edges = append(edges, typingEdge{key: key, typing: effective})
		}
	}
	w.mu.Unlock()

	for _, e := range edges {
		w.th.Add(e.key, e)
	}
	w.th.Flush()
}
