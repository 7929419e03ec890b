package voice

import (
	"context"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/dechat/go-dechat/internal/core/metrics"
	"github.com/dechat/go-dechat/pkg/interfaces"
	"github.com/dechat/go-dechat/pkg/lib/log"
	"github.com/dechat/go-dechat/pkg/types"
)

// engine 层级相关的媒体实现（网状或中继）
type engine interface {
	start(ctx context.Context) error
	peerJoined(p *types.VoiceParticipant)
	peerLeft(publicKey string)
	setMuted(muted bool)
	setInputDevice(deviceID string) error
	setOutputDevice(deviceID string) error
	close() error
}

// call 一次已加入的语音通话
//
// 所有通话资源绑在本对象上；Leave 完成全部拆除后 done 关闭，
// 异步回调在恢复点检查 done，不再触碰已拆除的状态。
type call struct {
	channelID string
	tier      types.Tier
	graph     interfaces.Graph
	identity  interfaces.Identity
	metrics   *metrics.Metrics
	clock     clock.Clock
	config    *Config
	engine    engine

	events chan interfaces.CallEvent
	done   chan struct{}

	mu       sync.Mutex
	closed   bool
	self     types.VoiceParticipant
	roster   map[string]*types.VoiceParticipant
	seenCmds map[string]struct{}
	cancels  []interfaces.CancelFunc
}

// 确保 call 实现了 interfaces.Call 接口
var _ interfaces.Call = (*call)(nil)

func newCall(channelID string, tier types.Tier, graph interfaces.Graph, identity interfaces.Identity,
	met *metrics.Metrics, clk clock.Clock, config *Config) *call {
	return &call{
		channelID: channelID,
		tier:      tier,
		graph:     graph,
		identity:  identity,
		metrics:   met,
		clock:     clk,
		config:    config,
		events:    make(chan interfaces.CallEvent, 64),
		done:      make(chan struct{}),
		roster:    make(map[string]*types.VoiceParticipant),
		seenCmds:  make(map[string]struct{}),
	}
}

// start 建立通话：写入自己的名册记录、挂订阅、起心跳与补偿扫描
func (c *call) start(ctx context.Context) error {
	now := c.clock.Now().UnixMilli()
	c.self = types.VoiceParticipant{
		PublicKey: c.identity.PublicKey(),
		JoinedAt:  now,
		Heartbeat: now,
	}
	if err := c.writeSelf(ctx); err != nil {
		return err
	}

	cancelRoster, err := c.graph.Subscribe(types.VoiceParticipantsPath(c.channelID), c.onRosterUpdate)
	if err != nil {
		return err
	}
	c.cancels = append(c.cancels, cancelRoster)

	cancelCmds, err := c.graph.Subscribe(
		types.VoiceCommandsPath(c.channelID, c.self.PublicKey), c.onCommand)
	if err != nil {
		return err
	}
	c.cancels = append(c.cancels, cancelCmds)

	go c.heartbeatLoop()
	go c.rescanLoop()

	if err := c.engine.start(ctx); err != nil {
		return err
	}

	c.emit(interfaces.CallEvent{Type: interfaces.CallEventTierSelected, Tier: c.tier})
	// 既有参与者由名册订阅的回放推入 onRosterUpdate
	return nil
}

// writeSelf 重写自己的名册记录
func (c *call) writeSelf(ctx context.Context) error {
	c.mu.Lock()
	self := c.self
	c.mu.Unlock()

	data, err := types.EncodeVoiceParticipant(&self)
	if err != nil {
		return err
	}
	return c.graph.Put(ctx, types.VoiceParticipantPath(c.channelID, self.PublicKey), data)
}

// emit 非阻塞推送通话事件，慢消费者丢弃
//
// 发送保持在锁内：Leave 先在同一把锁下置位 closed 再关闭通道，
// 迟到的推送不可能落在已关闭的通道上。
func (c *call) emit(event interfaces.CallEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.events <- event:
	default:
	}
}

// onRosterUpdate 名册订阅回调
func (c *call) onRosterUpdate(u interfaces.GraphUpdate) {
	select {
	case <-c.done:
		return
	default:
	}

	p, err := types.DecodeVoiceParticipant(u.Value)
	if err != nil || p.PublicKey == "" || p.PublicKey == c.identity.PublicKey() {
		return
	}
	c.reconcile(p)
}

// reconcile 将一条参与者记录合并进名册并发出相应事件
func (c *call) reconcile(p *types.VoiceParticipant) {
	live := p.Live(c.clock.Now(), c.config.StaleBound)

	c.mu.Lock()
	existing, known := c.roster[p.PublicKey]
	var event interfaces.CallEvent
	switch {
	case live && !known:
		c.roster[p.PublicKey] = p
		event = interfaces.CallEvent{Type: interfaces.CallEventPeerJoined, PeerKey: p.PublicKey, Participant: p}
	case !live && known:
		delete(c.roster, p.PublicKey)
		event = interfaces.CallEvent{Type: interfaces.CallEventPeerLeft, PeerKey: p.PublicKey, Participant: p}
	case live && known && participantChanged(existing, p):
		c.roster[p.PublicKey] = p
		event = interfaces.CallEvent{Type: interfaces.CallEventPeerUpdated, PeerKey: p.PublicKey, Participant: p}
	default:
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.emit(event)
	switch event.Type {
	case interfaces.CallEventPeerJoined:
		logger.Info("参与者加入", "channel", c.channelID, "peer", log.TruncateID(p.PublicKey, 8))
		c.engine.peerJoined(p)
	case interfaces.CallEventPeerLeft:
		logger.Info("参与者离开", "channel", c.channelID, "peer", log.TruncateID(p.PublicKey, 8))
		c.engine.peerLeft(p.PublicKey)
	}
}

func participantChanged(a, b *types.VoiceParticipant) bool {
	return a.Muted != b.Muted ||
		a.Deafened != b.Deafened ||
		a.Speaking != b.Speaking ||
		a.ServerMuted != b.ServerMuted
}

// heartbeatLoop 周期刷新自己的心跳
func (c *call) heartbeatLoop() {
	ticker := c.clock.Ticker(c.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.Lock()
			c.self.Heartbeat = c.clock.Now().UnixMilli()
			c.mu.Unlock()
			if err := c.writeSelf(context.Background()); err != nil {
				logger.Warn("语音心跳写入失败", "channel", c.channelID, "error", err)
			}
		}
	}
}

// rescanLoop 周期全量扫描名册
//
// 订阅是至少一次而非保证送达；扫描补上漏掉的更新，
// 同时让没有任何写入的心跳超限者被判定离开。
func (c *call) rescanLoop() {
	ticker := c.clock.Ticker(c.config.RescanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.rescan()
		}
	}
}

func (c *call) rescan() {
	ctx, cancel := context.WithTimeout(context.Background(), c.config.ScanTimeout)
	defer cancel()

	var records []*types.VoiceParticipant
	err := c.graph.Scan(ctx, types.VoiceParticipantsPath(c.channelID), func(_ types.Path, value []byte) bool {
		p, err := types.DecodeVoiceParticipant(value)
		if err == nil && p.PublicKey != "" && p.PublicKey != c.identity.PublicKey() {
			records = append(records, p)
		}
		return true
	})
	if err != nil {
		logger.Debug("名册扫描失败", "channel", c.channelID, "error", err)
		return
	}

	select {
	case <-c.done:
		return
	default:
	}

	seen := make(map[string]struct{}, len(records))
	for _, p := range records {
		seen[p.PublicKey] = struct{}{}
		c.reconcile(p)
	}

	// 名册里有但扫描不见的条目按已离开处理
	c.mu.Lock()
	var gone []*types.VoiceParticipant
	for key, p := range c.roster {
		if _, ok := seen[key]; !ok {
			delete(c.roster, key)
			gone = append(gone, p)
		}
	}
	c.mu.Unlock()
	for _, p := range gone {
		c.emit(interfaces.CallEvent{Type: interfaces.CallEventPeerLeft, PeerKey: p.PublicKey, Participant: p})
		c.engine.peerLeft(p.PublicKey)
	}
}

// onCommand 管理命令回调：目标客户端自行执行
func (c *call) onCommand(u interfaces.GraphUpdate) {
	select {
	case <-c.done:
		return
	default:
	}

	id := u.Path.Base()
	c.mu.Lock()
	if _, ok := c.seenCmds[id]; ok {
		c.mu.Unlock()
		return
	}
	c.seenCmds[id] = struct{}{}
	c.mu.Unlock()

	cmd, err := types.DecodeVoiceCommand(u.Value)
	if err != nil || cmd.Target != c.identity.PublicKey() || cmd.Channel != c.channelID {
		return
	}

	logger.Info("收到管理命令",
		"channel", c.channelID,
		"type", string(cmd.Type),
		"issuer", log.TruncateID(cmd.Issuer, 8))
	c.emit(interfaces.CallEvent{Type: interfaces.CallEventCommand, Command: cmd})

	switch cmd.Type {
	case types.CommandServerMute:
		c.mu.Lock()
		c.self.ServerMuted = true
		c.mu.Unlock()
		c.applyMute()
		if err := c.writeSelf(context.Background()); err != nil {
			logger.Warn("管理静音状态写入失败", "error", err)
		}
	case types.CommandServerUnmute:
		c.mu.Lock()
		c.self.ServerMuted = false
		c.mu.Unlock()
		c.applyMute()
		if err := c.writeSelf(context.Background()); err != nil {
			logger.Warn("管理静音状态写入失败", "error", err)
		}
	case types.CommandDisconnect:
		// 回调里不能做全量拆除，移交独立 goroutine
		go func() {
			if err := c.Leave(context.Background()); err != nil {
				logger.Warn("强制断开执行失败", "error", err)
			}
		}()
	}
}

// applyMute 把有效静音状态下推到媒体引擎
func (c *call) applyMute() {
	c.mu.Lock()
	effective := c.self.Muted || c.self.Deafened || c.self.ServerMuted
	c.mu.Unlock()
	c.engine.setMuted(effective)
}

// setSpeaking 媒体引擎回报的去抖后发言边沿
func (c *call) setSpeaking(speaking bool) {
	c.mu.Lock()
	if c.closed || c.self.Speaking == speaking {
		c.mu.Unlock()
		return
	}
	c.self.Speaking = speaking
	c.mu.Unlock()

	c.emit(interfaces.CallEvent{Type: interfaces.CallEventSpeaking, Speaking: speaking})
	if err := c.writeSelf(context.Background()); err != nil {
		logger.Debug("发言状态写入失败", "error", err)
	}
}

// deafened 当前是否拒听
func (c *call) deafened() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.self.Deafened
}

// peerSpeaking 引擎回报的远端发言状态（中继层级使用）
func (c *call) peerSpeaking(peerKey string, speaking bool) {
	c.emit(interfaces.CallEvent{Type: interfaces.CallEventSpeaking, PeerKey: peerKey, Speaking: speaking})
}

// ════════════════════════════════════════════════════════════════════════════
//                              interfaces.Call
// ════════════════════════════════════════════════════════════════════════════

// Channel 通话频道
func (c *call) Channel() string { return c.channelID }

// Tier 实际选定的层级
func (c *call) Tier() types.Tier { return c.tier }

// Events 通话事件流
func (c *call) Events() <-chan interfaces.CallEvent { return c.events }

// Participants 当前存活参与者快照（含自己）
func (c *call) Participants() []*types.VoiceParticipant {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := make([]*types.VoiceParticipant, 0, len(c.roster)+1)
	self := c.self
	result = append(result, &self)
	for _, p := range c.roster {
		cp := *p
		result = append(result, &cp)
	}
	return result
}

// SetMuted 自我静音
func (c *call) SetMuted(ctx context.Context, muted bool) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrCallClosed
	}
	c.self.Muted = muted
	c.mu.Unlock()

	c.applyMute()
	return c.writeSelf(ctx)
}

// SetDeafened 拒听；拒听隐含静音
func (c *call) SetDeafened(ctx context.Context, deafened bool) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrCallClosed
	}
	c.self.Deafened = deafened
	if deafened {
		c.self.Muted = true
	}
	c.mu.Unlock()

	c.applyMute()
	return c.writeSelf(ctx)
}

// SetInputDevice 切换采集设备
func (c *call) SetInputDevice(deviceID string) error {
	return c.engine.setInputDevice(deviceID)
}

// SetOutputDevice 切换播放设备
func (c *call) SetOutputDevice(deviceID string) error {
	return c.engine.setOutputDevice(deviceID)
}

// ServerMute 对目标写入管理端静音命令
func (c *call) ServerMute(ctx context.Context, targetKey string, muted bool) error {
	typ := types.CommandServerMute
	if !muted {
		typ = types.CommandServerUnmute
	}
	return c.writeCommand(ctx, targetKey, typ)
}

// Disconnect 对目标写入强制断开命令
func (c *call) Disconnect(ctx context.Context, targetKey string) error {
	return c.writeCommand(ctx, targetKey, types.CommandDisconnect)
}

func (c *call) writeCommand(ctx context.Context, targetKey string, typ types.VoiceCommandType) error {
	if targetKey == "" {
		return ErrEmptyTarget
	}
	cmd := &types.VoiceCommand{
		Type:    typ,
		Target:  targetKey,
		Issuer:  c.identity.PublicKey(),
		Channel: c.channelID,
		At:      c.clock.Now().UnixMilli(),
	}
	data, err := types.EncodeVoiceCommand(cmd)
	if err != nil {
		return err
	}
	return c.graph.Put(ctx, types.VoiceCommandPath(c.channelID, targetKey, uuid.NewString()), data)
}

// Leave 离开通话并拆除全部本地资源
//
// 墓碑写入走确认通道：它丢了，其他端要等到心跳超限才感知离开。
func (c *call) Leave(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrCallClosed
	}
	c.closed = true
	now := c.clock.Now().UnixMilli()
	c.self.LeftAt = &types.Tombstone{At: now, By: c.self.PublicKey}
	self := c.self
	cancels := c.cancels
	c.cancels = nil
	c.mu.Unlock()

	close(c.done)

	var errs error
	for _, cancel := range cancels {
		cancel()
	}
	errs = multierr.Append(errs, c.engine.close())

	if data, err := types.EncodeVoiceParticipant(&self); err != nil {
		errs = multierr.Append(errs, err)
	} else if err := c.graph.PutAck(ctx, types.VoiceParticipantPath(c.channelID, self.PublicKey), data); err != nil {
		errs = multierr.Append(errs, err)
	}

	close(c.events)
	logger.Info("已离开通话", "channel", c.channelID, "tier", string(c.tier))
	return errs
}
