package channel

import (
	"context"
	"errors"
	"sort"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dechat/go-dechat/internal/core/metrics"
	"github.com/dechat/go-dechat/internal/graph/throttle"
	"github.com/dechat/go-dechat/pkg/interfaces"
	"github.com/dechat/go-dechat/pkg/lib/crypto"
	"github.com/dechat/go-dechat/pkg/lib/log"
	"github.com/dechat/go-dechat/pkg/types"
)

var logger = log.Logger("protocol/channel")

// Service 实现 ChannelMessaging 接口
type Service struct {
	graph    interfaces.Graph
	identity interfaces.Identity // 可为 nil：只读模式，写操作返回 ErrAuthenticationRequired
	mod      interfaces.Moderation
	audit    interfaces.AuditLog
	metrics  *metrics.Metrics
	clock    clock.Clock
	config   *Config

	// seen 消息 ID → 最后送达的状态摘要；验签失败时撤销，
	// 让纠正后的重发仍能送达
	seen *lru.Cache[string, string]
}

// 确保 Service 实现了 interfaces.ChannelMessaging 接口
var _ interfaces.ChannelMessaging = (*Service)(nil)

// Dep 服务依赖
type Dep struct {
	// Graph 复制图客户端（必须）
	Graph interfaces.Graph

	// Identity 本地身份；nil 时为只读模式
	Identity interfaces.Identity

	// Moderation 管理权限协作方；nil 时拒绝一切管理操作
	Moderation interfaces.Moderation

	// Audit 审计协作方；nil 时丢弃
	Audit interfaces.AuditLog

	// Metrics 指标；nil 时不暴露
	Metrics *metrics.Metrics

	// Clock 时钟；nil 时使用真实时钟
	Clock clock.Clock
}

// New 创建频道消息服务
func New(dep Dep, opts ...Option) (*Service, error) {
	if dep.Graph == nil {
		return nil, ErrNilGraph
	}

	config := DefaultConfig()
	for _, opt := range opts {
		opt(config)
	}

	if dep.Moderation == nil {
		dep.Moderation = interfaces.NopModeration{}
	}
	if dep.Audit == nil {
		dep.Audit = interfaces.NopAuditLog{}
	}
	if dep.Metrics == nil {
		dep.Metrics = metrics.Nop()
	}
	if dep.Clock == nil {
		dep.Clock = clock.New()
	}

	seen, err := lru.New[string, string](config.SeenCacheSize)
	if err != nil {
		return nil, err
	}

	return &Service{
		graph:    dep.Graph,
		identity: dep.Identity,
		mod:      dep.Moderation,
		audit:    dep.Audit,
		metrics:  dep.Metrics,
		clock:    dep.Clock,
		config:   config,
		seen:     seen,
	}, nil
}

// envelope 构造消息的签名信封（签名与验签共用，保证子集一致）
func envelope(m *types.Message) crypto.Envelope {
	return crypto.Envelope{
		ID:        m.ID,
		Body:      m.Content,
		Timestamp: m.Timestamp,
		AuthorKey: m.AuthorKey,
		ChannelID: m.ChannelID,
	}
}

// verifyRecord 校验一条消息记录的签名
//
// 管理删除由执行者重新签名，信封仍声称原作者；此时按墓碑
// 执行者验签，且执行者必须经 Moderation 放行。
func (s *Service) verifyRecord(msg *types.Message) bool {
	signer := msg.AuthorKey
	if msg.Deleted != nil && msg.Deleted.By != "" && msg.Deleted.By != msg.AuthorKey {
		if !s.mod.CanModerate(msg.Deleted.By, msg.AuthorKey) {
			return false
		}
		signer = msg.Deleted.By
	}
	return crypto.VerifyEnvelope(signer, envelope(msg), msg.Signature)
}

// Send 发送消息
//
// 生成 ID 与时间戳、签名、写入图，直接返回完整消息，
// 不等待订阅回显。
func (s *Service) Send(ctx context.Context, channelID string, draft interfaces.Draft) (*types.Message, error) {
	if channelID == "" {
		return nil, ErrEmptyChannelID
	}
	if s.identity == nil {
		return nil, interfaces.ErrAuthenticationRequired
	}
	if draft.Content == "" && len(draft.Attachments) == 0 {
		return nil, ErrEmptyContent
	}

	msgType := draft.Type
	if msgType == "" {
		msgType = types.MessageTypeText
	}

	msg := &types.Message{
		ID:          uuid.NewString(),
		ChannelID:   channelID,
		AuthorKey:   s.identity.PublicKey(),
		Content:     draft.Content,
		Timestamp:   s.clock.Now().UnixMilli(),
		Type:        msgType,
		Attachments: draft.Attachments,
		ReplyTo:     draft.ReplyTo,
		Version:     types.MessageRecordVersion,
	}

	sig, err := s.identity.SignEnvelope(envelope(msg))
	if err != nil {
		return nil, err
	}
	msg.Signature = sig

	data, err := types.EncodeMessage(msg)
	if err != nil {
		return nil, err
	}
	if err := s.graph.Put(ctx, types.MessagePath(channelID, msg.ID), data); err != nil {
		return nil, err
	}

	s.metrics.MessagesSent.Inc()
	s.metrics.GraphWrites.Inc()
	logger.Debug("消息已发送", "channel", channelID, "id", log.TruncateID(msg.ID, 8))
	return msg, nil
}

// SubscribeMessages 订阅频道消息
//
// 入站路径：解码（含旧版本迁移）→ 验签 → 状态摘要去重 → 限速 → 处理器。
// 编辑/删除状态走即时冲刷，保证即时可感。
func (s *Service) SubscribeMessages(channelID string, handler interfaces.MessageHandler) (interfaces.CancelFunc, error) {
	if channelID == "" {
		return nil, ErrEmptyChannelID
	}

	th := throttle.New(func(items []throttle.Item) {
		for _, item := range items {
			handler(item.Value.(*types.Message))
		}
	}, throttle.WithClock(s.clock), throttle.WithInterval(s.config.ThrottleInterval))

	cancelSub, err := s.graph.Subscribe(types.ChannelMessagesPath(channelID), func(u interfaces.GraphUpdate) {
		msg, ok := s.admit(channelID, u.Value)
		if !ok {
			return
		}
		if msg.Edited || msg.IsDeleted() {
			th.AddImmediate(msg.ID, msg)
		} else {
			th.Add(msg.ID, msg)
		}
	})
	if err != nil {
		th.Close()
		return nil, err
	}

	return func() {
		cancelSub()
		th.Close()
	}, nil
}

// admit 入站消息准入：解码、验签、去重
func (s *Service) admit(channelID string, raw []byte) (*types.Message, bool) {
	msg, err := types.DecodeMessage(raw)
	if err != nil {
		s.metrics.InboundDropped.Inc()
		logger.Debug("丢弃无法解码的消息", "channel", channelID, "error", err)
		return nil, false
	}
	if msg.ChannelID != channelID {
		s.metrics.InboundDropped.Inc()
		return nil, false
	}

	if !s.verifyRecord(msg) {
		// 验签失败：丢弃并撤销已见标记，纠正后的重发仍可送达
		s.seen.Remove(msg.ID)
		s.metrics.VerifyFailures.Inc()
		s.metrics.InboundDropped.Inc()
		logger.Warn("丢弃验签失败的消息",
			"channel", channelID,
			"id", log.TruncateID(msg.ID, 8),
			"author", log.TruncateID(msg.AuthorKey, 8))
		return nil, false
	}

	hash := msg.StateHash()
	if prev, ok := s.seen.Get(msg.ID); ok && prev == hash {
		// 收敛抖动：同一逻辑状态不重复送达
		return nil, false
	}
	s.seen.Add(msg.ID, hash)
	return msg, true
}

// History 限时全量扫描，按时间升序返回最后 limit 条
func (s *Service) History(ctx context.Context, channelID string, limit int) ([]*types.Message, error) {
	if channelID == "" {
		return nil, ErrEmptyChannelID
	}

	scanCtx, cancel := context.WithTimeout(ctx, s.config.ScanTimeout)
	defer cancel()

	var msgs []*types.Message
	err := s.graph.Scan(scanCtx, types.ChannelMessagesPath(channelID), func(_ types.Path, value []byte) bool {
		msg, err := types.DecodeMessage(value)
		if err != nil {
			return true
		}
		if msg.ChannelID != channelID {
			return true
		}
		if !s.verifyRecord(msg) {
			s.metrics.VerifyFailures.Inc()
			return true
		}
		msgs = append(msgs, msg)
		return true
	})
	if err != nil && len(msgs) == 0 {
		return nil, err
	}

	sort.Slice(msgs, func(i, j int) bool { return msgs[i].Timestamp < msgs[j].Timestamp })
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

// load 读取并解码一条消息
func (s *Service) load(ctx context.Context, channelID, messageID string) (*types.Message, error) {
	raw, err := s.graph.Get(ctx, types.MessagePath(channelID, messageID))
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	return types.DecodeMessage(raw)
}

// Edit 编辑自己的消息
//
// 旧内容追加进编辑历史、时间戳更新、重新签名。
// 作者检查是客户端侧的：读取侧验签保证伪造的编辑不会被送达。
func (s *Service) Edit(ctx context.Context, channelID, messageID, newContent string) (*types.Message, error) {
	if channelID == "" {
		return nil, ErrEmptyChannelID
	}
	if messageID == "" {
		return nil, ErrEmptyMessageID
	}
	if newContent == "" {
		return nil, ErrEmptyContent
	}
	if s.identity == nil {
		return nil, interfaces.ErrAuthenticationRequired
	}

	msg, err := s.load(ctx, channelID, messageID)
	if err != nil {
		return nil, err
	}
	if msg.AuthorKey != s.identity.PublicKey() {
		return nil, interfaces.ErrAuthorizationDenied
	}
	if msg.IsDeleted() {
		return nil, ErrMessageDeleted
	}

	now := s.clock.Now().UnixMilli()
	msg.EditHistory = append(msg.EditHistory, types.EditEntry{Content: msg.Content, EditedAt: now})
	msg.Content = newContent
	msg.Edited = true
	msg.EditedAt = now

	sig, err := s.identity.SignEnvelope(envelope(msg))
	if err != nil {
		return nil, err
	}
	msg.Signature = sig

	data, err := types.EncodeMessage(msg)
	if err != nil {
		return nil, err
	}
	if err := s.graph.Put(ctx, types.MessagePath(channelID, messageID), data); err != nil {
		return nil, err
	}

	s.metrics.GraphWrites.Inc()
	logger.Debug("消息已编辑", "channel", channelID, "id", log.TruncateID(messageID, 8))
	return msg, nil
}

// Delete 软删除
//
// 内容替换为占位串，附件与编辑历史清空，重新签名；叶子永不硬删除。
// 作者本人可删；其他身份经 Moderation 放行后可删，并产生审计条目。
// 管理删除由执行者签名，读取侧据墓碑的 By 切换验签公钥。
func (s *Service) Delete(ctx context.Context, channelID, messageID string) error {
	if channelID == "" {
		return ErrEmptyChannelID
	}
	if messageID == "" {
		return ErrEmptyMessageID
	}
	if s.identity == nil {
		return interfaces.ErrAuthenticationRequired
	}

	msg, err := s.load(ctx, channelID, messageID)
	if err != nil {
		return err
	}

	actor := s.identity.PublicKey()
	moderated := false
	if msg.AuthorKey != actor {
		if !s.mod.CanModerate(actor, msg.AuthorKey) {
			return interfaces.ErrAuthorizationDenied
		}
		moderated = true
	}

	now := s.clock.Now().UnixMilli()
	msg.Content = types.DeletedPlaceholder
	msg.Deleted = &types.Tombstone{At: now, By: actor}
	msg.Attachments = nil
	msg.EditHistory = nil

	sig, err := s.identity.SignEnvelope(envelope(msg))
	if err != nil {
		return err
	}
	msg.Signature = sig

	data, err := types.EncodeMessage(msg)
	if err != nil {
		return err
	}
	if err := s.graph.Put(ctx, types.MessagePath(channelID, messageID), data); err != nil {
		return err
	}

	s.metrics.GraphWrites.Inc()
	if moderated {
		s.audit.Record(interfaces.AuditEntry{
			Action:    "message.delete",
			ActorKey:  actor,
			TargetKey: msg.AuthorKey,
			Detail:    messageID,
			At:        now,
		})
	}
	logger.Debug("消息已删除", "channel", channelID, "id", log.TruncateID(messageID, 8), "moderated", moderated)
	return nil
}
