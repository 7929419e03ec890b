package dm

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/dechat/go-dechat/internal/core/metrics"
	"github.com/dechat/go-dechat/internal/graph/throttle"
	"github.com/dechat/go-dechat/pkg/interfaces"
	"github.com/dechat/go-dechat/pkg/lib/crypto"
	"github.com/dechat/go-dechat/pkg/lib/log"
	"github.com/dechat/go-dechat/pkg/types"
)

var logger = log.Logger("protocol/dm")

// Service 实现 DMMessaging 接口
type Service struct {
	graph    interfaces.Graph
	identity interfaces.Identity
	metrics  *metrics.Metrics
	clock    clock.Clock
	config   *Config

	// secrets 会话 ID → 共享密钥；密钥对双方确定，缓存终身有效
	mu       sync.Mutex
	secrets  map[string][]byte
	deriving singleflight.Group

	// published 交换公钥只发布一次
	published sync.Once
}

// 确保 Service 实现了 interfaces.DMMessaging 接口
var _ interfaces.DMMessaging = (*Service)(nil)

// Dep 服务依赖
type Dep struct {
	// Graph 复制图客户端（必须）
	Graph interfaces.Graph

	// Identity 本地身份（必须）
	Identity interfaces.Identity

	// Metrics 指标；nil 时不暴露
	Metrics *metrics.Metrics

	// Clock 时钟；nil 时使用真实时钟
	Clock clock.Clock
}

// New 创建私信服务
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
	if dep.Metrics == nil {
		dep.Metrics = metrics.Nop()
	}
	if dep.Clock == nil {
		dep.Clock = clock.New()
	}

	return &Service{
		graph:    dep.Graph,
		identity: dep.Identity,
		metrics:  dep.Metrics,
		clock:    dep.Clock,
		config:   config,
		secrets:  make(map[string][]byte),
	}, nil
}

// PublishExchangeKey 把自己的交换公钥发布到共享图
//
// 对端发私信前需要它来协商共享密钥。叶子值就是 base58 公钥串。
// 会话建立时也会懒惰触发，重复调用只发布一次。
func (s *Service) PublishExchangeKey(ctx context.Context) {
	s.published.Do(func() {
		key := s.identity.ExchangePublicKey().String()
		path := types.ExchangeKeyPath(s.identity.PublicKey())
		if err := s.graph.Put(ctx, path, []byte(key)); err != nil {
			logger.Warn("交换公钥发布失败", "error", err)
		}
	})
}

// envelope 构造私信的签名信封，签名覆盖密文而非明文
func envelope(m *types.DirectMessage) crypto.Envelope {
	return crypto.Envelope{
		ID:        m.ID,
		Body:      m.Encrypted,
		Timestamp: m.Timestamp,
		AuthorKey: m.AuthorKey,
		ChannelID: m.ConversationID,
	}
}

// Start 创建（或返回已有的）与对方的会话
//
// 元数据写入走确认通道：会话存在是后续一切操作的前提，
// 写入失败必须显式暴露。指针与收件箱是辅助索引，尽力写入。
func (s *Service) Start(ctx context.Context, recipientKey string) (*types.Conversation, error) {
	if recipientKey == "" {
		return nil, ErrEmptyRecipient
	}
	self := s.identity.PublicKey()
	if recipientKey == self {
		return nil, ErrSelfConversation
	}

	s.PublishExchangeKey(ctx)

	convID := types.ConversationID(self, recipientKey)
	if conv, err := s.loadConversation(ctx, convID); err == nil {
		return conv, nil
	}

	a, b := self, recipientKey
	if a > b {
		a, b = b, a
	}
	conv := &types.Conversation{
		ID:           convID,
		ParticipantA: a,
		ParticipantB: b,
		CreatedAt:    s.clock.Now().UnixMilli(),
	}

	data, err := types.EncodeConversation(conv)
	if err != nil {
		return nil, err
	}
	if err := s.graph.PutAck(ctx, types.ConversationMetaPath(convID), data); err != nil {
		return nil, err
	}

	// 自己的私有指针 + 对方的公开收件箱；任一失败不影响会话成立
	if err := s.graph.Put(ctx, types.UserConversationPath(self, convID), data); err != nil {
		logger.Warn("会话指针写入失败", "conversation", log.TruncateID(convID, 8), "error", err)
	}
	entry := &types.InboxEntry{ConversationID: convID, From: self, At: conv.CreatedAt}
	entryData, err := types.EncodeInboxEntry(entry)
	if err == nil {
		if err := s.graph.Put(ctx, types.InboxEntryPath(recipientKey, convID), entryData); err != nil {
			logger.Warn("收件箱通知写入失败", "conversation", log.TruncateID(convID, 8), "error", err)
		}
	}

	s.metrics.GraphWrites.Inc()
	logger.Debug("会话已建立", "conversation", log.TruncateID(convID, 8))
	return conv, nil
}

// loadConversation 读取并校验会话元数据
func (s *Service) loadConversation(ctx context.Context, convID string) (*types.Conversation, error) {
	readCtx, cancel := context.WithTimeout(ctx, s.config.ReadTimeout)
	defer cancel()

	raw, err := s.graph.Get(readCtx, types.ConversationMetaPath(convID))
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	conv, err := types.DecodeConversation(raw)
	if err != nil {
		return nil, err
	}
	if conv.ID != convID {
		return nil, ErrConversationNotFound
	}
	return conv, nil
}

// conversationSecret 解析会话的共享密钥
//
// 从共享图取对方交换公钥做一次协商；密钥对双方确定，结果缓存。
func (s *Service) conversationSecret(ctx context.Context, conv *types.Conversation) ([]byte, error) {
	self := s.identity.PublicKey()
	if !conv.HasParticipant(self) {
		return nil, ErrNotParticipant
	}

	s.mu.Lock()
	if secret, ok := s.secrets[conv.ID]; ok {
		s.mu.Unlock()
		return secret, nil
	}
	s.mu.Unlock()

	// 并发的首次协商合并为一次图读取
	v, err, _ := s.deriving.Do(conv.ID, func() (interface{}, error) {
		readCtx, cancel := context.WithTimeout(ctx, s.config.ReadTimeout)
		defer cancel()

		other := conv.Other(self)
		raw, err := s.graph.Get(readCtx, types.ExchangeKeyPath(other))
		if err != nil {
			if errors.Is(err, interfaces.ErrNotFound) {
				return nil, ErrExchangeKeyNotFound
			}
			return nil, err
		}
		remote, err := crypto.ParseExchangePublicKey(string(raw))
		if err != nil {
			return nil, err
		}
		secret, err := s.identity.SharedSecret(remote)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		s.secrets[conv.ID] = secret
		s.mu.Unlock()
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// Send 加密并发送私信
func (s *Service) Send(ctx context.Context, recipientKey, content string) (*types.PlainDirectMessage, error) {
	if content == "" {
		return nil, ErrEmptyContent
	}

	conv, err := s.Start(ctx, recipientKey)
	if err != nil {
		return nil, err
	}
	secret, err := s.conversationSecret(ctx, conv)
	if err != nil {
		return nil, err
	}

	encrypted, err := crypto.Seal(secret, []byte(content))
	if err != nil {
		return nil, err
	}

	msg := &types.DirectMessage{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		AuthorKey:      s.identity.PublicKey(),
		Encrypted:      encrypted,
		Timestamp:      s.clock.Now().UnixMilli(),
	}
	sig, err := s.identity.SignEnvelope(envelope(msg))
	if err != nil {
		return nil, err
	}
	msg.Signature = sig

	data, err := types.EncodeDirectMessage(msg)
	if err != nil {
		return nil, err
	}
	if err := s.graph.Put(ctx, types.DirectMessagePath(conv.ID, msg.ID), data); err != nil {
		return nil, err
	}

	// 元数据的最后消息时间尽力更新，落后不影响正确性
	conv.LastMessageAt = msg.Timestamp
	if metaData, err := types.EncodeConversation(conv); err == nil {
		if err := s.graph.Put(ctx, types.ConversationMetaPath(conv.ID), metaData); err != nil {
			logger.Debug("会话时间戳更新失败", "conversation", log.TruncateID(conv.ID, 8), "error", err)
		}
	}

	s.metrics.DirectMessagesSent.Inc()
	s.metrics.GraphWrites.Inc()
	logger.Debug("私信已发送", "conversation", log.TruncateID(conv.ID, 8), "id", log.TruncateID(msg.ID, 8))

	return &types.PlainDirectMessage{
		ID:             msg.ID,
		ConversationID: conv.ID,
		AuthorKey:      msg.AuthorKey,
		Content:        content,
		Timestamp:      msg.Timestamp,
	}, nil
}

// open 验签并解密一条私信；任一失败返回 nil
func (s *Service) open(ctx context.Context, conv *types.Conversation, msg *types.DirectMessage) *types.PlainDirectMessage {
	if msg.ConversationID != conv.ID || !conv.HasParticipant(msg.AuthorKey) {
		s.metrics.InboundDropped.Inc()
		return nil
	}
	if !crypto.VerifyEnvelope(msg.AuthorKey, envelope(msg), msg.Signature) {
		s.metrics.VerifyFailures.Inc()
		s.metrics.InboundDropped.Inc()
		logger.Warn("丢弃验签失败的私信",
			"conversation", log.TruncateID(conv.ID, 8),
			"id", log.TruncateID(msg.ID, 8))
		return nil
	}

	secret, err := s.conversationSecret(ctx, conv)
	if err != nil {
		s.metrics.InboundDropped.Inc()
		return nil
	}
	plaintext, err := crypto.Open(secret, msg.Encrypted)
	if err != nil {
		s.metrics.InboundDropped.Inc()
		logger.Warn("丢弃解密失败的私信",
			"conversation", log.TruncateID(conv.ID, 8),
			"id", log.TruncateID(msg.ID, 8))
		return nil
	}

	return &types.PlainDirectMessage{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		AuthorKey:      msg.AuthorKey,
		Content:        string(plaintext),
		Timestamp:      msg.Timestamp,
	}
}

// Subscribe 订阅会话内的新私信
//
// 密文不可变（没有编辑语义），按消息 ID 去重吸收收敛抖动；
// 解密后的明文经限速器按帧节拍冲刷到处理器。
func (s *Service) Subscribe(conversationID string, handler interfaces.DirectMessageHandler) (interfaces.CancelFunc, error) {
	if conversationID == "" {
		return nil, ErrEmptyConversationID
	}
	conv, err := s.loadConversation(context.Background(), conversationID)
	if err != nil {
		return nil, err
	}

	th := throttle.New(func(items []throttle.Item) {
		for _, item := range items {
			handler(item.Value.(*types.PlainDirectMessage))
		}
	}, throttle.WithClock(s.clock))

	var mu sync.Mutex
	delivered := make(map[string]struct{})

	cancelSub, err := s.graph.Subscribe(types.ConversationMessagesPath(conversationID), func(u interfaces.GraphUpdate) {
		msg, err := types.DecodeDirectMessage(u.Value)
		if err != nil {
			return
		}

		mu.Lock()
		if _, ok := delivered[msg.ID]; ok {
			mu.Unlock()
			return
		}
		delivered[msg.ID] = struct{}{}
		mu.Unlock()

		plain := s.open(context.Background(), conv, msg)
		if plain == nil {
			// 失败撤销去重标记，纠正后的重发仍可送达
			mu.Lock()
			delete(delivered, msg.ID)
			mu.Unlock()
			return
		}
		th.Add(plain.ID, plain)
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

// History 解密并返回会话历史，按时间升序最后 limit 条
func (s *Service) History(ctx context.Context, conversationID string, limit int) ([]*types.PlainDirectMessage, error) {
	if conversationID == "" {
		return nil, ErrEmptyConversationID
	}
	conv, err := s.loadConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	scanCtx, cancel := context.WithTimeout(ctx, s.config.ScanTimeout)
	defer cancel()

	var msgs []*types.PlainDirectMessage
	err = s.graph.Scan(scanCtx, types.ConversationMessagesPath(conversationID), func(_ types.Path, value []byte) bool {
		dm, err := types.DecodeDirectMessage(value)
		if err != nil {
			return true
		}
		if plain := s.open(ctx, conv, dm); plain != nil {
			msgs = append(msgs, plain)
		}
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

// Conversations 合并私有指针与公开收件箱两个来源
//
// 指针由自己写入可直接信任；收件箱条目任何人可写，
// 必须对照共享元数据做参与者校验后才采纳。
func (s *Service) Conversations(ctx context.Context) ([]*types.Conversation, error) {
	self := s.identity.PublicKey()
	byID := make(map[string]*types.Conversation)

	scanCtx, cancel := context.WithTimeout(ctx, s.config.ScanTimeout)
	defer cancel()

	err := s.graph.Scan(scanCtx, types.UserConversationsPath(self), func(_ types.Path, value []byte) bool {
		conv, err := types.DecodeConversation(value)
		if err != nil || !conv.HasParticipant(self) {
			return true
		}
		byID[conv.ID] = conv
		return true
	})
	if err != nil {
		return nil, err
	}

	inboxCtx, cancelInbox := context.WithTimeout(ctx, s.config.ScanTimeout)
	defer cancelInbox()

	var pending []string
	err = s.graph.Scan(inboxCtx, types.InboxPath(self), func(_ types.Path, value []byte) bool {
		entry, err := types.DecodeInboxEntry(value)
		if err != nil || entry.ConversationID == "" {
			return true
		}
		if _, ok := byID[entry.ConversationID]; !ok {
			pending = append(pending, entry.ConversationID)
		}
		return true
	})
	if err != nil {
		return nil, err
	}

	for _, convID := range pending {
		conv, err := s.loadConversation(ctx, convID)
		if err != nil {
			// 元数据缺失或伪造的通知：不采纳
			continue
		}
		if !conv.HasParticipant(self) {
			logger.Warn("丢弃参与者校验失败的收件箱条目", "conversation", log.TruncateID(convID, 8))
			continue
		}
		byID[conv.ID] = conv
	}

	result := make([]*types.Conversation, 0, len(byID))
	for _, conv := range byID {
		result = append(result, conv)
	}
	sort.Slice(result, func(i, j int) bool {
		ti, tj := result[i].LastMessageAt, result[j].LastMessageAt
		if ti == 0 {
			ti = result[i].CreatedAt
		}
		if tj == 0 {
			tj = result[j].CreatedAt
		}
		if ti != tj {
			return ti > tj
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}
