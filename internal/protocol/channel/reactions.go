package channel

import (
	"context"
	"sync"

	"github.com/dechat/go-dechat/internal/graph/throttle"
	"github.com/dechat/go-dechat/pkg/interfaces"
	"github.com/dechat/go-dechat/pkg/lib/log"
	"github.com/dechat/go-dechat/pkg/types"
)

// AddReaction 添加反应
//
// 每个 (message, emoji, user) 是独立叶子，并发反应者之间没有
// 可丢失的复合值。
func (s *Service) AddReaction(ctx context.Context, messageID, emoji string) error {
	return s.writeReaction(ctx, messageID, emoji, false)
}

// RemoveReaction 移除反应（写墓碑，叶子保留）
func (s *Service) RemoveReaction(ctx context.Context, messageID, emoji string) error {
	return s.writeReaction(ctx, messageID, emoji, true)
}

func (s *Service) writeReaction(ctx context.Context, messageID, emoji string, remove bool) error {
	if messageID == "" {
		return ErrEmptyMessageID
	}
	if emoji == "" {
		return ErrEmptyEmoji
	}
	if s.identity == nil {
		return interfaces.ErrAuthenticationRequired
	}

	userKey := s.identity.PublicKey()
	now := s.clock.Now().UnixMilli()
	r := &types.Reaction{
		MessageID: messageID,
		Emoji:     emoji,
		UserKey:   userKey,
		Timestamp: now,
	}
	if remove {
		r.Removed = &types.Tombstone{At: now, By: userKey}
	}

	data, err := types.EncodeReaction(r)
	if err != nil {
		return err
	}
	if err := s.graph.Put(ctx, types.ReactionPath(messageID, emoji, userKey), data); err != nil {
		return err
	}
	s.metrics.GraphWrites.Inc()
	return nil
}

// Reactions 从所有存活叶子重建一条消息的完整反应视图
func (s *Service) Reactions(ctx context.Context, messageID string) (types.ReactionMap, error) {
	if messageID == "" {
		return nil, ErrEmptyMessageID
	}

	scanCtx, cancel := context.WithTimeout(ctx, s.config.ScanTimeout)
	defer cancel()

	result := make(types.ReactionMap)
	err := s.graph.Scan(scanCtx, types.MessageReactionsPath(messageID), func(_ types.Path, value []byte) bool {
		r, err := types.DecodeReaction(value)
		if err != nil || !r.Active() {
			return true
		}
		result[r.Emoji] = append(result[r.Emoji], r.UserKey)
		return true
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// SubscribeReactions 订阅频道内所有已知消息的反应变化
//
// 反应叶子不含频道维度，先经消息订阅发现消息 ID，再对每条消息
// 懒惰展开反应订阅；任何叶子变化按消息去抖后重建整张反应表送达。
func (s *Service) SubscribeReactions(channelID string, handler interfaces.ReactionHandler) (interfaces.CancelFunc, error) {
	if channelID == "" {
		return nil, ErrEmptyChannelID
	}

	fan := &reactionFanout{svc: s, handler: handler, cancels: make(map[string]interfaces.CancelFunc)}
	fan.debounce = throttle.New(fan.flush,
		throttle.WithClock(s.clock),
		throttle.WithInterval(s.config.ReactionDebounce))

	cancelMsgs, err := s.graph.Subscribe(types.ChannelMessagesPath(channelID), func(u interfaces.GraphUpdate) {
		msg, err := types.DecodeMessage(u.Value)
		if err != nil {
			return
		}
		fan.attach(msg.ID)
	})
	if err != nil {
		fan.debounce.Close()
		return nil, err
	}

	return func() {
		cancelMsgs()
		fan.close()
	}, nil
}

// reactionFanout 懒惰展开的反应订阅集合
type reactionFanout struct {
	svc      *Service
	handler  interfaces.ReactionHandler
	debounce *throttle.Throttle

	mu      sync.Mutex
	cancels map[string]interfaces.CancelFunc
	closed  bool
}

// attach 为新出现的消息展开反应订阅（幂等）
func (f *reactionFanout) attach(messageID string) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	if _, ok := f.cancels[messageID]; ok {
		f.mu.Unlock()
		return
	}
	// 先占位，避免并发重复展开
	f.cancels[messageID] = func() {}
	f.mu.Unlock()

	cancel, err := f.svc.graph.Subscribe(types.MessageReactionsPath(messageID), func(interfaces.GraphUpdate) {
		f.debounce.Add(messageID, messageID)
	})
	if err != nil {
		logger.Warn("反应订阅失败", "message", log.TruncateID(messageID, 8), "error", err)
		return
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		cancel()
		return
	}
	f.cancels[messageID] = cancel
	f.mu.Unlock()
}

// flush 去抖窗口到点：对每条有变化的消息重建完整视图
func (f *reactionFanout) flush(items []throttle.Item) {
	for _, item := range items {
		messageID := item.Key
		reactions, err := f.svc.Reactions(context.Background(), messageID)
		if err != nil {
			logger.Debug("重建反应视图失败", "message", log.TruncateID(messageID, 8), "error", err)
			continue
		}
		f.handler(messageID, reactions)
	}
}

func (f *reactionFanout) close() {
	f.mu.Lock()
	f.closed = true
	cancels := f.cancels
	f.cancels = nil
	f.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	f.debounce.Close()
}
