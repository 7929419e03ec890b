package channel

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dechat/go-dechat/internal/core/identity"
	"github.com/dechat/go-dechat/internal/graph/memgraph"
	"github.com/dechat/go-dechat/pkg/interfaces"
	"github.com/dechat/go-dechat/pkg/types"
)

// reactCollect 按消息记录最新反应视图
type reactCollect struct {
	mu    sync.Mutex
	views map[string]types.ReactionMap
}

func newReactCollect() *reactCollect {
	return &reactCollect{views: make(map[string]types.ReactionMap)}
}

func (c *reactCollect) handler(messageID string, reactions types.ReactionMap) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.views[messageID] = reactions
}

func (c *reactCollect) view(messageID string) types.ReactionMap {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.views[messageID]
}

// TestService_ReactionsSnapshot 测试反应全量视图重建
func TestService_ReactionsSnapshot(t *testing.T) {
	g := memgraph.New()
	defer g.Close()
	ctx := context.Background()

	alice, err := identity.Generate()
	require.NoError(t, err)
	bob, err := identity.Generate()
	require.NoError(t, err)

	svcA, err := New(Dep{Graph: g, Identity: alice})
	require.NoError(t, err)
	svcB, err := New(Dep{Graph: g, Identity: bob})
	require.NoError(t, err)

	sent, err := svcA.Send(ctx, "general", interfaces.Draft{Content: "react to me"})
	require.NoError(t, err)

	require.NoError(t, svcA.AddReaction(ctx, sent.ID, "👍"))
	require.NoError(t, svcB.AddReaction(ctx, sent.ID, "👍"))
	require.NoError(t, svcB.AddReaction(ctx, sent.ID, "🎉"))

	view, err := svcA.Reactions(ctx, sent.ID)
	require.NoError(t, err)
	require.Len(t, view["👍"], 2)
	require.Len(t, view["🎉"], 1)
	require.Contains(t, view["👍"], alice.PublicKey())
	require.Contains(t, view["👍"], bob.PublicKey())

	// 移除后视图收缩，叶子本身保留（墓碑）
	require.NoError(t, svcB.RemoveReaction(ctx, sent.ID, "👍"))
	view, err = svcA.Reactions(ctx, sent.ID)
	require.NoError(t, err)
	require.Equal(t, []string{alice.PublicKey()}, view["👍"])

	raw, err := g.Get(ctx, types.ReactionPath(sent.ID, "👍", bob.PublicKey()))
	require.NoError(t, err)
	r, err := types.DecodeReaction(raw)
	require.NoError(t, err)
	require.False(t, r.Active())
}

// TestService_ReactionIdempotent 测试重复添加不改变视图
func TestService_ReactionIdempotent(t *testing.T) {
	svc, _ := newTestService(t, Dep{})
	ctx := context.Background()

	sent, err := svc.Send(ctx, "general", interfaces.Draft{Content: "x"})
	require.NoError(t, err)

	require.NoError(t, svc.AddReaction(ctx, sent.ID, "👍"))
	require.NoError(t, svc.AddReaction(ctx, sent.ID, "👍"))

	view, err := svc.Reactions(ctx, sent.ID)
	require.NoError(t, err)
	require.Len(t, view["👍"], 1)
}

// TestService_ReactionValidation 测试参数校验
func TestService_ReactionValidation(t *testing.T) {
	svc, _ := newTestService(t, Dep{})
	ctx := context.Background()

	require.ErrorIs(t, svc.AddReaction(ctx, "", "👍"), ErrEmptyMessageID)
	require.ErrorIs(t, svc.AddReaction(ctx, "m1", ""), ErrEmptyEmoji)
	_, err := svc.Reactions(ctx, "")
	require.ErrorIs(t, err, ErrEmptyMessageID)
	_, err = svc.SubscribeReactions("", nil)
	require.ErrorIs(t, err, ErrEmptyChannelID)
}

// TestService_SubscribeReactions 测试频道级反应订阅
func TestService_SubscribeReactions(t *testing.T) {
	svc, _ := newTestService(t, Dep{})
	ctx := context.Background()

	sent, err := svc.Send(ctx, "general", interfaces.Draft{Content: "watch me"})
	require.NoError(t, err)

	c := newReactCollect()
	cancel, err := svc.SubscribeReactions("general", c.handler)
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, svc.AddReaction(ctx, sent.ID, "🔥"))

	require.Eventually(t, func() bool {
		v := c.view(sent.ID)
		return v != nil && len(v["🔥"]) == 1
	}, time.Second, 5*time.Millisecond)

	// 订阅后新发的消息也被覆盖
	later, err := svc.Send(ctx, "general", interfaces.Draft{Content: "me too"})
	require.NoError(t, err)
	require.NoError(t, svc.AddReaction(ctx, later.ID, "👀"))

	require.Eventually(t, func() bool {
		v := c.view(later.ID)
		return v != nil && len(v["👀"]) == 1
	}, time.Second, 5*time.Millisecond)

	// 移除触发重建，视图收缩
	require.NoError(t, svc.RemoveReaction(ctx, sent.ID, "🔥"))
	require.Eventually(t, func() bool {
		v := c.view(sent.ID)
		return v != nil && len(v["🔥"]) == 0
	}, time.Second, 5*time.Millisecond)
}
