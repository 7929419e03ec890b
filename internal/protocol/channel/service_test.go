package channel

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dechat/go-dechat/internal/core/identity"
	"github.com/dechat/go-dechat/internal/graph/memgraph"
	"github.com/dechat/go-dechat/pkg/interfaces"
	"github.com/dechat/go-dechat/pkg/types"
)

// allowAll 放行一切管理操作的协作方
type allowAll struct{}

func (allowAll) CanModerate(string, string) bool { return true }

// recordAudit 收集审计条目
type recordAudit struct {
	mu      sync.Mutex
	entries []interfaces.AuditEntry
}

func (a *recordAudit) Record(e interfaces.AuditEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
}

func (a *recordAudit) all() []interfaces.AuditEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]interfaces.AuditEntry(nil), a.entries...)
}

// msgCollect 线程安全的消息收集器
type msgCollect struct {
	mu   sync.Mutex
	msgs []*types.Message
}

func (c *msgCollect) handler(m *types.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, m)
}

func (c *msgCollect) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

func (c *msgCollect) last() *types.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.msgs[len(c.msgs)-1]
}

func newTestService(t *testing.T, dep Dep) (*Service, *memgraph.Graph) {
	t.Helper()
	g := memgraph.New()
	t.Cleanup(func() { _ = g.Close() })

	if dep.Graph == nil {
		dep.Graph = g
	}
	if dep.Identity == nil {
		id, err := identity.Generate()
		require.NoError(t, err)
		dep.Identity = id
	}

	svc, err := New(dep, WithThrottleInterval(time.Millisecond))
	require.NoError(t, err)
	return svc, g
}

// TestService_SendAndSubscribe 测试发送与订阅送达
func TestService_SendAndSubscribe(t *testing.T) {
	svc, _ := newTestService(t, Dep{})
	ctx := context.Background()

	c := &msgCollect{}
	cancel, err := svc.SubscribeMessages("general", c.handler)
	require.NoError(t, err)
	defer cancel()

	sent, err := svc.Send(ctx, "general", interfaces.Draft{Content: "hello"})
	require.NoError(t, err)
	require.NotEmpty(t, sent.ID)
	require.NotEmpty(t, sent.Signature)
	require.Equal(t, types.MessageTypeText, sent.Type)

	require.Eventually(t, func() bool { return c.len() == 1 }, time.Second, time.Millisecond)
	got := c.last()
	require.Equal(t, sent.ID, got.ID)
	require.Equal(t, "hello", got.Content)
}

// TestService_SendValidation 测试发送参数校验
func TestService_SendValidation(t *testing.T) {
	svc, _ := newTestService(t, Dep{})
	ctx := context.Background()

	_, err := svc.Send(ctx, "", interfaces.Draft{Content: "x"})
	require.ErrorIs(t, err, ErrEmptyChannelID)

	_, err = svc.Send(ctx, "general", interfaces.Draft{})
	require.ErrorIs(t, err, ErrEmptyContent)
}

// TestService_ReadOnlyWithoutIdentity 测试无身份时写操作被拒绝
func TestService_ReadOnlyWithoutIdentity(t *testing.T) {
	g := memgraph.New()
	defer g.Close()

	svc, err := New(Dep{Graph: g})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = svc.Send(ctx, "general", interfaces.Draft{Content: "x"})
	require.ErrorIs(t, err, interfaces.ErrAuthenticationRequired)

	err = svc.AddReaction(ctx, "m1", "👍")
	require.ErrorIs(t, err, interfaces.ErrAuthenticationRequired)
}

// TestService_DedupConvergenceChatter 测试收敛抖动只送达一次
func TestService_DedupConvergenceChatter(t *testing.T) {
	svc, g := newTestService(t, Dep{})
	ctx := context.Background()

	c := &msgCollect{}
	cancel, err := svc.SubscribeMessages("general", c.handler)
	require.NoError(t, err)
	defer cancel()

	sent, err := svc.Send(ctx, "general", interfaces.Draft{Content: "once"})
	require.NoError(t, err)

	// 等值重放模拟多个远端副本的收敛推送
	raw, err := types.EncodeMessage(sent)
	require.NoError(t, err)
	path := types.MessagePath("general", sent.ID)
	require.NoError(t, g.ApplyRemote(path, raw, sent.Timestamp))
	require.NoError(t, g.ApplyRemote(path, raw, sent.Timestamp))

	require.Eventually(t, func() bool { return c.len() >= 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 1, c.len())
}

// TestService_TamperedMessageDropped 测试被篡改的消息永不送达
func TestService_TamperedMessageDropped(t *testing.T) {
	svc, g := newTestService(t, Dep{})
	ctx := context.Background()

	c := &msgCollect{}
	cancel, err := svc.SubscribeMessages("general", c.handler)
	require.NoError(t, err)
	defer cancel()

	sent, err := svc.Send(ctx, "general", interfaces.Draft{Content: "original"})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return c.len() == 1 }, time.Second, time.Millisecond)

	// 改内容不改签名
	var m map[string]any
	raw, _ := types.EncodeMessage(sent)
	require.NoError(t, json.Unmarshal(raw, &m))
	m["content"] = "forged"
	forged, err := json.Marshal(m)
	require.NoError(t, err)
	require.NoError(t, g.ApplyRemote(types.MessagePath("general", sent.ID), forged, sent.Timestamp+1))

	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 1, c.len())
	require.Equal(t, "original", c.last().Content)
}

// TestService_EditFlow 测试编辑：内容更新、历史追加、重新签名
func TestService_EditFlow(t *testing.T) {
	svc, _ := newTestService(t, Dep{})
	ctx := context.Background()

	c := &msgCollect{}
	cancel, err := svc.SubscribeMessages("general", c.handler)
	require.NoError(t, err)
	defer cancel()

	sent, err := svc.Send(ctx, "general", interfaces.Draft{Content: "hello"})
	require.NoError(t, err)

	edited, err := svc.Edit(ctx, "general", sent.ID, "hello world")
	require.NoError(t, err)
	require.True(t, edited.Edited)
	require.Equal(t, "hello world", edited.Content)
	require.Len(t, edited.EditHistory, 1)
	require.Equal(t, "hello", edited.EditHistory[0].Content)
	require.NotEqual(t, sent.Signature, edited.Signature)

	// 编辑状态即时可感
	require.Eventually(t, func() bool {
		return c.len() > 0 && c.last().Edited
	}, time.Second, time.Millisecond)
}

// TestService_EditAuthorOnly 测试编辑只限作者本人
func TestService_EditAuthorOnly(t *testing.T) {
	g := memgraph.New()
	defer g.Close()
	ctx := context.Background()

	alice, err := identity.Generate()
	require.NoError(t, err)
	bob, err := identity.Generate()
	require.NoError(t, err)

	svcA, err := New(Dep{Graph: g, Identity: alice})
	require.NoError(t, err)
	svcB, err := New(Dep{Graph: g, Identity: bob, Moderation: allowAll{}})
	require.NoError(t, err)

	sent, err := svcA.Send(ctx, "general", interfaces.Draft{Content: "mine"})
	require.NoError(t, err)

	// 管理权限不放行编辑，只放行删除
	_, err = svcB.Edit(ctx, "general", sent.ID, "not yours")
	require.ErrorIs(t, err, interfaces.ErrAuthorizationDenied)
}

// TestService_EditDeletedRejected 测试删除后不可再编辑
func TestService_EditDeletedRejected(t *testing.T) {
	svc, _ := newTestService(t, Dep{})
	ctx := context.Background()

	sent, err := svc.Send(ctx, "general", interfaces.Draft{Content: "gone soon"})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, "general", sent.ID))

	_, err = svc.Edit(ctx, "general", sent.ID, "resurrect")
	require.ErrorIs(t, err, ErrMessageDeleted)
}

// TestService_DeleteTombstone 测试软删除：占位内容、附件与历史清空
func TestService_DeleteTombstone(t *testing.T) {
	svc, g := newTestService(t, Dep{})
	ctx := context.Background()

	sent, err := svc.Send(ctx, "general", interfaces.Draft{
		Content:     "secret",
		Attachments: []types.Attachment{{ContentID: "bafy-a", Name: "a.png"}},
	})
	require.NoError(t, err)
	_, err = svc.Edit(ctx, "general", sent.ID, "secret v2")
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, "general", sent.ID))

	raw, err := g.Get(ctx, types.MessagePath("general", sent.ID))
	require.NoError(t, err)
	got, err := types.DecodeMessage(raw)
	require.NoError(t, err)
	require.True(t, got.IsDeleted())
	require.Equal(t, types.DeletedPlaceholder, got.Content)
	require.Empty(t, got.Attachments)
	require.Empty(t, got.EditHistory)
}

// TestService_ModeratorDeleteAudited 测试管理删除产生审计条目
func TestService_ModeratorDeleteAudited(t *testing.T) {
	g := memgraph.New()
	defer g.Close()
	ctx := context.Background()

	alice, err := identity.Generate()
	require.NoError(t, err)
	modID, err := identity.Generate()
	require.NoError(t, err)

	svcA, err := New(Dep{Graph: g, Identity: alice})
	require.NoError(t, err)

	audit := &recordAudit{}
	svcM, err := New(Dep{Graph: g, Identity: modID, Moderation: allowAll{}, Audit: audit})
	require.NoError(t, err)

	sent, err := svcA.Send(ctx, "general", interfaces.Draft{Content: "spam"})
	require.NoError(t, err)
	require.NoError(t, svcM.Delete(ctx, "general", sent.ID))

	entries := audit.all()
	require.Len(t, entries, 1)
	require.Equal(t, "message.delete", entries[0].Action)
	require.Equal(t, modID.PublicKey(), entries[0].ActorKey)
	require.Equal(t, alice.PublicKey(), entries[0].TargetKey)
}

// TestService_ModeratorDeleteObservable 测试管理删除的墓碑对读取端可见
//
// 管理删除的记录由执行者签名，订阅与历史都必须据墓碑切换验签
// 公钥后放行，否则删除在其他端永远不可感。
func TestService_ModeratorDeleteObservable(t *testing.T) {
	g := memgraph.New()
	defer g.Close()
	ctx := context.Background()

	alice, err := identity.Generate()
	require.NoError(t, err)
	modID, err := identity.Generate()
	require.NoError(t, err)
	reader, err := identity.Generate()
	require.NoError(t, err)

	svcA, err := New(Dep{Graph: g, Identity: alice})
	require.NoError(t, err)
	svcM, err := New(Dep{Graph: g, Identity: modID, Moderation: allowAll{}})
	require.NoError(t, err)
	svcR, err := New(Dep{Graph: g, Identity: reader, Moderation: allowAll{}},
		WithThrottleInterval(time.Millisecond))
	require.NoError(t, err)

	c := &msgCollect{}
	cancel, err := svcR.SubscribeMessages("general", c.handler)
	require.NoError(t, err)
	defer cancel()

	sent, err := svcA.Send(ctx, "general", interfaces.Draft{Content: "spam"})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return c.len() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, svcM.Delete(ctx, "general", sent.ID))
	require.Eventually(t, func() bool {
		return c.len() >= 2 && c.last().IsDeleted()
	}, time.Second, time.Millisecond)

	got := c.last()
	require.Equal(t, types.DeletedPlaceholder, got.Content)
	require.Equal(t, modID.PublicKey(), got.Deleted.By)

	// 历史扫描同样放行墓碑记录
	msgs, err := svcR.History(ctx, "general", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.True(t, msgs[0].IsDeleted())

	// 未配置管理权限的读取端不信任执行者的签名
	svcPlain, err := New(Dep{Graph: g, Identity: reader})
	require.NoError(t, err)
	plain, err := svcPlain.History(ctx, "general", 0)
	require.NoError(t, err)
	require.Empty(t, plain)
}

// TestService_DeleteDeniedWithoutModeration 测试无管理权限时删除他人消息被拒绝
func TestService_DeleteDeniedWithoutModeration(t *testing.T) {
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

	sent, err := svcA.Send(ctx, "general", interfaces.Draft{Content: "mine"})
	require.NoError(t, err)
	require.ErrorIs(t, svcB.Delete(ctx, "general", sent.ID), interfaces.ErrAuthorizationDenied)
}

// TestService_History 测试历史扫描：升序、尾部截断、跳过验签失败
func TestService_History(t *testing.T) {
	svc, g := newTestService(t, Dep{})
	ctx := context.Background()

	var ids []string
	for _, content := range []string{"one", "two", "three"} {
		m, err := svc.Send(ctx, "general", interfaces.Draft{Content: content})
		require.NoError(t, err)
		ids = append(ids, m.ID)
		time.Sleep(2 * time.Millisecond) // 时间戳单调
	}

	// 塞入一条伪造记录，历史应跳过
	forged := &types.Message{
		ID: "forged", ChannelID: "general", AuthorKey: svc.identity.PublicKey(),
		Content: "fake", Timestamp: svc.clock.Now().UnixMilli(),
		Type: types.MessageTypeText, Signature: "bogus",
		Version: types.MessageRecordVersion,
	}
	raw, err := types.EncodeMessage(forged)
	require.NoError(t, err)
	require.NoError(t, g.ApplyRemote(types.MessagePath("general", "forged"), raw, forged.Timestamp))

	msgs, err := svc.History(ctx, "general", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	require.Equal(t, "one", msgs[0].Content)
	require.Equal(t, "three", msgs[2].Content)

	tail, err := svc.History(ctx, "general", 2)
	require.NoError(t, err)
	require.Len(t, tail, 2)
	require.Equal(t, ids[1], tail[0].ID)
	require.Equal(t, ids[2], tail[1].ID)
}
