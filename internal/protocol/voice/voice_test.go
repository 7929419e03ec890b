package voice

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/dechat/go-dechat/internal/core/identity"
	"github.com/dechat/go-dechat/internal/graph/memgraph"
	"github.com/dechat/go-dechat/pkg/interfaces"
	"github.com/dechat/go-dechat/pkg/types"
)

func newTestManager(t *testing.T, g interfaces.Graph, clk clock.Clock, opts ...Option) *Manager {
	t.Helper()
	id, err := identity.Generate()
	require.NoError(t, err)

	opts = append([]Option{WithICEServers(nil)}, opts...)
	m, err := NewManager(Dep{Graph: g, Identity: id, Clock: clk}, opts...)
	require.NoError(t, err)
	return m
}

// seedParticipant 向名册写入一条远端参与者记录
func seedParticipant(t *testing.T, g interfaces.Graph, channelID, key string, heartbeat int64) {
	t.Helper()
	p := &types.VoiceParticipant{PublicKey: key, JoinedAt: heartbeat, Heartbeat: heartbeat}
	data, err := types.EncodeVoiceParticipant(p)
	require.NoError(t, err)
	require.NoError(t, g.Put(context.Background(), types.VoiceParticipantPath(channelID, key), data))
}

// waitEvent 等待指定类型的通话事件
func waitEvent(t *testing.T, events <-chan interfaces.CallEvent, typ interfaces.CallEventType) interfaces.CallEvent {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatalf("event channel closed while waiting for %s", typ)
			}
			if ev.Type == typ {
				return ev
			}
		case <-deadline:
			t.Fatalf("timeout waiting for event %s", typ)
		}
	}
}

// TestSelectTier 测试层级选择
func TestSelectTier(t *testing.T) {
	g := memgraph.New()
	defer g.Close()

	m := newTestManager(t, g, nil)

	tier, fallback := m.selectTier(3)
	require.Equal(t, types.TierMesh, tier)
	require.False(t, fallback)

	// 容量已满且无中继：回退网状并告警
	tier, fallback = m.selectTier(m.config.MeshCapacity)
	require.Equal(t, types.TierMesh, tier)
	require.True(t, fallback)

	withRelay := newTestManager(t, g, nil, WithRelay("wss://relay.example", "token"))
	tier, fallback = withRelay.selectTier(withRelay.config.MeshCapacity)
	require.Equal(t, types.TierRelay, tier)
	require.False(t, fallback)
}

// TestOffererAntisymmetry 测试 offer 发起方约定的反对称性
func TestOffererAntisymmetry(t *testing.T) {
	g := memgraph.New()
	defer g.Close()

	a := newTestManager(t, g, nil)
	b := newTestManager(t, g, nil)

	callA := newCall("general", types.TierMesh, g, a.identity, a.metrics, a.clock, a.config)
	callB := newCall("general", types.TierMesh, g, b.identity, b.metrics, b.clock, b.config)
	engineA := newMeshEngine(callA, nil)
	engineB := newMeshEngine(callB, nil)

	// 任意一对身份恰有一方发起
	require.NotEqual(t,
		engineA.isOfferer(b.identity.PublicKey()),
		engineB.isOfferer(a.identity.PublicKey()))
}

// TestManager_JoinAndLeave 测试加入/离开生命周期
func TestManager_JoinAndLeave(t *testing.T) {
	g := memgraph.New()
	defer g.Close()
	ctx := context.Background()

	m := newTestManager(t, g, nil)
	call, err := m.Join(ctx, "general")
	require.NoError(t, err)
	require.Equal(t, "general", call.Channel())
	require.Equal(t, types.TierMesh, call.Tier())

	ev := waitEvent(t, call.Events(), interfaces.CallEventTierSelected)
	require.Equal(t, types.TierMesh, ev.Tier)

	// 自己的名册记录已写入
	raw, err := g.Get(ctx, types.VoiceParticipantPath("general", m.identity.PublicKey()))
	require.NoError(t, err)
	p, err := types.DecodeVoiceParticipant(raw)
	require.NoError(t, err)
	require.False(t, p.HasLeft())

	// 离开写墓碑，重复离开报错
	require.NoError(t, call.Leave(ctx))
	require.ErrorIs(t, call.Leave(ctx), ErrCallClosed)

	raw, err = g.Get(ctx, types.VoiceParticipantPath("general", m.identity.PublicKey()))
	require.NoError(t, err)
	p, err = types.DecodeVoiceParticipant(raw)
	require.NoError(t, err)
	require.True(t, p.HasLeft())
}

// TestManager_CapacityFallback 测试容量满且无中继时的回退
func TestManager_CapacityFallback(t *testing.T) {
	g := memgraph.New()
	defer g.Close()
	ctx := context.Background()

	m := newTestManager(t, g, nil)
	now := m.clock.Now().UnixMilli()
	for i := 0; i < m.config.MeshCapacity; i++ {
		seedParticipant(t, g, "crowded", string(rune('a'+i))+"-peer", now)
	}

	call, err := m.Join(ctx, "crowded")
	require.NoError(t, err)
	defer call.Leave(ctx)

	require.Equal(t, types.TierMesh, call.Tier())
	waitEvent(t, call.Events(), interfaces.CallEventCapacityFallback)
}

// TestManager_StaleExcludedFromCount 测试心跳超限者不计入容量
func TestManager_StaleExcludedFromCount(t *testing.T) {
	g := memgraph.New()
	defer g.Close()

	mock := clock.NewMock()
	mock.Add(time.Hour)
	m := newTestManager(t, g, mock)

	stale := mock.Now().Add(-2 * m.config.StaleBound).UnixMilli()
	for i := 0; i < m.config.MeshCapacity+2; i++ {
		seedParticipant(t, g, "ghost-town", string(rune('a'+i))+"-peer", stale)
	}

	count, err := m.liveCount(context.Background(), "ghost-town")
	require.NoError(t, err)
	require.Zero(t, count)
}

// TestCall_PeerJoinAndStaleDeparture 测试名册事件与心跳超限离开
func TestCall_PeerJoinAndStaleDeparture(t *testing.T) {
	g := memgraph.New()
	defer g.Close()
	ctx := context.Background()

	mock := clock.NewMock()
	mock.Add(time.Hour)
	m := newTestManager(t, g, mock)

	call, err := m.Join(ctx, "general")
	require.NoError(t, err)
	defer call.Leave(ctx)

	seedParticipant(t, g, "general", "remote-peer", mock.Now().UnixMilli())
	ev := waitEvent(t, call.Events(), interfaces.CallEventPeerJoined)
	require.Equal(t, "remote-peer", ev.PeerKey)
	require.Len(t, call.Participants(), 2)

	// 远端失联：越过心跳上限后的补偿扫描判定离开
	time.Sleep(10 * time.Millisecond) // 等扫描循环就位
	mock.Add(m.config.StaleBound + m.config.RescanInterval)
	ev = waitEvent(t, call.Events(), interfaces.CallEventPeerLeft)
	require.Equal(t, "remote-peer", ev.PeerKey)
	require.Len(t, call.Participants(), 1)
}

// TestCall_MuteDeafen 测试静音与拒听
func TestCall_MuteDeafen(t *testing.T) {
	g := memgraph.New()
	defer g.Close()
	ctx := context.Background()

	m := newTestManager(t, g, nil)
	call, err := m.Join(ctx, "general")
	require.NoError(t, err)
	defer call.Leave(ctx)

	require.NoError(t, call.SetDeafened(ctx, true))

	raw, err := g.Get(ctx, types.VoiceParticipantPath("general", m.identity.PublicKey()))
	require.NoError(t, err)
	p, err := types.DecodeVoiceParticipant(raw)
	require.NoError(t, err)
	require.True(t, p.Deafened)
	require.True(t, p.Muted) // 拒听隐含静音
}

// TestCall_ServerMuteCommand 测试管理静音命令由目标自行执行
func TestCall_ServerMuteCommand(t *testing.T) {
	g := memgraph.New()
	defer g.Close()
	ctx := context.Background()

	moderator := newTestManager(t, g, nil)
	target := newTestManager(t, g, nil)

	modCall, err := moderator.Join(ctx, "general")
	require.NoError(t, err)
	defer modCall.Leave(ctx)

	targetCall, err := target.Join(ctx, "general")
	require.NoError(t, err)
	defer targetCall.Leave(ctx)

	require.NoError(t, modCall.ServerMute(ctx, target.identity.PublicKey(), true))

	ev := waitEvent(t, targetCall.Events(), interfaces.CallEventCommand)
	require.Equal(t, types.CommandServerMute, ev.Command.Type)
	require.Equal(t, moderator.identity.PublicKey(), ev.Command.Issuer)

	// 目标执行后把状态写回名册
	require.Eventually(t, func() bool {
		raw, err := g.Get(ctx, types.VoiceParticipantPath("general", target.identity.PublicKey()))
		if err != nil {
			return false
		}
		p, err := types.DecodeVoiceParticipant(raw)
		return err == nil && p.ServerMuted
	}, 2*time.Second, 5*time.Millisecond)
}

// TestCall_LeaveConcurrentEmit 测试离开与事件推送的并发安全
func TestCall_LeaveConcurrentEmit(t *testing.T) {
	g := memgraph.New()
	defer g.Close()
	ctx := context.Background()

	m := newTestManager(t, g, nil)
	joined, err := m.Join(ctx, "general")
	require.NoError(t, err)
	vc := joined.(*call)

	// 推送与拆除并发；置位与发送在同一把锁下互斥
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			vc.emit(interfaces.CallEvent{Type: interfaces.CallEventSpeaking, Speaking: i%2 == 0})
		}
	}()
	require.NoError(t, joined.Leave(ctx))
	<-done

	// 通道已关闭，残余事件可正常排干
	for range joined.Events() {
	}
}

// TestSignaler_AppendOnlyAndFiltered 测试信令追加写与频道过滤
func TestSignaler_AppendOnlyAndFiltered(t *testing.T) {
	g := memgraph.New()
	defer g.Close()
	ctx := context.Background()

	alice, err := identity.Generate()
	require.NoError(t, err)
	bob, err := identity.Generate()
	require.NoError(t, err)

	sigA := &signaler{graph: g, identity: alice, clock: clock.New(), channel: "general"}
	sigB := &signaler{graph: g, identity: bob, clock: clock.New(), channel: "general"}
	sigOther := &signaler{graph: g, identity: alice, clock: clock.New(), channel: "elsewhere"}

	var mu sync.Mutex
	var got []*types.SignalingEnvelope
	cancel, err := sigB.subscribe(func(env *types.SignalingEnvelope) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, env)
	})
	require.NoError(t, err)
	defer cancel()

	// 多条 candidate 各占一个叶子，全部送达
	require.NoError(t, sigA.send(ctx, bob.PublicKey(), types.SignalCandidate, "cand-1"))
	require.NoError(t, sigA.send(ctx, bob.PublicKey(), types.SignalCandidate, "cand-2"))
	// 其他频道的信令被过滤
	require.NoError(t, sigOther.send(ctx, bob.PublicKey(), types.SignalOffer, "sdp"))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, time.Second, time.Millisecond)
}

// TestSignaler_RejoinSkipsPriorSession 测试重进通话不回放旧会话的信令
func TestSignaler_RejoinSkipsPriorSession(t *testing.T) {
	g := memgraph.New()
	defer g.Close()
	ctx := context.Background()

	alice, err := identity.Generate()
	require.NoError(t, err)
	bob, err := identity.Generate()
	require.NoError(t, err)

	mock := clock.NewMock()
	mock.Add(time.Hour)
	sigA := &signaler{graph: g, identity: alice, clock: mock, channel: "general"}

	// 上一次会话遗留的 offer 叶子
	require.NoError(t, sigA.send(ctx, bob.PublicKey(), types.SignalOffer, "stale-sdp"))

	// bob 在残留写入之后才加入
	mock.Add(time.Minute)
	sigB := &signaler{graph: g, identity: bob, clock: mock, channel: "general",
		since: mock.Now().UnixMilli()}

	var mu sync.Mutex
	var got []*types.SignalingEnvelope
	cancel, err := sigB.subscribe(func(env *types.SignalingEnvelope) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, env)
	})
	require.NoError(t, err)
	defer cancel()

	mock.Add(time.Minute)
	require.NoError(t, sigA.send(ctx, bob.PublicKey(), types.SignalOffer, "fresh-sdp"))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1 && got[0].Data == "fresh-sdp"
	}, time.Second, time.Millisecond)

	// 残留信封始终不透出
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
}

// TestSpeakingDetector 测试发言边沿与保持
func TestSpeakingDetector(t *testing.T) {
	d := newSpeakingDetector(-50, 300*time.Millisecond)
	now := time.Unix(0, 0)

	loud := make([]int16, 960)
	for i := range loud {
		loud[i] = int16(20000 * math.Sin(float64(i)/10))
	}
	quiet := make([]int16, 960)

	speaking, edged := d.update(loud, now)
	require.True(t, speaking)
	require.True(t, edged)

	// 词间停顿短于保持时间，不掉边沿
	speaking, edged = d.update(quiet, now.Add(100*time.Millisecond))
	require.True(t, speaking)
	require.False(t, edged)

	// 静默超过保持时间才转为停止
	speaking, edged = d.update(quiet, now.Add(500*time.Millisecond))
	require.False(t, speaking)
	require.True(t, edged)
}

// TestMulawRoundTrip 测试 µ-law 编解码与重采样
func TestMulawRoundTrip(t *testing.T) {
	in := []int16{0, 100, -100, 8000, -8000, 30000, -30000}
	out := mulawDecode(mulawEncode(in))
	require.Len(t, out, len(in))
	for i := range in {
		diff := int32(in[i]) - int32(out[i])
		if diff < 0 {
			diff = -diff
		}
		// µ-law 是有损压缩，误差与幅度成正比
		bound := int32(in[i])/16 + 64
		if bound < 0 {
			bound = -bound
		}
		require.LessOrEqual(t, diff, bound, "sample %d", i)
	}

	frame := make([]int16, captureFrameSize)
	down := downsample(frame)
	require.Len(t, down, wireFrameSize)
	require.Len(t, upsample(down), captureFrameSize)
}
