package wiregraph

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/dechat/go-dechat/internal/graph/wire"
	"github.com/dechat/go-dechat/pkg/interfaces"
	"github.com/dechat/go-dechat/pkg/types"
)

// testHub 测试用最小中继：叶子级 LWW 合并 + 全连接扇出
type testHub struct {
	upgrader websocket.Upgrader

	mu     sync.Mutex
	leaves map[string]wire.Frame
	conns  map[*websocket.Conn]bool
}

func newTestHub() *testHub {
	return &testHub{
		leaves: make(map[string]wire.Frame),
		conns:  make(map[*websocket.Conn]bool),
	}
}

func (h *testHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	h.mu.Lock()
	h.conns[conn] = true
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.conns, conn)
		h.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		var f wire.Frame
		if err := conn.ReadJSON(&f); err != nil {
			return
		}
		// 所有写都在 h.mu 下串行，规避并发写同一连接
		switch f.Op {
		case wire.OpHello:
			h.mu.Lock()
			for _, lf := range h.leaves {
				_ = conn.WriteJSON(lf)
			}
			h.mu.Unlock()
		case wire.OpPut:
			h.mu.Lock()
			existing, ok := h.leaves[f.Path]
			if !ok || existing.State <= f.State {
				h.leaves[f.Path] = wire.Frame{Op: wire.OpUpdate, Path: f.Path, Value: f.Value, State: f.State}
			}
			update := h.leaves[f.Path]
			for c := range h.conns {
				_ = c.WriteJSON(update)
			}
			if f.Ack {
				_ = conn.WriteJSON(wire.Frame{Op: wire.OpAck, ID: f.ID})
			}
			h.mu.Unlock()
		}
	}
}

// closeAll 掐断所有连接，模拟中继侧断线
func (h *testHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.conns {
		_ = c.Close()
	}
}

func (h *testHub) connCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func newTestGraph(t *testing.T, endpoint string, opts ...Option) *Graph {
	t.Helper()
	base := []Option{WithBackoff(10*time.Millisecond, 50*time.Millisecond)}
	g, err := New([]string{endpoint}, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close() })
	return g
}

// TestNew_RequiresEndpoints 测试端点校验
func TestNew_RequiresEndpoints(t *testing.T) {
	_, err := New(nil)
	require.ErrorIs(t, err, ErrNoEndpoints)
}

// TestGraph_PutReplicates 测试写入经中继复制到另一客户端
func TestGraph_PutReplicates(t *testing.T) {
	srv := httptest.NewServer(newTestHub())
	defer srv.Close()
	ctx := context.Background()

	a := newTestGraph(t, wsURL(srv))
	b := newTestGraph(t, wsURL(srv))

	path := types.NewPath("channels", "general", "messages", "m1")
	require.NoError(t, a.Put(ctx, path, []byte("hello")))

	require.Eventually(t, func() bool {
		got, err := b.Get(context.Background(), path)
		return err == nil && string(got) == "hello"
	}, 2*time.Second, 10*time.Millisecond)
}

// TestGraph_HelloReplaysSnapshot 测试后来者经快照回放取得既有叶子
func TestGraph_HelloReplaysSnapshot(t *testing.T) {
	srv := httptest.NewServer(newTestHub())
	defer srv.Close()
	ctx := context.Background()

	a := newTestGraph(t, wsURL(srv))
	path := types.NewPath("presence", "alice")
	require.NoError(t, a.PutAck(ctx, path, []byte("online")))

	// 写入确认后才建第二个客户端
	b := newTestGraph(t, wsURL(srv))
	require.Eventually(t, func() bool {
		got, err := b.Get(context.Background(), path)
		return err == nil && string(got) == "online"
	}, 2*time.Second, 10*time.Millisecond)
}

// TestGraph_PutAckConfirmed 测试带确认写入
func TestGraph_PutAckConfirmed(t *testing.T) {
	srv := httptest.NewServer(newTestHub())
	defer srv.Close()

	g := newTestGraph(t, wsURL(srv))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, g.PutAck(ctx, types.NewPath("presence", "bob"), []byte("online")))
}

// TestGraph_PutAckTimeoutOffline 测试断线时确认超时且本地仍收敛
func TestGraph_PutAckTimeoutOffline(t *testing.T) {
	g := newTestGraph(t, "ws://127.0.0.1:1", WithAckTimeout(50*time.Millisecond))
	ctx := context.Background()

	path := types.NewPath("presence", "carol")
	err := g.PutAck(ctx, path, []byte("online"))
	require.ErrorIs(t, err, interfaces.ErrTimeout)

	// 乐观合并不受网络影响
	got, err := g.Get(ctx, path)
	require.NoError(t, err)
	require.Equal(t, "online", string(got))
}

// TestGraph_GetWaitsForConvergence 测试读取在期限内等待收敛
func TestGraph_GetWaitsForConvergence(t *testing.T) {
	srv := httptest.NewServer(newTestHub())
	defer srv.Close()

	a := newTestGraph(t, wsURL(srv))
	b := newTestGraph(t, wsURL(srv))

	path := types.NewPath("channels", "general", "messages", "late")
	go func() {
		time.Sleep(100 * time.Millisecond)
		_ = a.Put(context.Background(), path, []byte("arrived"))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	got, err := b.Get(ctx, path)
	require.NoError(t, err)
	require.Equal(t, "arrived", string(got))
}

// TestGraph_GetNotFoundOnDeadline 测试期限内未收敛返回未找到
func TestGraph_GetNotFoundOnDeadline(t *testing.T) {
	srv := httptest.NewServer(newTestHub())
	defer srv.Close()

	g := newTestGraph(t, wsURL(srv))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := g.Get(ctx, types.NewPath("missing", "leaf"))
	require.ErrorIs(t, err, interfaces.ErrNotFound)
}

// TestGraph_ReconnectDelivers 测试断线重连后写入仍然送达
func TestGraph_ReconnectDelivers(t *testing.T) {
	hub := newTestHub()
	srv := httptest.NewServer(hub)
	defer srv.Close()
	ctx := context.Background()

	a := newTestGraph(t, wsURL(srv))
	b := newTestGraph(t, wsURL(srv))
	require.Eventually(t, func() bool { return hub.connCount() == 2 }, 2*time.Second, 10*time.Millisecond)

	hub.closeAll()
	path := types.NewPath("channels", "general", "messages", "after-drop")
	require.NoError(t, a.Put(ctx, path, []byte("survived")))

	require.Eventually(t, func() bool {
		got, err := b.Get(context.Background(), path)
		return err == nil && string(got) == "survived"
	}, 3*time.Second, 10*time.Millisecond)
}

// TestGraph_SubscribeSeesRemoteWrites 测试订阅收到远端写入
func TestGraph_SubscribeSeesRemoteWrites(t *testing.T) {
	srv := httptest.NewServer(newTestHub())
	defer srv.Close()
	ctx := context.Background()

	a := newTestGraph(t, wsURL(srv))
	b := newTestGraph(t, wsURL(srv))

	var mu sync.Mutex
	var seen []string
	cancel, err := b.Subscribe(types.NewPath("typing", "general"), func(u interfaces.GraphUpdate) {
		mu.Lock()
		seen = append(seen, string(u.Value))
		mu.Unlock()
	})
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, a.Put(ctx, types.NewPath("typing", "general", "alice"), []byte("typing")))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) > 0 && seen[len(seen)-1] == "typing"
	}, 2*time.Second, 10*time.Millisecond)
}

// TestGraph_CloseFailsPendingAck 测试关闭时未决确认立即失败
func TestGraph_CloseFailsPendingAck(t *testing.T) {
	g, err := New([]string{"ws://127.0.0.1:1"},
		WithBackoff(10*time.Millisecond, 50*time.Millisecond),
		WithAckTimeout(10*time.Second))
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		errCh <- g.PutAck(context.Background(), types.NewPath("presence", "dave"), []byte("online"))
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, g.Close())

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, interfaces.ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("等待确认未随关闭结束")
	}
}
