package relayhub

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/dechat/go-dechat/internal/graph/wire"
	"github.com/dechat/go-dechat/internal/graph/wiregraph"
	"github.com/dechat/go-dechat/pkg/types"
)

func newTestServer(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := New(prometheus.NewRegistry())
	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		srv.Close()
		_ = hub.Close()
	})
	return hub, srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// dialRaw 直接以线协议连接，绕开客户端封装
func dialRaw(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// TestHub_ReplicatesBetweenClients 测试两个图客户端经中继收敛
func TestHub_ReplicatesBetweenClients(t *testing.T) {
	_, srv := newTestServer(t)
	ctx := context.Background()

	a, err := wiregraph.New([]string{wsURL(srv)})
	require.NoError(t, err)
	defer a.Close()
	b, err := wiregraph.New([]string{wsURL(srv)})
	require.NoError(t, err)
	defer b.Close()

	path := types.NewPath("channels", "general", "messages", "m1")
	require.NoError(t, a.Put(ctx, path, []byte("hi")))

	require.Eventually(t, func() bool {
		got, err := b.Get(context.Background(), path)
		return err == nil && string(got) == "hi"
	}, 2*time.Second, 10*time.Millisecond)
}

// TestHub_HelloReplaysSnapshot 测试 hello 帧触发全量回放
func TestHub_HelloReplaysSnapshot(t *testing.T) {
	_, srv := newTestServer(t)

	writer := dialRaw(t, srv)
	require.NoError(t, writer.WriteJSON(wire.Frame{
		Op: wire.OpPut, ID: "w1", Path: "presence/alice", Value: []byte("online"), State: 100, Ack: true,
	}))
	var ack wire.Frame
	require.NoError(t, writer.ReadJSON(&ack))
	// 自写回显先于回执到达
	for ack.Op != wire.OpAck {
		require.NoError(t, writer.ReadJSON(&ack))
	}
	require.Empty(t, ack.Error)

	reader := dialRaw(t, srv)
	require.NoError(t, reader.WriteJSON(wire.Frame{Op: wire.OpHello}))

	var snap wire.Frame
	require.NoError(t, reader.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, reader.ReadJSON(&snap))
	require.Equal(t, wire.OpUpdate, snap.Op)
	require.Equal(t, "presence/alice", snap.Path)
	require.Equal(t, "online", string(snap.Value))
	require.EqualValues(t, 100, snap.State)
}

// TestHub_LastWriteWins 测试落后状态被丢弃
func TestHub_LastWriteWins(t *testing.T) {
	hub, srv := newTestServer(t)

	conn := dialRaw(t, srv)
	require.NoError(t, conn.WriteJSON(wire.Frame{
		Op: wire.OpPut, ID: "new", Path: "presence/bob", Value: []byte("away"), State: 2000, Ack: true,
	}))
	require.NoError(t, conn.WriteJSON(wire.Frame{
		Op: wire.OpPut, ID: "old", Path: "presence/bob", Value: []byte("online"), State: 1000, Ack: true,
	}))

	acks := 0
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for acks < 2 {
		var f wire.Frame
		require.NoError(t, conn.ReadJSON(&f))
		if f.Op == wire.OpAck {
			require.Empty(t, f.Error)
			acks++
		}
	}

	require.Equal(t, 1, hub.LeafCount())

	// 回放确认胜出者
	reader := dialRaw(t, srv)
	require.NoError(t, reader.WriteJSON(wire.Frame{Op: wire.OpHello}))
	var snap wire.Frame
	require.NoError(t, reader.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, reader.ReadJSON(&snap))
	require.Equal(t, "away", string(snap.Value))
	require.EqualValues(t, 2000, snap.State)
}

// TestHub_InvalidPathRejected 测试路径非法的写入带错误回执
func TestHub_InvalidPathRejected(t *testing.T) {
	hub, srv := newTestServer(t)

	conn := dialRaw(t, srv)
	require.NoError(t, conn.WriteJSON(wire.Frame{
		Op: wire.OpPut, ID: "bad", Path: "", Value: []byte("x"), State: 1, Ack: true,
	}))

	var f wire.Frame
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&f))
	require.Equal(t, wire.OpAck, f.Op)
	require.Equal(t, "bad", f.ID)
	require.NotEmpty(t, f.Error)
	require.Zero(t, hub.LeafCount())
}

// TestHub_ClientCount 测试在线计数随连接增减
func TestHub_ClientCount(t *testing.T) {
	hub, srv := newTestServer(t)

	conn := dialRaw(t, srv)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	_ = conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}
