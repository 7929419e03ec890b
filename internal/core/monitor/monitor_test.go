package monitor

import (
	"context"
	"errors"
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

// flakyGraph 可注入确认失败的图封装
type flakyGraph struct {
	*memgraph.Graph

	mu   sync.Mutex
	fail error
}

func (f *flakyGraph) setFail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = err
}

func (f *flakyGraph) PutAck(ctx context.Context, path types.Path, value []byte) error {
	f.mu.Lock()
	fail := f.fail
	f.mu.Unlock()
	if fail != nil {
		return fail
	}
	return f.Graph.PutAck(ctx, path, value)
}

func newTestMonitor(t *testing.T, mock *clock.Mock) (*Monitor, *flakyGraph) {
	t.Helper()
	g := &flakyGraph{Graph: memgraph.New()}
	t.Cleanup(func() { _ = g.Close() })

	id, err := identity.Generate()
	require.NoError(t, err)

	m, err := New(Dep{Graph: g, Identity: id, Clock: mock})
	require.NoError(t, err)
	return m, g
}

// TestMonitor_StartStop 测试生命周期保护
func TestMonitor_StartStop(t *testing.T) {
	m, _ := newTestMonitor(t, clock.NewMock())

	require.NoError(t, m.Start())
	require.ErrorIs(t, m.Start(), ErrAlreadyStarted)
	require.NoError(t, m.Stop())
	require.ErrorIs(t, m.Stop(), ErrNotStarted)
}

// TestMonitor_ConnectedProbe 测试探测成功保持 connected
func TestMonitor_ConnectedProbe(t *testing.T) {
	mock := clock.NewMock()
	m, g := newTestMonitor(t, mock)

	require.NoError(t, m.Start())
	defer m.Stop()

	// 启动时立即探测一次，写入落在探测路径上
	require.Eventually(t, func() bool {
		_, err := g.Get(context.Background(), types.PingPath(m.identity.PublicKey()))
		return err == nil
	}, time.Second, time.Millisecond)
	require.Equal(t, interfaces.ConnectionConnected, m.State())
}

// TestMonitor_FailuresEscalate 测试失败逐级升级并在恢复后回落
func TestMonitor_FailuresEscalate(t *testing.T) {
	mock := clock.NewMock()
	m, g := newTestMonitor(t, mock)

	events, cancel := m.Watch()
	defer cancel()

	g.setFail(errors.New("ack lost"))
	require.NoError(t, m.Start())
	defer m.Stop()

	// 第一次失败 → degraded
	require.Eventually(t, func() bool {
		return m.State() == interfaces.ConnectionDegraded
	}, time.Second, time.Millisecond)

	ev := <-events
	require.Equal(t, interfaces.ConnectionDegraded, ev.State)

	// 连续失败到阈值 → disconnected
	time.Sleep(10 * time.Millisecond) // 等探测循环就位
	for i := 0; i < m.config.FailThreshold; i++ {
		mock.Add(m.config.ProbeInterval)
		time.Sleep(5 * time.Millisecond)
	}
	require.Eventually(t, func() bool {
		return m.State() == interfaces.ConnectionDisconnected
	}, time.Second, time.Millisecond)

	// 恢复后回到 connected，失败计数清零
	g.setFail(nil)
	mock.Add(m.config.ProbeInterval)
	require.Eventually(t, func() bool {
		return m.State() == interfaces.ConnectionConnected
	}, time.Second, time.Millisecond)
}

// TestMonitor_WatchCancel 测试取消观察
func TestMonitor_WatchCancel(t *testing.T) {
	m, _ := newTestMonitor(t, clock.NewMock())

	events, cancel := m.Watch()
	cancel()
	cancel() // 幂等

	_, open := <-events
	require.False(t, open)
}
