package interfaces

import "time"

// ConnectionState 与共享图的整体连通状态
type ConnectionState string

// 连通状态常量
const (
	// ConnectionConnected 连接正常
	ConnectionConnected ConnectionState = "connected"

	// ConnectionDegraded 往返探测时延异常或偶发失败
	ConnectionDegraded ConnectionState = "degraded"

	// ConnectionDisconnected 连续探测失败
	ConnectionDisconnected ConnectionState = "disconnected"
)

// ConnectionEvent 连通状态事件
type ConnectionEvent struct {
	// State 当前状态
	State ConnectionState

	// RTT 最近一次探测往返时延（失败时为 0）
	RTT time.Duration

	// At 事件时间
	At time.Time
}

// ConnectionMonitor 连通性监视器
//
// 通过周期性图往返探测推断连通性，独立于任何上层协议。
// 状态降级时消费方应暂停乐观成功假设，但各协议继续排队写入
// （基底会在重连后补发）。
type ConnectionMonitor interface {
	// State 当前状态
	State() ConnectionState

	// RTT 最近一次成功探测的往返时延
	RTT() time.Duration

	// Watch 订阅状态变化
	Watch() (<-chan ConnectionEvent, CancelFunc)
}
