// Package metrics 提供协议层计数指标
//
// 指标是环境设施：注册器可注入，默认不注册（计数器仍然工作，
// 只是不暴露）。命名遵循 prometheus 惯例。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 协议层指标集合
type Metrics struct {
	// MessagesSent 已发送频道消息数
	MessagesSent prometheus.Counter

	// DirectMessagesSent 已发送私信数
	DirectMessagesSent prometheus.Counter

	// InboundDropped 入站丢弃数（解码失败、校验失败等）
	InboundDropped prometheus.Counter

	// VerifyFailures 签名/解密校验失败数
	VerifyFailures prometheus.Counter

	// GraphWrites 图写入次数
	GraphWrites prometheus.Counter

	// VoicePeerConnections 当前语音对端连接数
	VoicePeerConnections prometheus.Gauge
}

// New 创建指标集合并注册到 reg（reg 为 nil 时只创建不注册）
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		MessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dechat",
			Name:      "messages_sent_total",
			Help:      "Total channel messages sent.",
		}),
		DirectMessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dechat",
			Name:      "direct_messages_sent_total",
			Help:      "Total direct messages sent.",
		}),
		InboundDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dechat",
			Name:      "inbound_dropped_total",
			Help:      "Total inbound records dropped before delivery.",
		}),
		VerifyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dechat",
			Name:      "verify_failures_total",
			Help:      "Total signature or decryption verification failures.",
		}),
		GraphWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dechat",
			Name:      "graph_writes_total",
			Help:      "Total writes issued to the replicated graph.",
		}),
		VoicePeerConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dechat",
			Name:      "voice_peer_connections",
			Help:      "Current voice mesh peer connections.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.MessagesSent,
			m.DirectMessagesSent,
			m.InboundDropped,
			m.VerifyFailures,
			m.GraphWrites,
			m.VoicePeerConnections,
		)
	}
	return m
}

// Nop 返回未注册的指标集合（默认）
func Nop() *Metrics {
	return New(nil)
}
