package voice

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"go.uber.org/multierr"

	"github.com/dechat/go-dechat/pkg/interfaces"
	"github.com/dechat/go-dechat/pkg/types"
)

// relayFrame 与中继服务的 JSON 帧
type relayFrame struct {
	Type     string `json:"type"`
	Channel  string `json:"channel,omitempty"`
	Token    string `json:"token,omitempty"`
	Key      string `json:"key,omitempty"`
	Data     string `json:"data,omitempty"`
	Muted    bool   `json:"muted,omitempty"`
	Speaking bool   `json:"speaking,omitempty"`
	Message  string `json:"message,omitempty"`
}

// 中继帧类型
const (
	relayFrameJoin      = "join"
	relayFrameJoined    = "joined"
	relayFrameOffer     = "offer"
	relayFrameAnswer    = "answer"
	relayFrameCandidate = "candidate"
	relayFrameState     = "state"
	relayFrameSpeaking  = "speaking"
	relayFrameLeave     = "leave"
	relayFrameError     = "error"
)

// relayJoinTimeout 等待中继加入确认的时限
const relayJoinTimeout = 10 * time.Second

// relayEngine 选择性转发媒体引擎
//
// 单条 websocket 连到中继：加入握手、SDP/ICE 协商与发言状态
// 都走这条连接；媒体经一条到中继的 PeerConnection 上下行。
// 名册仍由共享图驱动，中继流只补充发言等低延迟状态。
type relayEngine struct {
	call     *call
	pipeline *audioPipeline
	endpoint string
	token    string

	mu      sync.Mutex
	closed  bool
	conn    *websocket.Conn
	pc      *webrtc.PeerConnection
	pending []webrtc.ICECandidateInit
	remote  bool
}

func newRelayEngine(c *call, mediaProvider interfaces.MediaProvider) *relayEngine {
	return &relayEngine{
		call:     c,
		pipeline: newAudioPipeline(c, mediaProvider),
		endpoint: c.config.RelayEndpoint,
		token:    c.config.RelayToken,
	}
}

func (e *relayEngine) start(ctx context.Context) error {
	if err := e.pipeline.start(); err != nil {
		return err
	}

	dialer := websocket.Dialer{HandshakeTimeout: relayJoinTimeout}
	conn, _, err := dialer.DialContext(ctx, e.endpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRelayUnavailable, err)
	}
	e.conn = conn

	join := relayFrame{
		Type:    relayFrameJoin,
		Channel: e.call.channelID,
		Token:   e.token,
		Key:     e.call.identity.PublicKey(),
	}
	if err := conn.WriteJSON(join); err != nil {
		_ = conn.Close()
		return fmt.Errorf("%w: %v", ErrRelayUnavailable, err)
	}

	// 等加入确认，拒绝即失败
	_ = conn.SetReadDeadline(time.Now().Add(relayJoinTimeout))
	var ack relayFrame
	if err := conn.ReadJSON(&ack); err != nil {
		_ = conn.Close()
		return fmt.Errorf("%w: %v", ErrRelayUnavailable, err)
	}
	if ack.Type != relayFrameJoined {
		_ = conn.Close()
		return fmt.Errorf("%w: %s", ErrRelayUnavailable, ack.Message)
	}
	_ = conn.SetReadDeadline(time.Time{})

	if err := e.negotiate(); err != nil {
		_ = conn.Close()
		return err
	}

	go e.readLoop(conn)
	return nil
}

// negotiate 与中继建立媒体连接：客户端发 offer
func (e *relayEngine) negotiate() error {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: e.call.config.ICEServers})
	if err != nil {
		return err
	}
	e.pc = pc

	if _, err := pc.AddTrack(e.pipeline.track); err != nil {
		return err
	}

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		data, err := json.Marshal(cand.ToJSON())
		if err != nil {
			return
		}
		e.writeFrame(relayFrame{Type: relayFrameCandidate, Data: string(data)})
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateConnected:
			e.call.metrics.VoicePeerConnections.Inc()
			e.call.emit(interfaces.CallEvent{Type: interfaces.CallEventPeerConnected})
		case webrtc.PeerConnectionStateFailed:
			e.call.metrics.VoicePeerConnections.Dec()
			e.call.emit(interfaces.CallEvent{Type: interfaces.CallEventPeerFailed})
		case webrtc.PeerConnectionStateClosed:
			e.call.metrics.VoicePeerConnections.Dec()
		}
	})

	pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		go e.pipeline.playRemote(remote)
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return err
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return err
	}
	data, err := json.Marshal(offer)
	if err != nil {
		return err
	}
	e.writeFrame(relayFrame{Type: relayFrameOffer, Data: string(data)})
	return nil
}

// readLoop 处理中继事件流
func (e *relayEngine) readLoop(conn *websocket.Conn) {
	for {
		var frame relayFrame
		if err := conn.ReadJSON(&frame); err != nil {
			e.mu.Lock()
			closed := e.closed
			e.mu.Unlock()
			if !closed {
				logger.Warn("中继连接中断", "channel", e.call.channelID, "error", err)
				e.call.emit(interfaces.CallEvent{Type: interfaces.CallEventPeerFailed})
			}
			return
		}

		switch frame.Type {
		case relayFrameAnswer:
			var answer webrtc.SessionDescription
			if err := json.Unmarshal([]byte(frame.Data), &answer); err != nil {
				continue
			}
			if err := e.pc.SetRemoteDescription(answer); err != nil {
				logger.Warn("设置中继远端描述失败", "error", err)
				continue
			}
			e.flushPending()
		case relayFrameCandidate:
			var cand webrtc.ICECandidateInit
			if err := json.Unmarshal([]byte(frame.Data), &cand); err != nil {
				continue
			}
			e.addCandidate(cand)
		case relayFrameSpeaking:
			// 发言状态走中继流比图订阅快一拍
			e.call.peerSpeaking(frame.Key, frame.Speaking)
		case relayFrameError:
			logger.Warn("中继报告错误", "message", frame.Message)
		}
	}
}

func (e *relayEngine) flushPending() {
	e.mu.Lock()
	e.remote = true
	pending := e.pending
	e.pending = nil
	e.mu.Unlock()

	for _, cand := range pending {
		if err := e.pc.AddICECandidate(cand); err != nil {
			logger.Debug("应用中继 candidate 失败", "error", err)
		}
	}
}

func (e *relayEngine) addCandidate(cand webrtc.ICECandidateInit) {
	e.mu.Lock()
	if !e.remote {
		e.pending = append(e.pending, cand)
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	if err := e.pc.AddICECandidate(cand); err != nil {
		logger.Debug("应用中继 candidate 失败", "error", err)
	}
}

// writeFrame 串行化 websocket 写入
func (e *relayEngine) writeFrame(frame relayFrame) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.conn == nil {
		return
	}
	if err := e.conn.WriteJSON(frame); err != nil {
		logger.Debug("中继帧写入失败", "type", frame.Type, "error", err)
	}
}

func (e *relayEngine) setMuted(muted bool) {
	e.pipeline.setMuted(muted)
	e.writeFrame(relayFrame{Type: relayFrameState, Muted: muted})
}

// peerJoined 中继拓扑下无需对端直连，媒体由中继转发
func (e *relayEngine) peerJoined(p *types.VoiceParticipant) {}

// peerLeft 同上，对端离开由中继负责收敛
func (e *relayEngine) peerLeft(publicKey string) {}

func (e *relayEngine) setInputDevice(deviceID string) error {
	return e.pipeline.setInputDevice(deviceID)
}

func (e *relayEngine) setOutputDevice(deviceID string) error {
	return e.pipeline.setOutputDevice(deviceID)
}

func (e *relayEngine) close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	conn := e.conn
	e.conn = nil
	pc := e.pc
	e.mu.Unlock()

	var errs error
	if conn != nil {
		_ = conn.WriteJSON(relayFrame{Type: relayFrameLeave})
		errs = multierr.Append(errs, conn.Close())
	}
	if pc != nil {
		errs = multierr.Append(errs, pc.Close())
	}
	errs = multierr.Append(errs, e.pipeline.close())
	return errs
}
