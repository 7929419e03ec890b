package voice

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pion/webrtc/v4"
	"go.uber.org/multierr"

	"github.com/dechat/go-dechat/pkg/interfaces"
	"github.com/dechat/go-dechat/pkg/lib/log"
	"github.com/dechat/go-dechat/pkg/types"
)

// meshEngine 全网状 WebRTC 媒体引擎
//
// 每个远端一条 PeerConnection。双方约定字典序较大的公钥发起
// offer，避免双向同时发起的眩光冲突。早于远端描述到达的 ICE
// candidate 入队，SetRemoteDescription 之后统一冲刷。
type meshEngine struct {
	call     *call
	sig      *signaler
	pipeline *audioPipeline

	mu        sync.Mutex
	closed    bool
	peers     map[string]*meshPeer
	cancelSig interfaces.CancelFunc
}

// meshPeer 单个远端的连接状态机
type meshPeer struct {
	key string
	pc  *webrtc.PeerConnection

	mu        sync.Mutex
	remoteSet bool
	pending   []webrtc.ICECandidateInit
}

func newMeshEngine(c *call, mediaProvider interfaces.MediaProvider) *meshEngine {
	return &meshEngine{
		call: c,
		sig: &signaler{
			graph:    c.graph,
			identity: c.identity,
			clock:    c.clock,
			channel:  c.channelID,
			since:    c.clock.Now().UnixMilli(),
		},
		pipeline: newAudioPipeline(c, mediaProvider),
		peers:    make(map[string]*meshPeer),
	}
}

func (e *meshEngine) start(ctx context.Context) error {
	if err := e.pipeline.start(); err != nil {
		return err
	}

	cancel, err := e.sig.subscribe(e.onSignal)
	if err != nil {
		return err
	}
	e.cancelSig = cancel
	return nil
}

// isOfferer 字典序较大的公钥发起 offer
func (e *meshEngine) isOfferer(remoteKey string) bool {
	return e.call.identity.PublicKey() > remoteKey
}

func (e *meshEngine) peerJoined(p *types.VoiceParticipant) {
	if !e.isOfferer(p.PublicKey) {
		// 等对方的 offer
		return
	}

	peer, created, err := e.ensurePeer(p.PublicKey)
	if err != nil {
		logger.Warn("建立对端连接失败", "peer", log.TruncateID(p.PublicKey, 8), "error", err)
		return
	}
	if !created {
		return
	}

	offer, err := peer.pc.CreateOffer(nil)
	if err != nil {
		logger.Warn("生成 offer 失败", "peer", log.TruncateID(p.PublicKey, 8), "error", err)
		return
	}
	if err := peer.pc.SetLocalDescription(offer); err != nil {
		logger.Warn("设置本地描述失败", "peer", log.TruncateID(p.PublicKey, 8), "error", err)
		return
	}
	data, err := json.Marshal(offer)
	if err != nil {
		return
	}
	if err := e.sig.send(context.Background(), p.PublicKey, types.SignalOffer, string(data)); err != nil {
		logger.Warn("发送 offer 失败", "peer", log.TruncateID(p.PublicKey, 8), "error", err)
	}
}

func (e *meshEngine) peerLeft(publicKey string) {
	e.mu.Lock()
	peer, ok := e.peers[publicKey]
	if ok {
		delete(e.peers, publicKey)
	}
	e.mu.Unlock()

	if ok {
		if err := peer.pc.Close(); err != nil {
			logger.Debug("关闭对端连接失败", "peer", log.TruncateID(publicKey, 8), "error", err)
		}
	}
}

// ensurePeer 取得或创建对端连接；created 表示本次新建
func (e *meshEngine) ensurePeer(remoteKey string) (*meshPeer, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, false, ErrCallClosed
	}
	if peer, ok := e.peers[remoteKey]; ok {
		return peer, false, nil
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: e.call.config.ICEServers})
	if err != nil {
		return nil, false, err
	}
	if _, err := pc.AddTrack(e.pipeline.track); err != nil {
		_ = pc.Close()
		return nil, false, err
	}

	peer := &meshPeer{key: remoteKey, pc: pc}
	e.peers[remoteKey] = peer

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		data, err := json.Marshal(cand.ToJSON())
		if err != nil {
			return
		}
		if err := e.sig.send(context.Background(), remoteKey, types.SignalCandidate, string(data)); err != nil {
			logger.Debug("发送 candidate 失败", "peer", log.TruncateID(remoteKey, 8), "error", err)
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateConnected:
			e.call.metrics.VoicePeerConnections.Inc()
			e.call.emit(interfaces.CallEvent{Type: interfaces.CallEventPeerConnected, PeerKey: remoteKey})
		case webrtc.PeerConnectionStateFailed:
			e.call.metrics.VoicePeerConnections.Dec()
			e.call.emit(interfaces.CallEvent{Type: interfaces.CallEventPeerFailed, PeerKey: remoteKey})
		case webrtc.PeerConnectionStateClosed:
			e.call.metrics.VoicePeerConnections.Dec()
		}
	})

	pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		go e.pipeline.playRemote(remote)
	})

	return peer, true, nil
}

// onSignal 信令路由
func (e *meshEngine) onSignal(env *types.SignalingEnvelope) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	switch env.Type {
	case types.SignalOffer:
		e.onOffer(env)
	case types.SignalAnswer:
		e.onAnswer(env)
	case types.SignalCandidate:
		e.onCandidate(env)
	}
}

func (e *meshEngine) onOffer(env *types.SignalingEnvelope) {
	var offer webrtc.SessionDescription
	if err := json.Unmarshal([]byte(env.Data), &offer); err != nil {
		return
	}

	peer, _, err := e.ensurePeer(env.From)
	if err != nil {
		return
	}
	if err := peer.pc.SetRemoteDescription(offer); err != nil {
		logger.Warn("设置远端描述失败", "peer", log.TruncateID(env.From, 8), "error", err)
		return
	}
	peer.flushPending()

	answer, err := peer.pc.CreateAnswer(nil)
	if err != nil {
		return
	}
	if err := peer.pc.SetLocalDescription(answer); err != nil {
		return
	}
	data, err := json.Marshal(answer)
	if err != nil {
		return
	}
	if err := e.sig.send(context.Background(), env.From, types.SignalAnswer, string(data)); err != nil {
		logger.Warn("发送 answer 失败", "peer", log.TruncateID(env.From, 8), "error", err)
	}
}

func (e *meshEngine) onAnswer(env *types.SignalingEnvelope) {
	e.mu.Lock()
	peer, ok := e.peers[env.From]
	e.mu.Unlock()
	if !ok {
		return
	}

	var answer webrtc.SessionDescription
	if err := json.Unmarshal([]byte(env.Data), &answer); err != nil {
		return
	}
	if err := peer.pc.SetRemoteDescription(answer); err != nil {
		logger.Warn("设置远端描述失败", "peer", log.TruncateID(env.From, 8), "error", err)
		return
	}
	peer.flushPending()
}

func (e *meshEngine) onCandidate(env *types.SignalingEnvelope) {
	// candidate 可能先于 offer 到达，按需建状态机把它排进队列
	peer, _, err := e.ensurePeer(env.From)
	if err != nil {
		return
	}

	var cand webrtc.ICECandidateInit
	if err := json.Unmarshal([]byte(env.Data), &cand); err != nil {
		return
	}
	peer.addCandidate(cand)
}

// flushPending 远端描述就位后冲刷排队的 candidate
func (p *meshPeer) flushPending() {
	p.mu.Lock()
	p.remoteSet = true
	pending := p.pending
	p.pending = nil
	p.mu.Unlock()

	for _, cand := range pending {
		if err := p.pc.AddICECandidate(cand); err != nil {
			logger.Debug("应用排队 candidate 失败", "peer", log.TruncateID(p.key, 8), "error", err)
		}
	}
}

func (p *meshPeer) addCandidate(cand webrtc.ICECandidateInit) {
	p.mu.Lock()
	if !p.remoteSet {
		p.pending = append(p.pending, cand)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	if err := p.pc.AddICECandidate(cand); err != nil {
		logger.Debug("应用 candidate 失败", "peer", log.TruncateID(p.key, 8), "error", err)
	}
}

func (e *meshEngine) setMuted(muted bool) {
	e.pipeline.setMuted(muted)
}

func (e *meshEngine) setInputDevice(deviceID string) error {
	return e.pipeline.setInputDevice(deviceID)
}

func (e *meshEngine) setOutputDevice(deviceID string) error {
	return e.pipeline.setOutputDevice(deviceID)
}

func (e *meshEngine) close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	peers := e.peers
	e.peers = make(map[string]*meshPeer)
	cancelSig := e.cancelSig
	e.mu.Unlock()

	if cancelSig != nil {
		cancelSig()
	}

	errs := e.pipeline.close()
	for _, peer := range peers {
		errs = multierr.Append(errs, peer.pc.Close())
	}
	return errs
}
