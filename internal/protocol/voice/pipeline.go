package voice

import (
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"go.uber.org/multierr"

	"github.com/dechat/go-dechat/pkg/interfaces"
)

// audioPipeline 两级共用的本地媒体路径
//
// 采集 → 发言检测 → µ-law 编码 → 本地轨；远端轨 → 解码 → 播放。
// 网状与中继引擎只在连接拓扑上不同，媒体路径完全一致。
type audioPipeline struct {
	call     *call
	provider interfaces.MediaProvider
	track    *webrtc.TrackLocalStaticSample

	mu       sync.Mutex
	capture  interfaces.AudioSource
	playback interfaces.AudioSink
	muted    bool
	pumpStop chan struct{}
}

func newAudioPipeline(c *call, provider interfaces.MediaProvider) *audioPipeline {
	return &audioPipeline{call: c, provider: provider}
}

// start 建轨并打开默认设备
func (p *audioPipeline) start() error {
	track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{
		MimeType:  webrtc.MimeTypePCMU,
		ClockRate: wireSampleRate,
		Channels:  1,
	}, "audio", "dechat-voice")
	if err != nil {
		return err
	}
	p.track = track

	if p.provider == nil {
		return nil
	}
	if err := p.setInputDevice(""); err != nil {
		return err
	}
	return p.setOutputDevice("")
}

// capturePump 采集循环：发言检测 + 编码发送
//
// 静音时继续读帧喂检测器，只是不再写轨。
func (p *audioPipeline) capturePump(source interfaces.AudioSource, stop chan struct{}) {
	detector := newSpeakingDetector(p.call.config.SpeakingThresholdDB, p.call.config.SpeakingHold)
	frame := make([]int16, captureFrameSize)

	for {
		select {
		case <-stop:
			return
		default:
		}

		n, err := source.ReadFrame(frame)
		if err != nil {
			logger.Debug("采集读取失败", "error", err)
			return
		}
		samples := frame[:n]

		if speaking, edged := detector.update(samples, p.call.clock.Now()); edged {
			p.call.setSpeaking(speaking)
		}

		p.mu.Lock()
		muted := p.muted
		p.mu.Unlock()
		if muted {
			continue
		}

		payload := mulawEncode(downsample(samples))
		if err := p.track.WriteSample(media.Sample{Data: payload, Duration: 20 * time.Millisecond}); err != nil {
			logger.Debug("写入音频样本失败", "error", err)
		}
	}
}

// playRemote 解码远端轨并送入播放设备
func (p *audioPipeline) playRemote(remote *webrtc.TrackRemote) {
	for {
		pkt, _, err := remote.ReadRTP()
		if err != nil {
			return
		}

		p.mu.Lock()
		sink := p.playback
		p.mu.Unlock()
		if sink == nil || p.call.deafened() {
			continue
		}

		pcm := upsample(mulawDecode(pkt.Payload))
		if _, err := sink.WriteFrame(pcm); err != nil {
			logger.Debug("播放写入失败", "error", err)
			return
		}
	}
}

func (p *audioPipeline) setMuted(muted bool) {
	p.mu.Lock()
	p.muted = muted
	p.mu.Unlock()
}

// setInputDevice 切换采集设备，重启采集泵
func (p *audioPipeline) setInputDevice(deviceID string) error {
	if p.provider == nil {
		return nil
	}
	source, err := p.provider.OpenCapture(deviceID)
	if err != nil {
		return err
	}

	p.mu.Lock()
	if p.pumpStop != nil {
		close(p.pumpStop)
	}
	if p.capture != nil {
		_ = p.capture.Close()
	}
	p.capture = source
	stop := make(chan struct{})
	p.pumpStop = stop
	p.mu.Unlock()

	go p.capturePump(source, stop)
	return nil
}

// setOutputDevice 切换播放设备
func (p *audioPipeline) setOutputDevice(deviceID string) error {
	if p.provider == nil {
		return nil
	}
	sink, err := p.provider.OpenPlayback(deviceID)
	if err != nil {
		return err
	}

	p.mu.Lock()
	if p.playback != nil {
		_ = p.playback.Close()
	}
	p.playback = sink
	p.mu.Unlock()
	return nil
}

func (p *audioPipeline) close() error {
	p.mu.Lock()
	if p.pumpStop != nil {
		close(p.pumpStop)
		p.pumpStop = nil
	}
	capture, playback := p.capture, p.playback
	p.capture, p.playback = nil, nil
	p.mu.Unlock()

	var errs error
	if capture != nil {
		errs = multierr.Append(errs, capture.Close())
	}
	if playback != nil {
		errs = multierr.Append(errs, playback.Close())
	}
	return errs
}
