package voice

import (
	"math"
	"time"
)

// speakingDetector 基于帧能量的发言检测
//
// 每帧算 RMS 换算 dBFS 与固定阈值比较；上升沿立即生效，
// 下降沿保持一段时间再生效，抑制词间停顿造成的抖动。
type speakingDetector struct {
	thresholdDB float64
	hold        time.Duration

	speaking  bool
	lastAbove time.Time
}

func newSpeakingDetector(thresholdDB float64, hold time.Duration) *speakingDetector {
	return &speakingDetector{thresholdDB: thresholdDB, hold: hold}
}

// frameDBFS 计算一帧采样的 dBFS 能量
func frameDBFS(frame []int16) float64 {
	if len(frame) == 0 {
		return math.Inf(-1)
	}
	var sum float64
	for _, s := range frame {
		v := float64(s) / math.MaxInt16
		sum += v * v
	}
	rms := math.Sqrt(sum / float64(len(frame)))
	if rms == 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(rms)
}

// update 处理一帧，返回当前发言状态与是否发生边沿
func (d *speakingDetector) update(frame []int16, now time.Time) (speaking, edged bool) {
	above := frameDBFS(frame) >= d.thresholdDB
	if above {
		d.lastAbove = now
		if !d.speaking {
			d.speaking = true
			return true, true
		}
		return true, false
	}

	if d.speaking && now.Sub(d.lastAbove) >= d.hold {
		d.speaking = false
		return false, true
	}
	return d.speaking, false
}
