package voice

// 媒体路径使用 G.711 µ-law（PCMU）：无需外部编码器依赖，
// 任何 WebRTC 栈都必须支持。采集按 48kHz 单声道 PCM 进入，
// 先抽取到 8kHz 再做 µ-law 压缩；播放方向反之。

const (
	// captureSampleRate 采集采样率
	captureSampleRate = 48000

	// wireSampleRate PCMU 线上采样率
	wireSampleRate = 8000

	// decimation 48kHz → 8kHz 的抽取因子
	decimation = captureSampleRate / wireSampleRate

	// frameDuration20ms 20ms 帧的采集采样数
	captureFrameSize = captureSampleRate / 50

	// wireFrameSize 20ms 帧的线上采样数
	wireFrameSize = wireSampleRate / 50

	mulawBias = 0x84
	mulawClip = 32635
)

// downsample 简单抽取降采样（每 decimation 个采样取一个）
func downsample(in []int16) []int16 {
	out := make([]int16, 0, len(in)/decimation)
	for i := 0; i < len(in); i += decimation {
		out = append(out, in[i])
	}
	return out
}

// upsample 采样保持升采样
func upsample(in []int16) []int16 {
	out := make([]int16, 0, len(in)*decimation)
	for _, s := range in {
		for i := 0; i < decimation; i++ {
			out = append(out, s)
		}
	}
	return out
}

// mulawEncode 线性 PCM → µ-law
func mulawEncode(in []int16) []byte {
	out := make([]byte, len(in))
	for i, sample := range in {
		out[i] = linearToMulaw(sample)
	}
	return out
}

// mulawDecode µ-law → 线性 PCM
func mulawDecode(in []byte) []int16 {
	out := make([]int16, len(in))
	for i, b := range in {
		out[i] = mulawToLinear(b)
	}
	return out
}

func linearToMulaw(sample int16) byte {
	sign := byte(0)
	s := int32(sample)
	if s < 0 {
		s = -s
		sign = 0x80
	}
	if s > mulawClip {
		s = mulawClip
	}
	s += mulawBias

	exponent := byte(7)
	for mask := int32(0x4000); exponent > 0 && s&mask == 0; mask >>= 1 {
		exponent--
	}
	mantissa := byte((s >> (exponent + 3)) & 0x0F)
	return ^(sign | (exponent << 4) | mantissa)
}

func mulawToLinear(b byte) int16 {
	b = ^b
	sign := b & 0x80
	exponent := (b >> 4) & 0x07
	mantissa := b & 0x0F
	s := (int32(mantissa)<<3 + mulawBias) << exponent
	s -= mulawBias
	if sign != 0 {
		s = -s
	}
	return int16(s)
}
