package audio

import "encoding/binary"

// Samples decodes little-endian int16 PCM. A trailing odd byte is ignored.
func Samples(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out
}

// PCM encodes samples as little-endian int16 bytes.
func PCM(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// Peak returns the largest absolute sample value in pcm. The magnitude of
// -32768 is reported as 32768.
func Peak(pcm []byte) int {
	peak := 0
	for i := 0; i+1 < len(pcm); i += 2 {
		v := int(int16(binary.LittleEndian.Uint16(pcm[i:])))
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	return peak
}

// Float32 converts interleaved int16 PCM to mono samples normalised to
// [-1, 1), averaging the channels of each frame.
func Float32(pcm []byte, channels int) []float32 {
	if channels < 1 {
		channels = 1
	}

	out := make([]float32, len(pcm)/(2*channels))
	for i := range out {
		var sum float32
		for ch := 0; ch < channels; ch++ {
			idx := (i*channels + ch) * 2
			sum += float32(int16(binary.LittleEndian.Uint16(pcm[idx:]))) / 32768
		}
		out[i] = sum / float32(channels)
	}
	return out
}
