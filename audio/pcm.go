package audio

import (
	"encoding/binary"
	"fmt"
)

const pcm16Scale = 32768.0

// PCM16ToFloat32 appends src, normalised to [-1.0, 1.0), to dst.
func PCM16ToFloat32(dst []float32, src []int16) []float32 {
	for _, s := range src {
		dst = append(dst, float32(s)/pcm16Scale)
	}
	return dst
}

// DecodePCM16LE converts little-endian PCM16 bytes to normalised samples.
func DecodePCM16LE(b []byte) ([]float32, error) {
	if len(b)%2 != 0 {
		return nil, fmt.Errorf("odd PCM16 payload length %d", len(b))
	}
	out := make([]float32, len(b)/2)
	for i := range out {
		out[i] = float32(int16(binary.LittleEndian.Uint16(b[2*i:]))) / pcm16Scale
	}
	return out, nil
}

// Float32ToPCM16 converts normalised samples back to PCM16, clamping to range.
func Float32ToPCM16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		v := float64(s) * pcm16Scale
		switch {
		case v > 32767:
			v = 32767
		case v < -32768:
			v = -32768
		}
		out[i] = int16(v)
	}
	return out
}

// Float64s widens samples for the batch feature extractor.
func Float64s(samples []float32) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = float64(s)
	}
	return out
}
