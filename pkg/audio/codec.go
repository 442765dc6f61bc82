package audio

import (
	"encoding/base64"
	"math"
)

// FloatToPCM16 converts 32-bit float samples in [-1, 1] to 16-bit signed PCM.
// Samples are clamped symmetrically before scaling; the scale factor is
// 0x8000 for negative values and 0x7fff for positive ones, matching the
// asymmetric PCM16 range.
func FloatToPCM16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		if s < -1 {
			s = -1
		} else if s > 1 {
			s = 1
		}
		if s < 0 {
			out[i] = int16(s * 0x8000)
		} else {
			out[i] = int16(s * 0x7fff)
		}
	}
	return out
}

// PCM16ToFloat converts 16-bit signed PCM samples to 32-bit floats in [-1, 1).
func PCM16ToFloat(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 0x8000
	}
	return out
}

// BytesToSamples converts raw PCM16 little-endian bytes to int16 samples.
func BytesToSamples(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return samples
}

// SamplesToBytes converts int16 samples to raw PCM16 little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		data[i*2] = byte(s)
		data[i*2+1] = byte(s >> 8)
	}
	return data
}

// EncodeBase64 wraps raw PCM16 bytes in base64 for textually framed transports.
func EncodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeBase64 unwraps base64 text into raw bytes.
func DecodeBase64(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

// DecodeBase64PCM16 unwraps base64 text into int16 samples.
func DecodeBase64PCM16(s string) ([]int16, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return BytesToSamples(data), nil
}

// RMS calculates the root mean square of float samples.
// Returns a value between 0.0 and 1.0. Used for diagnostics only;
// it never gates whether a frame is sent.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// RMSInt16 calculates the normalized root mean square of PCM16 samples.
func RMSInt16(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		f := float64(s) / 0x8000
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(samples)))
}
