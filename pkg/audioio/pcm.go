package audioio

import "math"

// Quantize converts float samples to signed 16-bit PCM. Samples are clamped
// to [-1, 1] before scaling so clipped input saturates instead of wrapping.
func Quantize(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		out[i] = QuantizeSample(s)
	}
	return out
}

// QuantizeSample converts a single float sample to int16.
func QuantizeSample(s float32) int16 {
	v := float64(s)
	switch {
	case math.IsNaN(v):
		return 0
	case v > 1:
		v = 1
	case v < -1:
		v = -1
	}
	return int16(math.Round(v * math.MaxInt16))
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

// CalculateRMS calculates the root mean square of float samples.
// For input in [-1, 1] the result is between 0.0 and 1.0.
func CalculateRMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}

	return math.Sqrt(sum / float64(len(samples)))
}

// PeakLevel returns the largest absolute sample value.
func PeakLevel(samples []float32) float64 {
	var peak float64
	for _, s := range samples {
		if a := math.Abs(float64(s)); a > peak {
			peak = a
		}
	}
	return peak
}
