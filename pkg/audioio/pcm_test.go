package audioio

import (
	"math"
	"testing"
)

func TestQuantizeSample(t *testing.T) {
	tests := []struct {
		name string
		in   float32
		want int16
	}{
		{"zero", 0, 0},
		{"full scale positive", 1, 32767},
		{"full scale negative", -1, -32767},
		{"half", 0.5, 16384},
		{"clipped positive", 1.7, 32767},
		{"clipped negative", -3, -32767},
		{"nan", float32(math.NaN()), 0},
		{"positive inf", float32(math.Inf(1)), 32767},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := QuantizeSample(tt.in); got != tt.want {
				t.Errorf("QuantizeSample(%v) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestQuantize_Length(t *testing.T) {
	out := Quantize([]float32{0.1, -0.1, 2})
	if len(out) != 3 {
		t.Fatalf("Expected 3 samples, got %d", len(out))
	}
	if out[2] != math.MaxInt16 {
		t.Errorf("Clipped sample = %d, want %d", out[2], math.MaxInt16)
	}
}

func TestSamplesToBytes(t *testing.T) {
	bytes := SamplesToBytes([]int16{0x0102, 0x0304, -1})
	if len(bytes) != 6 {
		t.Errorf("Expected 6 bytes, got %d", len(bytes))
	}

	// Check little-endian encoding
	if bytes[0] != 0x02 || bytes[1] != 0x01 {
		t.Errorf("First sample not encoded correctly: %v", bytes[0:2])
	}
	if bytes[4] != 0xFF || bytes[5] != 0xFF {
		t.Errorf("Third sample not encoded correctly: %v", bytes[4:6])
	}
}

func TestBytesToSamples(t *testing.T) {
	samples := BytesToSamples([]byte{0x02, 0x01, 0x04, 0x03, 0xFF, 0xFF})

	if len(samples) != 3 {
		t.Fatalf("Expected 3 samples, got %d", len(samples))
	}
	if samples[0] != 0x0102 {
		t.Errorf("First sample incorrect: got %d, expected %d", samples[0], 0x0102)
	}
	if samples[2] != -1 {
		t.Errorf("Third sample incorrect: got %d, expected -1", samples[2])
	}
}

func TestCalculateRMS(t *testing.T) {
	if rms := CalculateRMS(nil); rms != 0 {
		t.Errorf("RMS of empty = %f, want 0", rms)
	}

	rms := CalculateRMS([]float32{0.5, -0.5, 0.5, -0.5})
	if math.Abs(rms-0.5) > 1e-9 {
		t.Errorf("RMS = %f, want 0.5", rms)
	}

	if peak := PeakLevel([]float32{0.1, -0.8, 0.3}); math.Abs(peak-0.8) > 1e-6 {
		t.Errorf("Peak = %f, want 0.8", peak)
	}
}
