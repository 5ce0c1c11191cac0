package capture

import "github.com/teslashibe/go-recorder/pkg/audioio"

// levelSmoothing is the weight of the previous level in the moving average.
const levelSmoothing = 0.8

// levelMeter tracks an exponential moving average of block RMS.
type levelMeter struct {
	window int
	level  float64
	peak   float64
}

func newLevelMeter(window int) levelMeter {
	return levelMeter{window: window}
}

// update folds the most recent window of samples into the estimate.
func (m *levelMeter) update(recent []float32) {
	if len(recent) == 0 {
		return
	}
	if m.window > 0 && len(recent) > m.window {
		recent = recent[len(recent)-m.window:]
	}
	rms := audioio.CalculateRMS(recent)
	m.level = m.level*levelSmoothing + rms*(1-levelSmoothing)
	m.peak = audioio.PeakLevel(recent)
}

func (m *levelMeter) reset() {
	m.level = 0
	m.peak = 0
}
