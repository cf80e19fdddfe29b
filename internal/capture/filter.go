package capture

import "math"

// biquad is a single second-order IIR filter section in transposed direct
// form II.
type biquad struct {
	b0, b1, b2 float64
	a1, a2     float64
	z1, z2     float64
}

func (f *biquad) process(x float64) float64 {
	y := f.b0*x + f.z1
	f.z1 = f.b1*x - f.a1*y + f.z2
	f.z2 = f.b2*x - f.a2*y
	return y
}

func (f *biquad) reset() {
	f.z1, f.z2 = 0, 0
}

const butterworthQ = math.Sqrt2 / 2

func newLowPass(freq float64, sampleRate int) *biquad {
	w := 2 * math.Pi * freq / float64(sampleRate)
	cosw := math.Cos(w)
	alpha := math.Sin(w) / (2 * butterworthQ)
	a0 := 1 + alpha

	return &biquad{
		b0: (1 - cosw) / 2 / a0,
		b1: (1 - cosw) / a0,
		b2: (1 - cosw) / 2 / a0,
		a1: -2 * cosw / a0,
		a2: (1 - alpha) / a0,
	}
}

func newHighPass(freq float64, sampleRate int) *biquad {
	w := 2 * math.Pi * freq / float64(sampleRate)
	cosw := math.Cos(w)
	alpha := math.Sin(w) / (2 * butterworthQ)
	a0 := 1 + alpha

	return &biquad{
		b0: (1 + cosw) / 2 / a0,
		b1: -(1 + cosw) / a0,
		b2: (1 + cosw) / 2 / a0,
		a1: -2 * cosw / a0,
		a2: (1 - alpha) / a0,
	}
}

// BandPass limits audio to the speech band by cascading a high-pass and a
// low-pass section. Game audio runs through it so music and explosion rumble
// do not dominate the energy-based segmentation. The filter is stateful
// across calls and not safe for concurrent use.
type BandPass struct {
	stages []*biquad
}

// NewBandPass creates a band-pass filter with the given corner frequencies.
func NewBandPass(low, high float64, sampleRate int) *BandPass {
	return &BandPass{
		stages: []*biquad{
			newHighPass(low, sampleRate),
			newLowPass(high, sampleRate),
		},
	}
}

// Process filters the buffer in place.
func (bp *BandPass) Process(buf []float32) {
	for i, s := range buf {
		x := float64(s)
		for _, stage := range bp.stages {
			x = stage.process(x)
		}
		buf[i] = float32(x)
	}
}

// Reset clears the filter state between audio streams.
func (bp *BandPass) Reset() {
	for _, stage := range bp.stages {
		stage.reset()
	}
}
