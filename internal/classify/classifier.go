package classify

import (
	"math"
)

const (
	// minSpeechSeconds is the shortest buffer LooksLikeSpeech will accept.
	// Anything shorter is a click or a noise burst, not an utterance.
	minSpeechSeconds = 0.3

	// Zero-crossing band that covers voiced and unvoiced speech.
	// Steady tones and rumble sit below it, broadband noise above it.
	zcrSpeechMin = 0.02
	zcrSpeechMax = 0.30
)

// RMS returns the root-mean-square energy of the buffer.
// Returns 0 for empty input.
func RMS(buf []float32) float64 {
	if len(buf) == 0 {
		return 0
	}

	var sum float64
	for _, s := range buf {
		sum += float64(s) * float64(s)
	}

	return math.Sqrt(sum / float64(len(buf)))
}

// Peak returns the maximum absolute amplitude in the buffer.
// Returns 0 for empty input.
func Peak(buf []float32) float64 {
	var peak float64
	for _, s := range buf {
		abs := math.Abs(float64(s))
		if abs > peak {
			peak = abs
		}
	}

	return peak
}

// ZeroCrossingRate returns the number of sign changes per sample.
// Returns 0 for buffers with fewer than two samples.
func ZeroCrossingRate(buf []float32) float64 {
	if len(buf) < 2 {
		return 0
	}

	crossings := 0
	for i := 1; i < len(buf); i++ {
		if (buf[i-1] >= 0) != (buf[i] >= 0) {
			crossings++
		}
	}

	return float64(crossings) / float64(len(buf))
}

// LooksLikeSpeech reports whether the buffer plausibly contains speech.
//
// The buffer must hold at least 0.3s of audio with RMS energy above
// rmsThreshold. When filtered is true the caller has already band-limited
// the audio to the speech band, so energy alone is sufficient. Otherwise
// the zero-crossing rate must additionally fall in the empirical speech
// band, which rejects steady tones, rumble, and broadband noise that pass
// the energy gate but are not speech-shaped.
func LooksLikeSpeech(buf []float32, sampleRate int, rmsThreshold float64, filtered bool) bool {
	if sampleRate <= 0 {
		return false
	}

	if float64(len(buf)) < minSpeechSeconds*float64(sampleRate) {
		return false
	}

	if RMS(buf) <= rmsThreshold {
		return false
	}

	if filtered {
		return true
	}

	zcr := ZeroCrossingRate(buf)
	return zcr >= zcrSpeechMin && zcr <= zcrSpeechMax
}
