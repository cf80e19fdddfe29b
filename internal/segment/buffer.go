package segment

import (
	"fmt"
	"time"

	"github.com/Burnaviour/realtime-translator/internal/classify"
)

// Decision is the outcome of one buffer-evaluation step.
type Decision int

const (
	// DecisionContinue keeps accumulating chunks.
	DecisionContinue Decision = iota
	// DecisionPreview requests an asynchronous partial transcription of the
	// buffered audio so far.
	DecisionPreview
	// DecisionFinal marks the buffered audio as a complete utterance ready
	// for full transcription and translation.
	DecisionFinal
	// DecisionDiscard drops the buffered audio as non-speech without any
	// downstream service call.
	DecisionDiscard
)

// String returns a human-readable decision name.
func (d Decision) String() string {
	switch d {
	case DecisionContinue:
		return "continue"
	case DecisionPreview:
		return "preview"
	case DecisionFinal:
		return "final"
	case DecisionDiscard:
		return "discard"
	default:
		return fmt.Sprintf("unknown(%d)", int(d))
	}
}

// Config contains per-source segmentation parameters. Game and microphone
// sources run with different thresholds; the zero value of optional fields
// is replaced with defaults by NewBuffer.
type Config struct {
	SampleRate int

	// MinUtterance is the minimum accumulated audio before a
	// silence-triggered finalization is allowed.
	MinUtterance time.Duration
	// MaxUtterance is the hard cap forcing finalization regardless of
	// silence.
	MaxUtterance time.Duration

	// SilenceRMS is the per-chunk energy threshold below which a chunk
	// counts toward the consecutive-silence run.
	SilenceRMS float64
	// SpeechRMS is the whole-buffer energy gate a finalized segment must
	// pass before transcription (the noise gate).
	SpeechRMS float64
	// SilenceTrigger is the number of consecutive below-threshold chunks
	// that constitute end of utterance.
	SilenceTrigger int

	// PreviewEnabled turns streaming preview decisions on.
	PreviewEnabled bool
	// PreviewMinDuration is the minimum buffered audio before a preview.
	PreviewMinDuration time.Duration
	// PreviewInterval is the minimum wall-clock gap between previews.
	PreviewInterval time.Duration

	// HardCeiling bounds buffer memory: beyond it the oldest samples are
	// evicted down to MaxUtterance worth.
	HardCeiling time.Duration

	// SplitSearchWindow is how far back from the end of an overlong buffer
	// to look for a silent window to split at.
	SplitSearchWindow time.Duration
	// SplitStep is the window size, in samples, used when scanning for a
	// silent split point.
	SplitStep int

	// Filtered indicates the audio was already band-limited to the speech
	// band, so the finalization gate uses energy alone instead of the full
	// speech-likelihood check.
	Filtered bool
}

// Defaults for optional Config fields.
const (
	DefaultMinUtterance       = 800 * time.Millisecond
	DefaultMaxUtterance       = 20 * time.Second
	DefaultSilenceRMS         = 0.005
	DefaultSilenceTrigger     = 10
	DefaultPreviewMinDuration = time.Second
	DefaultPreviewInterval    = 1200 * time.Millisecond
	DefaultHardCeiling        = 30 * time.Second
	DefaultSplitSearchWindow  = 4 * time.Second
	DefaultSplitStep          = 1024
)

func (c *Config) applyDefaults() {
	if c.MinUtterance <= 0 {
		c.MinUtterance = DefaultMinUtterance
	}
	if c.MaxUtterance <= 0 {
		c.MaxUtterance = DefaultMaxUtterance
	}
	if c.SilenceRMS <= 0 {
		c.SilenceRMS = DefaultSilenceRMS
	}
	if c.SpeechRMS <= 0 {
		c.SpeechRMS = c.SilenceRMS
	}
	if c.SilenceTrigger <= 0 {
		c.SilenceTrigger = DefaultSilenceTrigger
	}
	if c.PreviewMinDuration <= 0 {
		c.PreviewMinDuration = DefaultPreviewMinDuration
	}
	if c.PreviewInterval <= 0 {
		c.PreviewInterval = DefaultPreviewInterval
	}
	if c.HardCeiling <= 0 {
		c.HardCeiling = DefaultHardCeiling
	}
	if c.SplitSearchWindow <= 0 {
		c.SplitSearchWindow = DefaultSplitSearchWindow
	}
	if c.SplitStep <= 0 {
		c.SplitStep = DefaultSplitStep
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", c.SampleRate)
	}

	if c.MaxUtterance <= c.MinUtterance {
		return fmt.Errorf("max utterance (%s) must be greater than min utterance (%s)",
			c.MaxUtterance, c.MinUtterance)
	}

	if c.HardCeiling < c.MaxUtterance {
		return fmt.Errorf("hard ceiling (%s) must be at least max utterance (%s)",
			c.HardCeiling, c.MaxUtterance)
	}

	if c.SpeechRMS < c.SilenceRMS {
		return fmt.Errorf("speech threshold (%g) must not be below silence threshold (%g)",
			c.SpeechRMS, c.SilenceRMS)
	}

	return nil
}

// Buffer accumulates audio chunks for one in-progress utterance and decides
// when the accumulated audio should be previewed, finalized, or discarded.
// A Buffer is owned by exactly one processing loop and is not safe for
// concurrent use.
type Buffer struct {
	cfg Config

	samples     []float32
	silentRun   int
	lastPreview time.Time

	// Sample counts derived from the durations in cfg.
	minSamples        int
	maxSamples        int
	previewMinSamples int
	ceilingSamples    int
	searchSamples     int
}

// NewBuffer creates an empty segmentation buffer for one source.
func NewBuffer(cfg Config) (*Buffer, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sr := float64(cfg.SampleRate)
	return &Buffer{
		cfg:               cfg,
		samples:           make([]float32, 0, int(cfg.MinUtterance.Seconds()*sr)*4),
		minSamples:        int(cfg.MinUtterance.Seconds() * sr),
		maxSamples:        int(cfg.MaxUtterance.Seconds() * sr),
		previewMinSamples: int(cfg.PreviewMinDuration.Seconds() * sr),
		ceilingSamples:    int(cfg.HardCeiling.Seconds() * sr),
		searchSamples:     int(cfg.SplitSearchWindow.Seconds() * sr),
	}, nil
}

// Config returns the effective configuration after defaults were applied.
func (b *Buffer) Config() Config {
	return b.cfg
}

// Len returns the number of buffered samples.
func (b *Buffer) Len() int {
	return len(b.samples)
}

// Duration returns the duration of the buffered audio.
func (b *Buffer) Duration() time.Duration {
	return time.Duration(float64(len(b.samples)) / float64(b.cfg.SampleRate) * float64(time.Second))
}

// SilentRun returns the current consecutive-silent-chunk count.
func (b *Buffer) SilentRun() int {
	return b.silentRun
}

// Append adds one chunk to the buffer and updates the silence run. If the
// buffer breaches the hard ceiling, the oldest samples are evicted down to
// MaxUtterance worth to bound memory.
func (b *Buffer) Append(chunk []float32) {
	b.samples = append(b.samples, chunk...)

	if classify.RMS(chunk) < b.cfg.SilenceRMS {
		b.silentRun++
	} else {
		b.silentRun = 0
	}

	if len(b.samples) > b.ceilingSamples {
		drop := len(b.samples) - b.maxSamples
		copy(b.samples, b.samples[drop:])
		b.samples = b.samples[:b.maxSamples]
	}
}

// Decide evaluates the buffer after a chunk arrival.
//
// Finalization fires when the buffer reached MaxUtterance, or holds at least
// MinUtterance of audio and the silence run reached SilenceTrigger. A
// finalization that fails the speech gate becomes DecisionDiscard: the caller
// must clear the buffer so non-speech passages (music, keyboard clatter)
// never accumulate unboundedly. Otherwise a preview fires when enabled, the
// buffer holds enough audio, the source is not mid-silence-run, and the
// preview interval has elapsed. Preview in-flight exclusion is the caller's
// concern.
func (b *Buffer) Decide(now time.Time) Decision {
	n := len(b.samples)

	if n >= b.maxSamples || (n >= b.minSamples && b.silentRun >= b.cfg.SilenceTrigger) {
		if b.passesSpeechGate() {
			return DecisionFinal
		}
		return DecisionDiscard
	}

	if b.cfg.PreviewEnabled &&
		n >= b.previewMinSamples &&
		b.silentRun < b.cfg.SilenceTrigger &&
		now.Sub(b.lastPreview) >= b.cfg.PreviewInterval {
		return DecisionPreview
	}

	return DecisionContinue
}

// DecideTimeout evaluates the buffer after a chunk-queue read timeout, which
// is treated as an implicit silence boundary: a buffer meeting the minimum
// duration attempts finalization with the same speech gate.
func (b *Buffer) DecideTimeout(time.Time) Decision {
	if len(b.samples) < b.minSamples {
		return DecisionContinue
	}

	if b.passesSpeechGate() {
		return DecisionFinal
	}
	return DecisionDiscard
}

// TakePreview returns a copy of the buffered audio for asynchronous preview
// transcription and stamps the preview time. The buffer itself keeps
// accumulating uninterrupted.
func (b *Buffer) TakePreview(now time.Time) []float32 {
	b.lastPreview = now

	out := make([]float32, len(b.samples))
	copy(out, b.samples)
	return out
}

// TakeFinal extracts the finalized utterance and resets the buffer.
//
// When the buffer reached the hard cap without a silence boundary, the split
// point is the most recent silent window within the search region, so the
// retained utterance ends at a natural pause and the remainder carries over
// into the next cycle. With no silent window anywhere the whole buffer is
// taken and nothing carries over.
func (b *Buffer) TakeFinal(now time.Time) []float32 {
	n := len(b.samples)
	var out []float32

	if n >= b.maxSamples {
		split := FindSilenceSplit(b.samples, b.cfg.SilenceRMS, b.searchSamples, b.cfg.SplitStep)
		out = make([]float32, split)
		copy(out, b.samples[:split])

		rest := n - split
		copy(b.samples, b.samples[split:])
		b.samples = b.samples[:rest]
	} else {
		out = b.samples
		b.samples = make([]float32, 0, b.minSamples*4)
	}

	b.silentRun = 0
	b.lastPreview = now
	return out
}

// Discard clears the buffer after a failed speech gate.
func (b *Buffer) Discard(now time.Time) {
	b.samples = b.samples[:0]
	b.silentRun = 0
	b.lastPreview = now
}

func (b *Buffer) passesSpeechGate() bool {
	if b.cfg.Filtered {
		// The band-pass filter already removed non-speech content;
		// energy alone is a sufficient gate.
		return classify.RMS(b.samples) > b.cfg.SpeechRMS
	}
	return classify.LooksLikeSpeech(b.samples, b.cfg.SampleRate, b.cfg.SpeechRMS, false)
}

// FindSilenceSplit scans backward from the end of the samples, in step-sized
// windows over the last searchWindow samples, for the most recent window
// whose peak amplitude is below threshold. It returns the index just after
// that window, or len(samples) when no silent window exists.
func FindSilenceSplit(samples []float32, threshold float64, searchWindow, step int) int {
	n := len(samples)
	if step <= 0 || n <= step {
		return n
	}

	region := searchWindow
	if region > n {
		region = n
	}
	start := n - region

	for i := n - step; i > start; i -= step {
		if classify.Peak(samples[i:i+step]) < threshold {
			return i + step
		}
	}

	return n
}
