package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/Burnaviour/realtime-translator/internal/segment"
)

// SourceKind identifies which audio direction a pipeline serves.
type SourceKind uint8

const (
	// SourceGame is remote party audio (game or system output).
	SourceGame SourceKind = iota
	// SourceMic is local party audio (microphone input).
	SourceMic
)

// String returns a human-readable source name.
func (k SourceKind) String() string {
	switch k {
	case SourceGame:
		return "game"
	case SourceMic:
		return "mic"
	default:
		return fmt.Sprintf("unknown(0x%02x)", uint8(k))
	}
}

// Result is a transcription with detected language information.
type Result struct {
	Text       string
	Language   string
	Confidence float64
}

// Source delivers audio chunks for one direction. Implementations own the
// transport (UDP listener, file reader) and must close the Chunks channel
// after Stop.
type Source interface {
	// Start begins chunk delivery. It returns an error when the underlying
	// transport cannot be opened.
	Start() error
	// Stop ends chunk delivery and closes the Chunks channel. Stop is safe
	// to call without a prior Start and safe to call more than once.
	Stop()
	// Chunks returns the channel audio arrives on.
	Chunks() <-chan []float32
}

// Transcriber converts audio samples to text.
type Transcriber interface {
	// Transcribe returns the transcript of the samples in the given
	// language ("" lets the model detect).
	Transcribe(ctx context.Context, samples []float32, language string) (string, error)
	// TranscribeDetect additionally returns the detected language and its
	// confidence.
	TranscribeDetect(ctx context.Context, samples []float32) (Result, error)
}

// Translator converts text between a fixed language pair.
type Translator interface {
	Translate(ctx context.Context, text string) (string, error)
	SourceLang() string
	TargetLang() string
}

// Rewriter applies deterministic post-translation text transforms, such as
// glossary substitutions or transliteration.
type Rewriter interface {
	Apply(text string) string
}

// Sink receives display-ready text. UpdatePreview carries tentative partial
// transcripts that the next update for the same source replaces; UpdateFinal
// carries committed translations.
type Sink interface {
	UpdatePreview(source SourceKind, text string)
	UpdateFinal(source SourceKind, text string)
}

// UtteranceRecord captures one completed utterance for persistence.
type UtteranceRecord struct {
	ID             string        `json:"id"`
	Source         string        `json:"source"`
	Transcript     string        `json:"transcript"`
	Translation    string        `json:"translation"`
	AudioDuration  time.Duration `json:"audio_duration"`
	TranscribeTime time.Duration `json:"transcribe_time"`
	TranslateTime  time.Duration `json:"translate_time"`
	CreatedAt      time.Time     `json:"created_at"`
}

// Recorder persists completed utterances.
type Recorder interface {
	Record(ctx context.Context, rec UtteranceRecord) error
}

// SourceConfig contains the per-source processing parameters.
type SourceConfig struct {
	Kind     SourceKind
	Language string

	Segment segment.Config

	// StrictLanguageFilter skips utterances whose confidently detected
	// language differs from the expected one (cross-talk in multiplayer
	// voice chat).
	StrictLanguageFilter bool
	// LanguageConfidence is the detection confidence above which a
	// mismatched language is trusted and the utterance skipped.
	LanguageConfidence float64

	// PreviewTimeout bounds a preview transcription request.
	PreviewTimeout time.Duration
	// FinalTimeout bounds the transcribe plus translate sequence for a
	// finalized utterance.
	FinalTimeout time.Duration
}

// Pipeline bundles one source with its processing chain. Translator,
// Rewriter, and Sink may be nil when the corresponding stage is disabled.
type Pipeline struct {
	Config      SourceConfig
	Source      Source
	Transcriber Transcriber
	Translator  Translator
	Rewriter    Rewriter
	Sink        Sink
}
