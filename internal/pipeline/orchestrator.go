package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Burnaviour/realtime-translator/internal/classify"
	"github.com/Burnaviour/realtime-translator/internal/metrics"
	"github.com/Burnaviour/realtime-translator/internal/segment"
)

// Default orchestrator timings.
const (
	DefaultPollInterval   = 300 * time.Millisecond
	DefaultPreviewTimeout = 5 * time.Second
	DefaultFinalTimeout   = 30 * time.Second

	recordTimeout = 2 * time.Second
)

// OrchestratorConfig contains orchestrator-wide settings shared by all
// pipelines.
type OrchestratorConfig struct {
	// PollInterval is the chunk-read timeout that doubles as an implicit
	// silence boundary when a source goes quiet.
	PollInterval time.Duration
	// Detector filters hallucinated model output. Nil selects the default
	// detector.
	Detector *classify.Detector
}

// pipe is one running pipeline with its mutable per-source state. The
// segmentation buffer is touched only by the pipe's processing goroutine;
// previewInFlight is the single point of cross-goroutine coordination.
type pipe struct {
	Pipeline

	buf             *segment.Buffer
	previewInFlight atomic.Bool
}

// Orchestrator runs one processing goroutine per registered pipeline and
// coordinates their shared services. Pipelines are registered before Start
// and run until Stop.
type Orchestrator struct {
	logger   *slog.Logger
	metrics  *metrics.Metrics
	recorder Recorder
	detector *classify.Detector

	pollInterval time.Duration

	pipes   []*pipe
	running atomic.Bool
	wg      sync.WaitGroup
}

// NewOrchestrator creates an orchestrator. Metrics and recorder may be nil
// to disable the respective stage.
func NewOrchestrator(logger *slog.Logger, cfg OrchestratorConfig, m *metrics.Metrics, recorder Recorder) *Orchestrator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Detector == nil {
		cfg.Detector = classify.NewDefaultDetector()
	}

	return &Orchestrator{
		logger:       logger,
		metrics:      m,
		recorder:     recorder,
		detector:     cfg.Detector,
		pollInterval: cfg.PollInterval,
	}
}

// AddPipeline registers a pipeline. It must be called before Start.
func (o *Orchestrator) AddPipeline(p Pipeline) error {
	if o.running.Load() {
		return fmt.Errorf("cannot add pipeline %s while running", p.Config.Kind)
	}
	if p.Source == nil {
		return fmt.Errorf("pipeline %s has no source", p.Config.Kind)
	}
	if p.Transcriber == nil {
		return fmt.Errorf("pipeline %s has no transcriber", p.Config.Kind)
	}

	if p.Config.PreviewTimeout <= 0 {
		p.Config.PreviewTimeout = DefaultPreviewTimeout
	}
	if p.Config.FinalTimeout <= 0 {
		p.Config.FinalTimeout = DefaultFinalTimeout
	}

	buf, err := segment.NewBuffer(p.Config.Segment)
	if err != nil {
		return fmt.Errorf("invalid segmentation config for %s: %w", p.Config.Kind, err)
	}

	o.pipes = append(o.pipes, &pipe{Pipeline: p, buf: buf})
	return nil
}

// Start launches all registered pipelines. A source that fails to start is
// logged and left idle; the remaining pipelines run normally.
func (o *Orchestrator) Start() error {
	if !o.running.CompareAndSwap(false, true) {
		return fmt.Errorf("orchestrator already running")
	}

	started := 0
	for _, p := range o.pipes {
		if err := p.Source.Start(); err != nil {
			o.logger.Error("Failed to start audio source, pipeline will stay idle",
				slog.String("source", p.Config.Kind.String()),
				slog.String("error", err.Error()),
			)
			continue
		}

		started++
		o.wg.Add(1)
		go o.runPipeline(p)

		o.logger.Info("Pipeline started",
			slog.String("source", p.Config.Kind.String()),
			slog.String("language", p.Config.Language),
			slog.Bool("strict_language_filter", p.Config.StrictLanguageFilter),
		)
	}

	if started == 0 && len(o.pipes) > 0 {
		o.Stop()
		return fmt.Errorf("no pipeline source could be started")
	}

	return nil
}

// Stop stops all sources and waits for in-flight processing to finish.
func (o *Orchestrator) Stop() {
	if !o.running.CompareAndSwap(true, false) {
		return
	}

	o.logger.Info("Stopping orchestrator...")

	for _, p := range o.pipes {
		p.Source.Stop()
	}

	o.wg.Wait()
	o.logger.Info("Orchestrator stopped")
}

// runPipeline is the per-source processing loop. Chunk arrivals feed the
// segmentation buffer; a read timeout is treated as an implicit silence
// boundary.
func (o *Orchestrator) runPipeline(p *pipe) {
	defer o.wg.Done()

	source := p.Config.Kind.String()
	timer := time.NewTimer(o.pollInterval)
	defer timer.Stop()

	for {
		select {
		case chunk, ok := <-p.Source.Chunks():
			if !ok {
				o.flush(p)
				o.logger.Debug("Pipeline source closed", slog.String("source", source))
				return
			}

			p.buf.Append(chunk)
			o.dispatch(p, p.buf.Decide(time.Now()))

			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(o.pollInterval)

		case <-timer.C:
			o.dispatch(p, p.buf.DecideTimeout(time.Now()))
			timer.Reset(o.pollInterval)
		}
	}
}

func (o *Orchestrator) dispatch(p *pipe, decision segment.Decision) {
	source := p.Config.Kind.String()
	now := time.Now()

	switch decision {
	case segment.DecisionContinue:

	case segment.DecisionPreview:
		o.dispatchPreview(p, now)

	case segment.DecisionFinal:
		duration := p.buf.Duration()
		samples := p.buf.TakeFinal(now)
		o.metrics.RecordSegmentFinalized(source, duration.Seconds())
		o.processFinal(p, samples)

	case segment.DecisionDiscard:
		o.logger.Debug("Discarding non-speech segment",
			slog.String("source", source),
			slog.Duration("duration", p.buf.Duration()),
		)
		p.buf.Discard(now)
		o.metrics.RecordSegmentDiscarded(source)
	}
}

// flush gives the remaining buffered audio one final chance on shutdown.
func (o *Orchestrator) flush(p *pipe) {
	if p.buf.Len() > 0 {
		o.dispatch(p, p.buf.DecideTimeout(time.Now()))
	}
}

// dispatchPreview snapshots the buffer and transcribes it asynchronously.
// At most one preview per source is in flight; a due preview that meets a
// busy slot is coalesced into the next cycle rather than queued.
func (o *Orchestrator) dispatchPreview(p *pipe, now time.Time) {
	source := p.Config.Kind.String()

	if !p.previewInFlight.CompareAndSwap(false, true) {
		o.metrics.RecordPreviewCoalesced(source)
		return
	}

	samples := p.buf.TakePreview(now)
	o.metrics.RecordPreviewDispatched(source)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer p.previewInFlight.Store(false)

		ctx, cancel := context.WithTimeout(context.Background(), p.Config.PreviewTimeout)
		defer cancel()

		start := time.Now()
		text, err := p.Transcriber.Transcribe(ctx, samples, p.Config.Language)
		o.metrics.RecordTranscription(err == nil, time.Since(start).Seconds())

		if err != nil {
			o.logger.Debug("Preview transcription failed",
				slog.String("source", source),
				slog.String("error", err.Error()),
			)
			return
		}

		if o.detector.IsHallucination(text) {
			o.metrics.RecordRejection(source, "hallucination")
			return
		}

		if p.Sink != nil {
			p.Sink.UpdatePreview(p.Config.Kind, text)
		}
	}()
}

// processFinal runs the full chain for one finalized utterance: transcribe,
// filter, translate, filter again, rewrite, publish, persist. Failures are
// logged and the utterance dropped; the pipeline itself keeps running.
func (o *Orchestrator) processFinal(p *pipe, samples []float32) {
	source := p.Config.Kind.String()
	audioDuration := time.Duration(float64(len(samples)) / float64(p.Config.Segment.SampleRate) * float64(time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), p.Config.FinalTimeout)
	defer cancel()

	transcribeStart := time.Now()
	transcript, ok := o.transcribeFinal(ctx, p, samples)
	transcribeTime := time.Since(transcribeStart)
	if !ok {
		return
	}

	if o.detector.IsHallucination(transcript) {
		o.metrics.RecordRejection(source, "hallucination")
		o.logger.Debug("Rejected hallucinated transcript",
			slog.String("source", source),
			slog.String("text", transcript),
		)
		return
	}

	translation := transcript
	var translateTime time.Duration
	if p.Translator != nil {
		translateStart := time.Now()
		out, err := p.Translator.Translate(ctx, transcript)
		translateTime = time.Since(translateStart)
		o.metrics.RecordTranslation(err == nil, translateTime.Seconds())

		if err != nil {
			o.logger.Warn("Translation failed",
				slog.String("source", source),
				slog.String("transcript", transcript),
				slog.String("error", err.Error()),
			)
			return
		}

		switch {
		case strings.TrimSpace(out) == "":
			o.metrics.RecordRejection(source, "empty_translation")
			return
		case o.detector.IsHallucination(out):
			o.metrics.RecordRejection(source, "hallucinated_translation")
			return
		case o.detector.IsRepetitiveTranslation(out):
			o.metrics.RecordRejection(source, "repetitive_translation")
			return
		}

		translation = out
	}

	if p.Rewriter != nil {
		translation = p.Rewriter.Apply(translation)
	}

	if p.Sink != nil {
		p.Sink.UpdateFinal(p.Config.Kind, translation)
	}

	o.logger.Info("Utterance translated",
		slog.String("source", source),
		slog.String("transcript", transcript),
		slog.String("translation", translation),
		slog.Duration("audio", audioDuration),
		slog.Duration("transcribe_time", transcribeTime),
		slog.Duration("translate_time", translateTime),
	)

	if o.recorder != nil {
		rec := UtteranceRecord{
			ID:             uuid.NewString(),
			Source:         source,
			Transcript:     transcript,
			Translation:    translation,
			AudioDuration:  audioDuration,
			TranscribeTime: transcribeTime,
			TranslateTime:  translateTime,
			CreatedAt:      time.Now(),
		}

		recCtx, recCancel := context.WithTimeout(context.Background(), recordTimeout)
		defer recCancel()

		if err := o.recorder.Record(recCtx, rec); err != nil {
			o.logger.Warn("Failed to persist utterance",
				slog.String("source", source),
				slog.String("utterance_id", rec.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// transcribeFinal transcribes a finalized utterance, applying the strict
// language filter when enabled: a confident mismatch is skipped outright,
// a doubtful one is re-transcribed forced to the expected language.
func (o *Orchestrator) transcribeFinal(ctx context.Context, p *pipe, samples []float32) (string, bool) {
	source := p.Config.Kind.String()

	if !p.Config.StrictLanguageFilter {
		start := time.Now()
		text, err := p.Transcriber.Transcribe(ctx, samples, p.Config.Language)
		o.metrics.RecordTranscription(err == nil, time.Since(start).Seconds())
		if err != nil {
			o.logger.Warn("Transcription failed",
				slog.String("source", source),
				slog.String("error", err.Error()),
			)
			return "", false
		}
		return text, true
	}

	start := time.Now()
	res, err := p.Transcriber.TranscribeDetect(ctx, samples)
	o.metrics.RecordTranscription(err == nil, time.Since(start).Seconds())
	if err != nil {
		o.logger.Warn("Transcription failed",
			slog.String("source", source),
			slog.String("error", err.Error()),
		)
		return "", false
	}

	if res.Language == "" || res.Language == p.Config.Language {
		return res.Text, true
	}

	if res.Confidence >= p.Config.LanguageConfidence {
		o.metrics.RecordLanguageSkip(source)
		o.logger.Debug("Skipping foreign-language utterance",
			slog.String("source", source),
			slog.String("detected_language", res.Language),
			slog.Float64("confidence", res.Confidence),
		)
		return "", false
	}

	// Doubtful detection: force the expected language instead of trusting
	// a low-confidence guess.
	start = time.Now()
	forced, err := p.Transcriber.Transcribe(ctx, samples, p.Config.Language)
	o.metrics.RecordTranscription(err == nil, time.Since(start).Seconds())
	if err != nil {
		o.logger.Warn("Forced-language transcription failed",
			slog.String("source", source),
			slog.String("error", err.Error()),
		)
		return "", false
	}

	return forced, true
}
