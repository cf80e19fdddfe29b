package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Burnaviour/realtime-translator/internal/segment"
)

const testSampleRate = 16000

func speechChunk(n int) []float32 {
	buf := make([]float32, n)
	for i := range buf {
		buf[i] = float32(0.5 * math.Sin(2*math.Pi*1000*float64(i)/testSampleRate))
	}
	return buf
}

func silentChunk(n int) []float32 {
	return make([]float32, n)
}

type fakeSource struct {
	ch       chan []float32
	startErr error
	stopOnce sync.Once
}

func newFakeSource(buffer int) *fakeSource {
	return &fakeSource{ch: make(chan []float32, buffer)}
}

func (s *fakeSource) Start() error             { return s.startErr }
func (s *fakeSource) Stop()                    { s.stopOnce.Do(func() { close(s.ch) }) }
func (s *fakeSource) Chunks() <-chan []float32 { return s.ch }
func (s *fakeSource) push(chunk []float32)     { s.ch <- chunk }

type fakeTranscriber struct {
	mu          sync.Mutex
	text        string
	detect      Result
	err         error
	calls       int
	detectCalls int
	languages   []string

	// gate, when non-nil, blocks Transcribe until closed.
	gate chan struct{}

	concurrent    int32
	maxConcurrent int32
}

func (t *fakeTranscriber) Transcribe(_ context.Context, _ []float32, language string) (string, error) {
	cur := atomic.AddInt32(&t.concurrent, 1)
	for {
		max := atomic.LoadInt32(&t.maxConcurrent)
		if cur <= max || atomic.CompareAndSwapInt32(&t.maxConcurrent, max, cur) {
			break
		}
	}
	defer atomic.AddInt32(&t.concurrent, -1)

	if t.gate != nil {
		<-t.gate
	}

	t.mu.Lock()
	t.calls++
	t.languages = append(t.languages, language)
	t.mu.Unlock()

	return t.text, t.err
}

func (t *fakeTranscriber) TranscribeDetect(context.Context, []float32) (Result, error) {
	t.mu.Lock()
	t.detectCalls++
	t.mu.Unlock()
	return t.detect, t.err
}

func (t *fakeTranscriber) callCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

type fakeTranslator struct{}

func (fakeTranslator) Translate(_ context.Context, text string) (string, error) {
	return "translated: " + text, nil
}
func (fakeTranslator) SourceLang() string { return "ru" }
func (fakeTranslator) TargetLang() string { return "en" }

type fakeSink struct {
	mu       sync.Mutex
	previews []string
	finals   []string
}

func (s *fakeSink) UpdatePreview(_ SourceKind, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.previews = append(s.previews, text)
}

func (s *fakeSink) UpdateFinal(_ SourceKind, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finals = append(s.finals, text)
}

func (s *fakeSink) snapshot() (previews, finals []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.previews...), append([]string{}, s.finals...)
}

type fakeRecorder struct {
	mu      sync.Mutex
	records []UtteranceRecord
}

func (r *fakeRecorder) Record(_ context.Context, rec UtteranceRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

func (r *fakeRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(testWriter{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

type testWriter struct{}

func (testWriter) Write(p []byte) (int, error) { return len(p), nil }

func gameConfig() SourceConfig {
	return SourceConfig{
		Kind:     SourceGame,
		Language: "en",
		Segment:  segment.Config{SampleRate: testSampleRate},
	}
}

func TestSilentAudioNeverReachesTranscriber(t *testing.T) {
	source := newFakeSource(64)
	transcriber := &fakeTranscriber{text: "should not appear"}
	sink := &fakeSink{}

	o := NewOrchestrator(testLogger(), OrchestratorConfig{}, nil, nil)
	err := o.AddPipeline(Pipeline{
		Config:      gameConfig(),
		Source:      source,
		Transcriber: transcriber,
		Sink:        sink,
	})
	if err != nil {
		t.Fatalf("AddPipeline() error = %v", err)
	}

	if err := o.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	for i := 0; i < 25; i++ {
		source.push(silentChunk(1024))
	}
	o.Stop()

	if got := transcriber.callCount(); got != 0 {
		t.Errorf("transcriber called %d times for silence, want 0", got)
	}
	previews, finals := sink.snapshot()
	if len(previews) != 0 || len(finals) != 0 {
		t.Errorf("sink received %d previews, %d finals for silence, want none", len(previews), len(finals))
	}
}

func TestFinalUtteranceFlow(t *testing.T) {
	source := newFakeSource(64)
	transcriber := &fakeTranscriber{text: "hello there friend"}
	sink := &fakeSink{}
	recorder := &fakeRecorder{}

	o := NewOrchestrator(testLogger(), OrchestratorConfig{}, nil, recorder)
	err := o.AddPipeline(Pipeline{
		Config:      gameConfig(),
		Source:      source,
		Transcriber: transcriber,
		Translator:  fakeTranslator{},
		Sink:        sink,
	})
	if err != nil {
		t.Fatalf("AddPipeline() error = %v", err)
	}

	if err := o.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	for i := 0; i < 16; i++ {
		source.push(speechChunk(1024))
	}
	for i := 0; i < 10; i++ {
		source.push(silentChunk(1024))
	}
	o.Stop()

	if got := transcriber.callCount(); got != 1 {
		t.Fatalf("transcriber called %d times, want 1", got)
	}

	_, finals := sink.snapshot()
	if len(finals) != 1 {
		t.Fatalf("sink received %d finals, want 1", len(finals))
	}
	if want := "translated: hello there friend"; finals[0] != want {
		t.Errorf("final text = %q, want %q", finals[0], want)
	}

	if recorder.count() != 1 {
		t.Fatalf("recorder holds %d records, want 1", recorder.count())
	}
	rec := recorder.records[0]
	if rec.ID == "" {
		t.Error("record has empty ID")
	}
	if rec.Source != "game" {
		t.Errorf("record source = %q, want %q", rec.Source, "game")
	}
	if rec.Transcript != "hello there friend" {
		t.Errorf("record transcript = %q", rec.Transcript)
	}
}

func TestHallucinatedTranscriptDropped(t *testing.T) {
	source := newFakeSource(64)
	transcriber := &fakeTranscriber{text: "Thank you."}
	sink := &fakeSink{}
	recorder := &fakeRecorder{}

	o := NewOrchestrator(testLogger(), OrchestratorConfig{}, nil, recorder)
	err := o.AddPipeline(Pipeline{
		Config:      gameConfig(),
		Source:      source,
		Transcriber: transcriber,
		Translator:  fakeTranslator{},
		Sink:        sink,
	})
	if err != nil {
		t.Fatalf("AddPipeline() error = %v", err)
	}

	if err := o.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	for i := 0; i < 16; i++ {
		source.push(speechChunk(1024))
	}
	for i := 0; i < 10; i++ {
		source.push(silentChunk(1024))
	}
	o.Stop()

	if got := transcriber.callCount(); got != 1 {
		t.Errorf("transcriber called %d times, want 1", got)
	}
	_, finals := sink.snapshot()
	if len(finals) != 0 {
		t.Errorf("sink received %d finals for hallucinated transcript, want 0", len(finals))
	}
	if recorder.count() != 0 {
		t.Errorf("recorder holds %d records for hallucinated transcript, want 0", recorder.count())
	}
}

func TestPreviewSingleFlight(t *testing.T) {
	source := newFakeSource(64)
	gate := make(chan struct{})
	transcriber := &fakeTranscriber{text: "partial words so far", gate: gate}
	sink := &fakeSink{}

	cfg := gameConfig()
	cfg.Segment.MinUtterance = 10 * time.Second
	cfg.Segment.MaxUtterance = 20 * time.Second
	cfg.Segment.PreviewEnabled = true
	cfg.Segment.PreviewMinDuration = 200 * time.Millisecond
	cfg.Segment.PreviewInterval = time.Millisecond

	o := NewOrchestrator(testLogger(), OrchestratorConfig{}, nil, nil)
	err := o.AddPipeline(Pipeline{
		Config:      cfg,
		Source:      source,
		Transcriber: transcriber,
		Sink:        sink,
	})
	if err != nil {
		t.Fatalf("AddPipeline() error = %v", err)
	}

	if err := o.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// Every chunk past the preview minimum is a preview opportunity, but
	// the transcriber is blocked, so all but the first must coalesce.
	for i := 0; i < 30; i++ {
		source.push(speechChunk(1024))
		time.Sleep(2 * time.Millisecond)
	}

	close(gate)
	o.Stop()

	if max := atomic.LoadInt32(&transcriber.maxConcurrent); max != 1 {
		t.Errorf("max concurrent transcriptions = %d, want 1", max)
	}
	previews, finals := sink.snapshot()
	if len(previews) == 0 {
		t.Error("no preview reached the sink")
	}
	if len(finals) != 0 {
		t.Errorf("sink received %d finals below min utterance, want 0", len(finals))
	}
}

func TestStrictLanguageFilter(t *testing.T) {
	run := func(t *testing.T, detect Result, wantFinals int, wantForcedCalls int) (*fakeTranscriber, *fakeSink) {
		source := newFakeSource(64)
		transcriber := &fakeTranscriber{text: "hello everyone out there", detect: detect}
		sink := &fakeSink{}

		cfg := gameConfig()
		cfg.StrictLanguageFilter = true
		cfg.LanguageConfidence = 0.6

		o := NewOrchestrator(testLogger(), OrchestratorConfig{}, nil, nil)
		err := o.AddPipeline(Pipeline{
			Config:      cfg,
			Source:      source,
			Transcriber: transcriber,
			Sink:        sink,
		})
		if err != nil {
			t.Fatalf("AddPipeline() error = %v", err)
		}

		if err := o.Start(); err != nil {
			t.Fatalf("Start() error = %v", err)
		}

		for i := 0; i < 16; i++ {
			source.push(speechChunk(1024))
		}
		for i := 0; i < 10; i++ {
			source.push(silentChunk(1024))
		}
		o.Stop()

		_, finals := sink.snapshot()
		if len(finals) != wantFinals {
			t.Errorf("sink received %d finals, want %d", len(finals), wantFinals)
		}
		if got := transcriber.callCount(); got != wantForcedCalls {
			t.Errorf("forced transcriptions = %d, want %d", got, wantForcedCalls)
		}
		return transcriber, sink
	}

	t.Run("confident mismatch is skipped", func(t *testing.T) {
		transcriber, _ := run(t, Result{Text: "bonjour tout le monde", Language: "fr", Confidence: 0.95}, 0, 0)
		if transcriber.detectCalls != 1 {
			t.Errorf("detect calls = %d, want 1", transcriber.detectCalls)
		}
	})

	t.Run("doubtful mismatch is retried in expected language", func(t *testing.T) {
		transcriber, _ := run(t, Result{Text: "bonjour tout le monde", Language: "fr", Confidence: 0.3}, 1, 1)
		if len(transcriber.languages) != 1 || transcriber.languages[0] != "en" {
			t.Errorf("forced languages = %v, want [en]", transcriber.languages)
		}
	})

	t.Run("matching language passes through", func(t *testing.T) {
		run(t, Result{Text: "hello everyone out there", Language: "en", Confidence: 0.9}, 1, 0)
	})
}

func TestSourceStartFailure(t *testing.T) {
	t.Run("single failing source", func(t *testing.T) {
		source := newFakeSource(1)
		source.startErr = errors.New("address in use")

		o := NewOrchestrator(testLogger(), OrchestratorConfig{}, nil, nil)
		err := o.AddPipeline(Pipeline{
			Config:      gameConfig(),
			Source:      source,
			Transcriber: &fakeTranscriber{},
		})
		if err != nil {
			t.Fatalf("AddPipeline() error = %v", err)
		}

		if err := o.Start(); err == nil {
			t.Error("Start() = nil, want error when no source starts")
		}
	})

	t.Run("other pipelines keep running", func(t *testing.T) {
		bad := newFakeSource(1)
		bad.startErr = errors.New("address in use")
		good := newFakeSource(64)
		transcriber := &fakeTranscriber{text: "hello there friend"}
		sink := &fakeSink{}

		o := NewOrchestrator(testLogger(), OrchestratorConfig{}, nil, nil)
		badCfg := gameConfig()
		if err := o.AddPipeline(Pipeline{Config: badCfg, Source: bad, Transcriber: &fakeTranscriber{}}); err != nil {
			t.Fatalf("AddPipeline() error = %v", err)
		}
		goodCfg := gameConfig()
		goodCfg.Kind = SourceMic
		if err := o.AddPipeline(Pipeline{Config: goodCfg, Source: good, Transcriber: transcriber, Sink: sink}); err != nil {
			t.Fatalf("AddPipeline() error = %v", err)
		}

		if err := o.Start(); err != nil {
			t.Fatalf("Start() error = %v", err)
		}

		for i := 0; i < 16; i++ {
			good.push(speechChunk(1024))
		}
		for i := 0; i < 10; i++ {
			good.push(silentChunk(1024))
		}
		o.Stop()

		_, finals := sink.snapshot()
		if len(finals) != 1 {
			t.Errorf("surviving pipeline produced %d finals, want 1", len(finals))
		}
	})
}

func TestAddPipelineValidation(t *testing.T) {
	o := NewOrchestrator(testLogger(), OrchestratorConfig{}, nil, nil)

	if err := o.AddPipeline(Pipeline{Config: gameConfig(), Transcriber: &fakeTranscriber{}}); err == nil {
		t.Error("expected error for pipeline without source")
	}
	if err := o.AddPipeline(Pipeline{Config: gameConfig(), Source: newFakeSource(1)}); err == nil {
		t.Error("expected error for pipeline without transcriber")
	}

	bad := gameConfig()
	bad.Segment.SampleRate = 0
	if err := o.AddPipeline(Pipeline{Config: bad, Source: newFakeSource(1), Transcriber: &fakeTranscriber{}}); err == nil {
		t.Error("expected error for invalid segment config")
	}
}

func TestSourceKindString(t *testing.T) {
	if SourceGame.String() != "game" || SourceMic.String() != "mic" {
		t.Errorf("unexpected names: %s, %s", SourceGame, SourceMic)
	}
}
