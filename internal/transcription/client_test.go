package transcription

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func testSamples(n int) []float32 {
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = 0.1
	}
	return samples
}

func newTestClient(t *testing.T, endpoint string, retries int) *Client {
	t.Helper()
	c, err := NewClient(Config{
		Endpoint:   endpoint,
		Model:      "whisper-1",
		SampleRate: 16000,
		MaxRetries: retries,
		Timeout:    5 * time.Second,
		PromptHints: map[string]string{
			"en": "Game chat, tactical callouts.",
		},
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c
}

func TestTranscribeSendsMultipartForm(t *testing.T) {
	var gotLanguage, gotModel, gotPrompt string
	var gotWAV []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			t.Errorf("ParseMultipartForm() error = %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		gotLanguage = r.FormValue("language")
		gotModel = r.FormValue("model")
		gotPrompt = r.FormValue("prompt")

		file, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile() error = %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		buf := make([]byte, 12)
		if _, err := file.Read(buf); err != nil {
			t.Errorf("reading upload: %v", err)
		}
		gotWAV = buf

		json.NewEncoder(w).Encode(apiResponse{Text: "hello there"})
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, 0)
	text, err := c.Transcribe(context.Background(), testSamples(16000), "en")
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}

	if text != "hello there" {
		t.Errorf("text = %q, want %q", text, "hello there")
	}
	if gotLanguage != "en" {
		t.Errorf("language field = %q, want %q", gotLanguage, "en")
	}
	if gotModel != "whisper-1" {
		t.Errorf("model field = %q, want %q", gotModel, "whisper-1")
	}
	if gotPrompt != "Game chat, tactical callouts." {
		t.Errorf("prompt field = %q", gotPrompt)
	}
	if string(gotWAV[0:4]) != "RIFF" || string(gotWAV[8:12]) != "WAVE" {
		t.Error("uploaded file is not a WAV")
	}
}

func TestTranscribeDetect(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if lang := r.FormValue("language"); lang != "" {
			t.Errorf("detect request carried language field %q", lang)
		}
		json.NewEncoder(w).Encode(apiResponse{
			Text:                "привет",
			Language:            "ru",
			LanguageProbability: 0.87,
		})
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, 0)
	res, err := c.TranscribeDetect(context.Background(), testSamples(16000))
	if err != nil {
		t.Fatalf("TranscribeDetect() error = %v", err)
	}

	if res.Text != "привет" || res.Language != "ru" {
		t.Errorf("result = %+v", res)
	}
	if res.Confidence != 0.87 {
		t.Errorf("confidence = %v, want 0.87", res.Confidence)
	}
}

func TestTranscribeRetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(apiResponse{Text: "second time lucky"})
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, 2)
	text, err := c.Transcribe(context.Background(), testSamples(16000), "en")
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}

	if text != "second time lucky" {
		t.Errorf("text = %q", text)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("server called %d times, want 2", got)
	}

	stats := c.GetStats()
	if stats.TotalRetries != 1 {
		t.Errorf("retries = %d, want 1", stats.TotalRetries)
	}
}

func TestTranscribeDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad model", http.StatusBadRequest)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, 3)
	if _, err := c.Transcribe(context.Background(), testSamples(16000), "en"); err == nil {
		t.Fatal("Transcribe() = nil error, want error")
	}

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("server called %d times for a 400, want 1", got)
	}
}

func TestTranscribeEmptyAudio(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:1/transcribe", 0)
	if _, err := c.Transcribe(context.Background(), nil, "en"); err == nil {
		t.Error("expected error for empty audio")
	}
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{SampleRate: 16000}); err == nil {
		t.Error("expected error for missing endpoint")
	}
	if _, err := NewClient(Config{Endpoint: "http://localhost/v1"}); err == nil {
		t.Error("expected error for missing sample rate")
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"server error", &httpStatusError{StatusCode: 503}, true},
		{"rate limited", &httpStatusError{StatusCode: 429}, true},
		{"bad request", &httpStatusError{StatusCode: 400}, false},
		{"unauthorized", &httpStatusError{StatusCode: 401}, false},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryableError(tt.err); got != tt.want {
				t.Errorf("isRetryableError() = %v, want %v", got, tt.want)
			}
		})
	}
}
