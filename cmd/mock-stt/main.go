// Command mock-stt is a development stand-in for the speech-to-text API.
// It accepts the same multipart upload the service sends and returns a
// canned transcription, so the full pipeline can be exercised without a
// real model behind it.
package main

import (
	"encoding/json"
	"flag"
	"io"
	"log"
	"net/http"
	"time"
)

type transcriptionResponse struct {
	Text                string  `json:"text"`
	Language            string  `json:"language"`
	LanguageProbability float64 `json:"language_probability"`
}

var (
	listenAddr = flag.String("listen", ":9000", "address to listen on")
	text       = flag.String("text", "проверка связи, как слышно", "transcript to return")
	language   = flag.String("language", "ru", "detected language to return")
	delay      = flag.Duration("delay", 200*time.Millisecond, "simulated processing time")
)

func transcribeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(10 << 20); err != nil {
		http.Error(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	requestedLang := r.FormValue("language")
	model := r.FormValue("model")
	prompt := r.FormValue("prompt")

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Error getting audio file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	audioData, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "Error reading audio file", http.StatusInternalServerError)
		return
	}

	log.Printf("transcription request: file=%s size=%d language=%q model=%q prompt=%q",
		header.Filename, len(audioData), requestedLang, model, prompt)

	time.Sleep(*delay)

	resp := transcriptionResponse{
		Text:                *text,
		Language:            *language,
		LanguageProbability: 0.95,
	}
	// When the caller pins a language, echo it back the way a real model
	// forced to that language would.
	if requestedLang != "" {
		resp.Language = requestedLang
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)

	log.Printf("transcription response: %q (%s)", resp.Text, resp.Language)
}

func main() {
	flag.Parse()

	http.HandleFunc("/v1/audio/transcriptions", transcribeHandler)

	log.Printf("Mock STT server listening on %s", *listenAddr)
	log.Printf("Endpoint: http://localhost%s/v1/audio/transcriptions", *listenAddr)

	if err := http.ListenAndServe(*listenAddr, nil); err != nil {
		log.Fatal("Server failed to start:", err)
	}
}
