// Package transcription implements the HTTP client for the speech-to-text
// API. It uploads WAV-encoded utterances as multipart form data, supports
// language detection and per-language prompt hints, and implements retry
// logic with exponential backoff and rate limiting.
package transcription
