// Package audio handles sample format conversion between the float32
// processing pipeline and 16-bit PCM, and WAV encoding for transcription
// uploads.
package audio
