// Package pipeline orchestrates the translation flow for each audio source:
// chunks from a Source feed a segmentation buffer, finalized utterances run
// through transcription, hallucination filtering, translation, and text
// rewriting before reaching the output Sink. Preview transcriptions run
// asynchronously with single-flight exclusion per source.
package pipeline
