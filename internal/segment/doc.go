// Package segment implements streaming utterance segmentation: it accumulates
// audio chunks for one source, tracks silence runs, and decides when the
// buffer should be previewed, finalized as a complete utterance, or discarded
// as non-speech. Forced splits of overlong buffers land on natural pauses.
package segment
