// Package classify provides stateless speech/non-speech heuristics over audio
// buffers (RMS energy, zero-crossing rate) and text-level rejection of model
// hallucinations and degenerate repetitive output.
package classify
