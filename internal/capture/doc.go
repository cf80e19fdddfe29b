// Package capture ingests raw PCM audio over UDP. Capture agents ship
// fixed-header datagrams of 16-bit little-endian samples; each source
// re-blocks the stream into uniform float32 chunks, optionally band-limits
// them to the speech band, and delivers them on a bounded channel with
// drop-on-full back-pressure.
package capture
