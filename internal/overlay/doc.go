// Package overlay pushes translated text to on-screen overlay clients over
// websockets and serves the monitoring HTTP API. Preview updates for a
// source replace each other on the client; final updates are committed
// lines.
package overlay
