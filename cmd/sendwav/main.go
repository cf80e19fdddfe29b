// Command sendwav streams a mono 16-bit WAV file to the service as capture
// datagrams, pacing them at real time. It stands in for the OS-level audio
// capture client during development.
package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"time"

	"github.com/Burnaviour/realtime-translator/internal/audio"
	"github.com/Burnaviour/realtime-translator/internal/capture"
)

var (
	target    = flag.String("target", "127.0.0.1:4444", "service UDP address")
	source    = flag.String("source", "game", "frame source: game or mic")
	blockSize = flag.Int("block", 1024, "samples per datagram")
	realtime  = flag.Bool("realtime", true, "pace datagrams at playback speed")
)

func main() {
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: sendwav [flags] file.wav\n")
		flag.PrintDefaults()
		os.Exit(2)
	}

	var frameSource uint8
	switch *source {
	case "game":
		frameSource = capture.SourceGame
	case "mic":
		frameSource = capture.SourceMic
	default:
		log.Fatalf("unknown source %q, want game or mic", *source)
	}

	data, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		log.Fatalf("failed to read %s: %v", flag.Arg(0), err)
	}

	samples, sampleRate, err := audio.DecodeWAV(data)
	if err != nil {
		log.Fatalf("failed to decode %s: %v", flag.Arg(0), err)
	}

	conn, err := net.Dial("udp", *target)
	if err != nil {
		log.Fatalf("failed to dial %s: %v", *target, err)
	}
	defer conn.Close()

	blockDuration := time.Duration(*blockSize) * time.Second / time.Duration(sampleRate)
	log.Printf("streaming %d samples at %d Hz to %s as %s (%s per block)",
		len(samples), sampleRate, *target, *source, blockDuration)

	var sequence uint32
	for offset := 0; offset < len(samples); offset += *blockSize {
		end := offset + *blockSize
		if end > len(samples) {
			end = len(samples)
		}

		frame := capture.EncodeFrame(frameSource, sequence, samples[offset:end])
		if _, err := conn.Write(frame); err != nil {
			log.Fatalf("failed to send datagram: %v", err)
		}
		sequence++

		if *realtime {
			time.Sleep(blockDuration)
		}
	}

	log.Printf("sent %d datagrams", sequence)
}
