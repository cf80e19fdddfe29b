package capture

import (
	"log/slog"
	"net"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discard{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func TestStopWithoutStart(t *testing.T) {
	s := NewUDPSource(UDPConfig{ListenAddress: "127.0.0.1:0", Source: SourceGame}, testLogger(), nil)
	s.Stop()

	select {
	case _, ok := <-s.Chunks():
		if ok {
			t.Error("received chunk from stopped source")
		}
	case <-time.After(time.Second):
		t.Error("chunk channel not closed after Stop")
	}

	// A second Stop must be a no-op.
	s.Stop()
}

func TestUDPSourceDelivery(t *testing.T) {
	s := NewUDPSource(UDPConfig{
		ListenAddress: "127.0.0.1:0",
		Source:        SourceGame,
		BlockSize:     64,
	}, testLogger(), nil)

	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop()

	conn, err := net.Dial("udp", s.LocalAddr().String())
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	// 128 samples of a constant value produce exactly two 64-sample blocks.
	samples := make([]int16, 128)
	for i := range samples {
		samples[i] = 16384
	}
	if _, err := conn.Write(EncodeFrame(SourceGame, 1, samples)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	for i := 0; i < 2; i++ {
		select {
		case chunk := <-s.Chunks():
			if len(chunk) != 64 {
				t.Fatalf("chunk %d has %d samples, want 64", i, len(chunk))
			}
			if chunk[0] != 0.5 {
				t.Errorf("chunk %d sample = %v, want 0.5", i, chunk[0])
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for chunk %d", i)
		}
	}
}

func TestUDPSourceIgnoresOtherSource(t *testing.T) {
	s := NewUDPSource(UDPConfig{
		ListenAddress: "127.0.0.1:0",
		Source:        SourceMic,
		BlockSize:     32,
	}, testLogger(), nil)

	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop()

	conn, err := net.Dial("udp", s.LocalAddr().String())
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	other := make([]int16, 32)
	for i := range other {
		other[i] = 8192
	}
	mine := make([]int16, 32)
	for i := range mine {
		mine[i] = 16384
	}

	if _, err := conn.Write(EncodeFrame(SourceGame, 1, other)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if _, err := conn.Write(EncodeFrame(SourceMic, 1, mine)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	select {
	case chunk := <-s.Chunks():
		if chunk[0] != 0.5 {
			t.Errorf("first delivered sample = %v, want 0.5 from the mic frame", chunk[0])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for chunk")
	}
}

func TestUDPSourceStartBadAddress(t *testing.T) {
	s := NewUDPSource(UDPConfig{ListenAddress: "not-an-address", Source: SourceGame}, testLogger(), nil)
	if err := s.Start(); err == nil {
		s.Stop()
		t.Fatal("Start() = nil error for invalid address")
	}
}

func TestUDPSourceAppliesFilter(t *testing.T) {
	s := NewUDPSource(UDPConfig{
		ListenAddress: "127.0.0.1:0",
		Source:        SourceGame,
		BlockSize:     64,
		Filter:        NewBandPass(300, 3000, 16000),
	}, testLogger(), nil)

	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop()

	conn, err := net.Dial("udp", s.LocalAddr().String())
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	// DC input sits far below the high-pass corner and must be attenuated.
	samples := make([]int16, 64)
	for i := range samples {
		samples[i] = 16384
	}
	if _, err := conn.Write(EncodeFrame(SourceGame, 1, samples)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	select {
	case chunk := <-s.Chunks():
		if chunk[len(chunk)-1] >= 0.5 {
			t.Errorf("filtered tail sample = %v, want attenuated below 0.5", chunk[len(chunk)-1])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for chunk")
	}
}
