package capture

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/Burnaviour/realtime-translator/internal/metrics"
)

// Default UDP source settings.
const (
	DefaultBlockSize  = 1024
	DefaultQueueSize  = 300
	DefaultReadBuffer = 1 << 20

	readDeadline = 1 * time.Second
	maxDatagram  = 65536
)

// UDPConfig contains settings for one UDP audio source.
type UDPConfig struct {
	// ListenAddress is the host:port to bind, e.g. "0.0.0.0:5001".
	ListenAddress string
	// Source is the expected frame source byte; datagrams carrying a
	// different source are ignored.
	Source uint8
	// BlockSize is the number of samples per emitted chunk.
	BlockSize int
	// QueueSize bounds the chunk channel; chunks are dropped when the
	// consumer falls behind.
	QueueSize int
	// ReadBuffer is the requested kernel receive buffer size in bytes.
	ReadBuffer int
	// Filter, when set, band-limits every chunk before delivery.
	Filter *BandPass
}

// UDPSource listens for capture datagrams and delivers uniform audio chunks.
// It satisfies the pipeline Source contract: Stop is safe without Start and
// closes the chunk channel exactly once.
type UDPSource struct {
	cfg     UDPConfig
	logger  *slog.Logger
	metrics *metrics.Metrics

	conn   *net.UDPConn
	chunks chan []float32

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once

	// Sequence tracking, touched only by the read loop.
	lastSequence uint32
	haveSequence bool
	pending      []float32
}

// NewUDPSource creates a UDP audio source. Metrics may be nil.
func NewUDPSource(cfg UDPConfig, logger *slog.Logger, m *metrics.Metrics) *UDPSource {
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = DefaultBlockSize
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.ReadBuffer <= 0 {
		cfg.ReadBuffer = DefaultReadBuffer
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &UDPSource{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		chunks:  make(chan []float32, cfg.QueueSize),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start binds the listen address and begins chunk delivery.
func (s *UDPSource) Start() error {
	addr, err := net.ResolveUDPAddr("udp", s.cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address %q: %w", s.cfg.ListenAddress, err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %q: %w", s.cfg.ListenAddress, err)
	}
	s.conn = conn

	if err := s.conn.SetReadBuffer(s.cfg.ReadBuffer); err != nil {
		s.logger.Warn("Failed to set UDP read buffer size",
			slog.String("source", SourceString(s.cfg.Source)),
			slog.Int("buffer_size", s.cfg.ReadBuffer),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("UDP audio source started",
		slog.String("source", SourceString(s.cfg.Source)),
		slog.String("address", conn.LocalAddr().String()),
		slog.Int("block_size", s.cfg.BlockSize),
		slog.Int("queue_size", s.cfg.QueueSize),
	)

	s.wg.Add(1)
	go s.readLoop()

	return nil
}

// Stop ends chunk delivery and closes the chunk channel.
func (s *UDPSource) Stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		if s.conn != nil {
			if err := s.conn.Close(); err != nil {
				s.logger.Warn("Error closing UDP connection",
					slog.String("source", SourceString(s.cfg.Source)),
					slog.String("error", err.Error()),
				)
			}
		}
		s.wg.Wait()
		close(s.chunks)
	})
}

// Chunks returns the channel audio arrives on.
func (s *UDPSource) Chunks() <-chan []float32 {
	return s.chunks
}

// LocalAddr returns the bound address, valid after Start.
func (s *UDPSource) LocalAddr() net.Addr {
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

func (s *UDPSource) readLoop() {
	defer s.wg.Done()

	sourceName := SourceString(s.cfg.Source)
	buffer := make([]byte, maxDatagram)

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		if err := s.conn.SetReadDeadline(time.Now().Add(readDeadline)); err != nil {
			s.logger.Error("Failed to set read deadline",
				slog.String("source", sourceName),
				slog.String("error", err.Error()),
			)
			continue
		}

		n, remoteAddr, err := s.conn.ReadFromUDP(buffer)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}

			select {
			case <-s.ctx.Done():
				return
			default:
				s.logger.Error("Failed to read UDP datagram",
					slog.String("source", sourceName),
					slog.String("error", err.Error()),
				)
				continue
			}
		}

		frame, err := ParseFrame(buffer[:n])
		if err != nil {
			s.logger.Warn("Dropping malformed datagram",
				slog.String("source", sourceName),
				slog.String("remote_addr", remoteAddr.String()),
				slog.Int("size", n),
				slog.String("error", err.Error()),
			)
			continue
		}

		if frame.Source != s.cfg.Source {
			s.logger.Debug("Ignoring datagram for other source",
				slog.String("source", sourceName),
				slog.String("frame_source", SourceString(frame.Source)),
			)
			continue
		}

		s.trackSequence(frame, sourceName)
		s.deliver(frame.Samples, sourceName)
	}
}

func (s *UDPSource) trackSequence(frame *Frame, sourceName string) {
	if s.haveSequence && frame.Sequence != s.lastSequence+1 {
		s.metrics.RecordSequenceGap(sourceName)
		s.logger.Debug("Sequence gap",
			slog.String("source", sourceName),
			slog.Uint64("expected", uint64(s.lastSequence+1)),
			slog.Uint64("got", uint64(frame.Sequence)),
		)
	}
	s.lastSequence = frame.Sequence
	s.haveSequence = true
}

// deliver re-blocks incoming samples into uniform chunks and hands them to
// the consumer, dropping when the queue is full.
func (s *UDPSource) deliver(samples []float32, sourceName string) {
	s.pending = append(s.pending, samples...)

	for len(s.pending) >= s.cfg.BlockSize {
		block := make([]float32, s.cfg.BlockSize)
		copy(block, s.pending[:s.cfg.BlockSize])
		rest := copy(s.pending, s.pending[s.cfg.BlockSize:])
		s.pending = s.pending[:rest]

		if s.cfg.Filter != nil {
			s.cfg.Filter.Process(block)
		}

		select {
		case s.chunks <- block:
			s.metrics.RecordChunkReceived(sourceName)
		default:
			s.metrics.RecordChunkDropped(sourceName)
			s.logger.Warn("Chunk queue full, dropping audio",
				slog.String("source", sourceName),
				slog.Int("queue_size", s.cfg.QueueSize),
			)
		}
	}
}
