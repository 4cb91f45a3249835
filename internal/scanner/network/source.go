package network

import (
	"fmt"
	"net"
	"sync"

	"github.com/arcment-data/arcweld/internal/monitoring"
	"github.com/arcment-data/arcweld/internal/scanner"
)

const (
	// frameBuffer is the channel depth between the UDP read loop and Poll.
	// Profilers stream a few hundred frames per second at most; a shallow
	// buffer absorbs scheduling jitter and drops beyond that.
	frameBuffer = 64

	// readBufferBytes is the UDP payload buffer size. Largest frame is
	// 16 + MaxFramePoints*8 bytes.
	readBufferBytes = 64 * 1024
)

// Source receives profiler frames over UDP. Begin opens the socket and
// starts the read loop; End closes the socket and joins the loop. It
// implements scanner.Source.
type Source struct {
	address string
	rcvBuf  int

	mu      sync.Mutex
	conn    *net.UDPConn
	frames  chan scanner.Sample
	wg      sync.WaitGroup
	dropped uint64
}

// NewSource creates a UDP frame source listening on the given address, e.g.
// ":2430".
func NewSource(address string) *Source {
	return &Source{address: address, rcvBuf: 1 << 20}
}

// Begin opens the UDP socket and starts reading frames.
func (s *Source) Begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return fmt.Errorf("acquisition already active on %s", s.address)
	}

	addr, err := net.ResolveUDPAddr("udp", s.address)
	if err != nil {
		return fmt.Errorf("failed to resolve profiler address %s: %w", s.address, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen for profiler frames: %w", err)
	}
	if err := conn.SetReadBuffer(s.rcvBuf); err != nil {
		monitoring.Warnf("failed to set UDP receive buffer: %v", err)
	}

	s.conn = conn
	s.frames = make(chan scanner.Sample, frameBuffer)
	s.dropped = 0
	s.wg.Add(1)
	go s.readLoop(conn, s.frames)

	monitoring.Logf("profiler acquisition started on %s", conn.LocalAddr())
	return nil
}

// End closes the socket and waits for the read loop to exit.
func (s *Source) End() error {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn == nil {
		return nil
	}

	err := conn.Close()
	s.wg.Wait()
	if s.dropped > 0 {
		monitoring.Warnf("profiler acquisition dropped %d frames", s.dropped)
	}
	monitoring.Logf("profiler acquisition stopped")
	return err
}

// Poll returns the next pending frame without blocking.
func (s *Source) Poll() (scanner.Sample, bool) {
	s.mu.Lock()
	frames := s.frames
	s.mu.Unlock()
	if frames == nil {
		return scanner.Sample{}, false
	}
	select {
	case sample, ok := <-frames:
		return sample, ok
	default:
		return scanner.Sample{}, false
	}
}

// LocalAddr returns the bound socket address while acquisition is active.
func (s *Source) LocalAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

func (s *Source) readLoop(conn *net.UDPConn, frames chan scanner.Sample) {
	defer s.wg.Done()
	defer close(frames)

	buf := make([]byte, readBufferBytes)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			// Closed socket is the normal End path.
			return
		}
		sample, err := DecodeFrame(buf[:n])
		if err != nil {
			monitoring.Warnf("discarding profiler frame: %v", err)
			continue
		}
		select {
		case frames <- sample:
		default:
			s.dropped++
		}
	}
}
