package transport

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"sync"

	"go.bug.st/serial"

	"github.com/arcment-data/arcweld/internal/monitoring"
)

// Serial dispatches G-code over a serial port, waiting for the controller's
// "ok" acknowledgement after every line. Unsolicited report lines between
// acknowledgements are logged and skipped.
type Serial struct {
	mu     sync.Mutex
	port   serial.Port
	reader *bufio.Reader
}

// OpenSerial opens the motion controller port at the given path.
func OpenSerial(portName string, baudRate int) (*Serial, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: 1,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open controller port %s: %w", portName, err)
	}
	return NewSerial(port), nil
}

// NewSerial wraps an already-open port. Used by tests with a mock port.
func NewSerial(port serial.Port) *Serial {
	return &Serial{port: port, reader: bufio.NewReader(port)}
}

// Dispatch writes each line and blocks for its acknowledgement before
// sending the next, so the whole batch has been accepted when it returns.
func (s *Serial) Dispatch(ctx context.Context, lines []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, line := range lines {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := s.port.Write([]byte(line + "\n")); err != nil {
			return fmt.Errorf("%w: %v", ErrDispatchFailed, err)
		}
		if err := s.awaitAck(line); err != nil {
			return err
		}
	}
	return nil
}

func (s *Serial) awaitAck(line string) error {
	for {
		reply, err := s.reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("%w: reading acknowledgement for %q: %v", ErrDispatchFailed, line, err)
		}
		reply = strings.TrimSpace(reply)
		switch {
		case reply == "":
			continue
		case strings.HasPrefix(reply, "ok"):
			return nil
		case strings.HasPrefix(reply, "error"), strings.HasPrefix(reply, "!!"):
			return fmt.Errorf("%w: controller rejected %q: %s", ErrDispatchFailed, line, reply)
		default:
			// Unsolicited report (temperature, position). Keep waiting.
			monitoring.Logf("controller: %s", reply)
		}
	}
}

// Close closes the underlying port.
func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port.Close()
}
